package scraper

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// slotLimiters enforces the minimum inter-request delay independently per
// worker slot, so total throughput scales with concurrency while each slot
// stays polite.
type slotLimiters struct {
	limiters []*rate.Limiter
}

func newSlotLimiters(slots int, minDelay time.Duration) *slotLimiters {
	if slots < 1 {
		slots = 1
	}
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}
	limiters := make([]*rate.Limiter, slots)
	for i := range limiters {
		limiters[i] = rate.NewLimiter(limit, 1)
	}
	return &slotLimiters{limiters: limiters}
}

// Wait blocks until the slot's limiter admits a request or ctx is canceled
func (l *slotLimiters) Wait(ctx context.Context, slot int) error {
	return l.limiters[slot%len(l.limiters)].Wait(ctx)
}

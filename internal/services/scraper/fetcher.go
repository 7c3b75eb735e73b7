package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/common"
	"github.com/AliAzimiD/jobharvest/internal/models"
)

// Fetcher retrieves pages from one source. User agents rotate round-robin
// across requests, and each worker slot is rate limited independently.
type Fetcher struct {
	source     models.SourceConfig
	client     *http.Client
	userAgents []string
	uaIndex    atomic.Uint64
	limiters   *slotLimiters
	logger     arbor.ILogger
}

// NewFetcher creates a fetcher for one source using the scraper config's
// timeout, delay and user agent pool
func NewFetcher(source models.SourceConfig, config *common.ScraperConfig, logger arbor.ILogger) *Fetcher {
	return &Fetcher{
		source: source,
		client: &http.Client{
			Timeout: config.RequestTimeout(),
		},
		userAgents: config.UserAgents,
		limiters:   newSlotLimiters(config.MaxConcurrentRequests, config.RequestDelay()),
		logger:     logger,
	}
}

// FetchPage retrieves and decodes one page. A page whose item list is
// missing or empty comes back with nil Items: that is the source saying
// there is no more data, not an error.
func (f *Fetcher) FetchPage(ctx context.Context, slot, page int) (*Page, error) {
	if err := f.limiters.Wait(ctx, slot); err != nil {
		return nil, err
	}

	req, err := f.buildRequest(ctx, page)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page %d: request failed: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Page: page}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("page %d: failed to read response body: %w", page, err)
	}

	items, err := f.extractItems(page, body)
	if err != nil {
		return nil, err
	}

	f.logger.Debug().
		Str("source", f.source.Name).
		Int("page", page).
		Int("items", len(items)).
		Msg("Page fetched")

	return &Page{Number: page, Items: items}, nil
}

// buildRequest constructs the page request. Sources with a "{page}" URL
// template use GET; the rest use POST with a paging payload.
func (f *Fetcher) buildRequest(ctx context.Context, page int) (*http.Request, error) {
	var req *http.Request
	var err error

	if f.source.UsesPageTemplate() {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, f.source.PageURL(page), nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: failed to build request: %w", page, err)
		}
	} else {
		filters := f.source.Filters
		if filters == nil {
			filters = map[string]interface{}{}
		}
		payload, err := json.Marshal(map[string]interface{}{
			"page":     page,
			"pageSize": f.source.PageSize,
			"filters":  filters,
		})
		if err != nil {
			return nil, fmt.Errorf("page %d: failed to encode request payload: %w", page, err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, f.source.URLTemplate, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("page %d: failed to build request: %w", page, err)
		}
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.nextUserAgent())
	return req, nil
}

// nextUserAgent returns the next user agent in round-robin order
func (f *Fetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return ""
	}
	i := f.uaIndex.Add(1) - 1
	return f.userAgents[i%uint64(len(f.userAgents))]
}

// extractItems pulls the item array out of the response envelope using the
// source's items selector. A missing or null item list is an empty page;
// a list that is not an array is a schema mismatch.
func (f *Fetcher) extractItems(page int, body []byte) ([]json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, &SchemaError{Page: page, Reason: "response body is not valid JSON"}
	}

	raw, ok := digJSON(body, f.source.Selectors.Items)
	if !ok {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &SchemaError{Page: page, Reason: fmt.Sprintf("%q is not an array", f.source.Selectors.Items)}
	}
	return items, nil
}

// digJSON walks a dotted path through nested JSON objects. It returns false
// when any segment is missing, null, or not an object.
func digJSON(raw json.RawMessage, path string) (json.RawMessage, bool) {
	current := raw
	for _, segment := range strings.Split(path, ".") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(current, &obj); err != nil {
			return nil, false
		}
		next, ok := obj[segment]
		if !ok {
			return nil, false
		}
		current = next
	}
	if len(current) == 0 || string(current) == "null" {
		return nil, false
	}
	return current, true
}

package scraper

import (
	"encoding/json"
	"fmt"
)

// Page is the decoded payload of one source page. An empty Items slice is
// the source's authoritative "no more data" signal.
type Page struct {
	Number int
	Items  []json.RawMessage
}

// HTTPStatusError marks a non-200 response. Retryability depends on the
// status code: 408/429/5xx are transient, other 4xx are fatal for the page.
type HTTPStatusError struct {
	StatusCode int
	Page       int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("page %d: unexpected HTTP status %d", e.Page, e.StatusCode)
}

// SchemaError marks a response body that did not match the expected
// envelope. Never retried: the same bytes would fail the same way.
type SchemaError struct {
	Page   int
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("page %d: response schema mismatch: %s", e.Page, e.Reason)
}

// RejectionError marks a single source item that failed validation.
// Rejections are local: the item is dropped and counted, the batch goes on.
type RejectionError struct {
	ID     string
	Field  string
	Reason string
}

func (e *RejectionError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("item %s rejected: %s: %s", e.ID, e.Field, e.Reason)
	}
	return fmt.Sprintf("item rejected: %s: %s", e.Field, e.Reason)
}

// RunConfig is the effective configuration of one run after merging the
// application config with per-run overrides
type RunConfig struct {
	MaxPages    int
	BatchSize   int
	Concurrency int
	QueueSize   int
}

package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/AliAzimiD/jobharvest/internal/models"
)

// acceptedTimeLayouts are the timestamp shapes sources actually emit, with
// and without fractional seconds. Anything else is rejected rather than
// guessed at.
var acceptedTimeLayouts = []string{
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Normalizer converts raw source items into validated JobRecords. It fails
// closed: an item with a missing ID or title, or a timestamp that matches
// none of the accepted layouts, is rejected and counted, never stored with
// guessed values.
type Normalizer struct {
	selectors models.SourceSelectors
	saveRaw   bool
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewNormalizer creates a normalizer for one source's selector mapping
func NewNormalizer(selectors models.SourceSelectors, saveRaw bool, logger arbor.ILogger) *Normalizer {
	return &Normalizer{
		selectors: selectors,
		saveRaw:   saveRaw,
		validate:  validator.New(),
		logger:    logger,
	}
}

// NormalizePage converts a page of items, returning the valid records and
// one error per rejected item
func (n *Normalizer) NormalizePage(items []json.RawMessage) ([]*models.JobRecord, []error) {
	records := make([]*models.JobRecord, 0, len(items))
	var rejections []error

	for _, item := range items {
		record, err := n.NormalizeItem(item)
		if err != nil {
			n.logger.Debug().Err(err).Msg("Source item rejected")
			rejections = append(rejections, err)
			continue
		}
		records = append(records, record)
	}
	return records, rejections
}

// NormalizeItem converts one raw source item into a JobRecord
func (n *Normalizer) NormalizeItem(item json.RawMessage) (*models.JobRecord, error) {
	id, err := n.idField(item)
	if err != nil {
		return nil, err
	}

	record := &models.JobRecord{
		ID:                id,
		Title:             strings.TrimSpace(n.stringField(item, n.selectors.Title)),
		CompanyNameEN:     strings.TrimSpace(n.stringField(item, n.selectors.CompanyEN)),
		CompanyNameFA:     strings.TrimSpace(n.stringField(item, n.selectors.CompanyFA)),
		Description:       n.stringField(item, n.selectors.Description),
		URL:               strings.TrimSpace(n.stringField(item, n.selectors.URL)),
		Locations:         n.rawField(item, n.selectors.Locations),
		JobCategories:     n.rawField(item, n.selectors.JobCategories),
		Tags:              n.rawField(item, n.selectors.Tags),
		WorkTypes:         n.rawField(item, n.selectors.WorkTypes),
		Salary:            n.rawField(item, n.selectors.Salary),
		JobPostCategories: n.rawField(item, n.selectors.JobPostCategories),
	}

	if record.ActivationTime, err = n.timeField(item, n.selectors.ActivationTime, id); err != nil {
		return nil, err
	}
	if record.ExpirationTime, err = n.timeField(item, n.selectors.ExpirationTime, id); err != nil {
		return nil, err
	}

	if n.saveRaw {
		record.RawData = append(json.RawMessage(nil), item...)
	}

	if err := n.validate.Struct(record); err != nil {
		return nil, &RejectionError{ID: id, Field: firstInvalidField(err), Reason: "required field is missing or empty"}
	}

	return record, nil
}

// idField extracts the record ID, accepting both string and numeric IDs
func (n *Normalizer) idField(item json.RawMessage) (string, error) {
	raw, ok := digJSON(item, n.selectors.ID)
	if !ok {
		return "", &RejectionError{Field: n.selectors.ID, Reason: "missing"}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s, nil
		}
		return "", &RejectionError{Field: n.selectors.ID, Reason: "empty"}
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), nil
	}

	return "", &RejectionError{Field: n.selectors.ID, Reason: "not a string or number"}
}

// stringField extracts an optional string field, returning "" when absent
// or not a string
func (n *Normalizer) stringField(item json.RawMessage, path string) string {
	raw, ok := digJSON(item, path)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// rawField extracts a nested structure verbatim, returning nil when absent
func (n *Normalizer) rawField(item json.RawMessage, path string) json.RawMessage {
	raw, ok := digJSON(item, path)
	if !ok {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}

// timeField extracts and parses an optional timestamp. Absent is fine; a
// present value that parses with none of the accepted layouts is a
// rejection.
func (n *Normalizer) timeField(item json.RawMessage, path, id string) (*time.Time, error) {
	raw, ok := digJSON(item, path)
	if !ok {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &RejectionError{ID: id, Field: path, Reason: "timestamp is not a string"}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	for _, layout := range acceptedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, &RejectionError{ID: id, Field: path, Reason: fmt.Sprintf("unrecognized timestamp %q", s)}
}

// firstInvalidField names the first failing field of a validation error
func firstInvalidField(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return strings.ToLower(verrs[0].Field())
	}
	return "record"
}

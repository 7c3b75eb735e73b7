package models

import (
	"encoding/json"
	"strings"
	"time"
)

// JobRecord represents a harvested job posting.
//
// ID is the source-assigned identifier and the storage key: a record with an
// existing ID is updated in place, never duplicated. Nested source structures
// (locations, tags, work types, categories, salary) are stored verbatim as
// raw JSON: source payloads are heterogeneous and only the fields the
// pipeline needs are ever inspected.
//
// Display* fields are derived, not independent state. They are recomputed
// from Locations/WorkTypes/JobPostCategories on every write so they can
// never diverge from their source fields.
type JobRecord struct {
	ID                string          `json:"id" badgerhold:"key" validate:"required"`
	Title             string          `json:"title" validate:"required"`
	CompanyNameEN     string          `json:"company_name_en,omitempty"`
	CompanyNameFA     string          `json:"company_name_fa,omitempty"`
	Description       string          `json:"description,omitempty"`
	URL               string          `json:"url,omitempty"`
	ActivationTime    *time.Time      `json:"activation_time,omitempty"`
	ExpirationTime    *time.Time      `json:"expiration_time,omitempty"`
	Locations         json.RawMessage `json:"locations,omitempty"`
	JobCategories     json.RawMessage `json:"job_categories,omitempty"`
	Tags              json.RawMessage `json:"tags,omitempty"`
	WorkTypes         json.RawMessage `json:"work_types,omitempty"`
	Salary            json.RawMessage `json:"salary,omitempty"`
	JobPostCategories json.RawMessage `json:"job_post_categories,omitempty"`
	RawData           json.RawMessage `json:"raw_data,omitempty"`

	// Derived display fields, see ComputeDerived
	DisplayLocation   string   `json:"display_location,omitempty"`
	DisplayWorkType   string   `json:"display_work_type,omitempty"`
	DisplayCategories []string `json:"display_categories,omitempty"`

	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComputeDerived recomputes the display fields from their source fields.
// The function is pure over the record's nested JSON: calling it twice on
// the same data yields the same result. Stores call it at write time.
func (j *JobRecord) ComputeDerived() {
	j.DisplayLocation = firstNestedTitle(j.Locations, "city", "province")
	j.DisplayWorkType = firstTitle(j.WorkTypes)
	j.DisplayCategories = allTitles(j.JobPostCategories)
}

// firstNestedTitle extracts the title of the first array element's nested
// object, trying the given keys in order (e.g. locations[0].city.title,
// falling back to locations[0].province.title).
func firstNestedTitle(raw json.RawMessage, keys ...string) string {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return ""
	}
	for _, key := range keys {
		nested, ok := items[0][key]
		if !ok {
			continue
		}
		if title := objectTitle(nested); title != "" {
			return title
		}
	}
	return ""
}

// firstTitle extracts the title of the first element of an array of objects
func firstTitle(raw json.RawMessage) string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return ""
	}
	return objectTitle(items[0])
}

// allTitles extracts the titles of every element of an array of objects
func allTitles(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil
	}
	titles := make([]string, 0, len(items))
	for _, item := range items {
		if title := objectTitle(item); title != "" {
			titles = append(titles, title)
		}
	}
	if len(titles) == 0 {
		return nil
	}
	return titles
}

// objectTitle returns the first non-empty of titleEn, title, titleFa, name
// from a JSON object, or the value itself when it is a bare string.
func objectTitle(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"titleEn", "title", "titleFa", "name"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		var title string
		if err := json.Unmarshal(v, &title); err == nil {
			if title = strings.TrimSpace(title); title != "" {
				return title
			}
		}
	}
	return ""
}

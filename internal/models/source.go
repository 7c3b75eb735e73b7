package models

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one paginated job-posting source.
//
// Two request shapes are supported, matching the boards in the wild:
//   - URLTemplate contains a "{page}" placeholder: pages are fetched with
//     GET and the expanded URL.
//   - No placeholder: pages are fetched with POST and a JSON payload of
//     {"page": N, "pageSize": M, "filters": {...}}.
type SourceConfig struct {
	Name        string                 `yaml:"name"`
	URLTemplate string                 `yaml:"url_template"`
	MaxPages    int                    `yaml:"max_pages"`
	PageSize    int                    `yaml:"page_size"`
	Filters     map[string]interface{} `yaml:"filters,omitempty"`
	Selectors   SourceSelectors        `yaml:"selectors"`
}

// SourceSelectors maps the source's response envelope and item fields onto
// JobRecord fields, as dotted JSON paths relative to the response root
// (Items) or to a single item (the rest). Unset selectors use the defaults
// of the jobPosts envelope.
type SourceSelectors struct {
	Items             string `yaml:"items"`
	ID                string `yaml:"id"`
	Title             string `yaml:"title"`
	CompanyEN         string `yaml:"company_en"`
	CompanyFA         string `yaml:"company_fa"`
	Description       string `yaml:"description"`
	URL               string `yaml:"url"`
	ActivationTime    string `yaml:"activation_time"`
	ExpirationTime    string `yaml:"expiration_time"`
	Locations         string `yaml:"locations"`
	JobCategories     string `yaml:"job_categories"`
	Tags              string `yaml:"tags"`
	WorkTypes         string `yaml:"work_types"`
	Salary            string `yaml:"salary"`
	JobPostCategories string `yaml:"job_post_categories"`
}

// sourcesFile is the YAML document layout of sources.yaml
type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}

// DefaultSelectors returns the selector set for the jobPosts API envelope
func DefaultSelectors() SourceSelectors {
	return SourceSelectors{
		Items:             "data.jobPosts",
		ID:                "id",
		Title:             "title",
		CompanyEN:         "companyDetailsSummary.name.titleEn",
		CompanyFA:         "companyDetailsSummary.name.titleFa",
		Description:       "description",
		URL:               "url",
		ActivationTime:    "activationTime.date",
		ExpirationTime:    "expirationTime.date",
		Locations:         "locations",
		JobCategories:     "jobCategories",
		Tags:              "tags",
		WorkTypes:         "workTypes",
		Salary:            "salary",
		JobPostCategories: "jobPostCategories",
	}
}

// applyDefaults fills unset selectors from the default envelope mapping
func (s *SourceSelectors) applyDefaults() {
	defaults := DefaultSelectors()
	if s.Items == "" {
		s.Items = defaults.Items
	}
	if s.ID == "" {
		s.ID = defaults.ID
	}
	if s.Title == "" {
		s.Title = defaults.Title
	}
	if s.CompanyEN == "" {
		s.CompanyEN = defaults.CompanyEN
	}
	if s.CompanyFA == "" {
		s.CompanyFA = defaults.CompanyFA
	}
	if s.Description == "" {
		s.Description = defaults.Description
	}
	if s.URL == "" {
		s.URL = defaults.URL
	}
	if s.ActivationTime == "" {
		s.ActivationTime = defaults.ActivationTime
	}
	if s.ExpirationTime == "" {
		s.ExpirationTime = defaults.ExpirationTime
	}
	if s.Locations == "" {
		s.Locations = defaults.Locations
	}
	if s.JobCategories == "" {
		s.JobCategories = defaults.JobCategories
	}
	if s.Tags == "" {
		s.Tags = defaults.Tags
	}
	if s.WorkTypes == "" {
		s.WorkTypes = defaults.WorkTypes
	}
	if s.Salary == "" {
		s.Salary = defaults.Salary
	}
	if s.JobPostCategories == "" {
		s.JobPostCategories = defaults.JobPostCategories
	}
}

// UsesPageTemplate reports whether pages are fetched with GET and a
// "{page}" URL expansion rather than a POST payload.
func (s *SourceConfig) UsesPageTemplate() bool {
	return strings.Contains(s.URLTemplate, "{page}")
}

// PageURL expands the URL template for a page number
func (s *SourceConfig) PageURL(page int) string {
	return strings.ReplaceAll(s.URLTemplate, "{page}", fmt.Sprintf("%d", page))
}

// LoadSources reads source descriptors from a YAML file and validates them
func LoadSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var doc sourcesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}
	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sources", path)
	}

	for i := range doc.Sources {
		src := &doc.Sources[i]
		if src.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if src.URLTemplate == "" {
			return nil, fmt.Errorf("source %q: url_template is required", src.Name)
		}
		if src.MaxPages < 1 {
			src.MaxPages = 1
		}
		if src.PageSize < 1 {
			src.PageSize = 25
		}
		src.Selectors.applyDefaults()
	}

	return doc.Sources, nil
}

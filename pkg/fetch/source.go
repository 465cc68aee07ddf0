package fetch

import (
	"fmt"
	"strings"
)

// Source describes one paginated upstream data source.
type Source struct {
	// Name identifies the source ("coins", "validators", ...)
	Name string `yaml:"name" json:"name"`

	// Endpoint is the upstream path, relative to the indexer base URL
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// PageSize is the number of records requested per page
	PageSize int `yaml:"page_size" json:"pageSize"`
}

// Validate checks the source definition.
func (s Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	if strings.TrimSpace(s.Endpoint) == "" {
		return fmt.Errorf("source %q: endpoint is required", s.Name)
	}
	if s.PageSize <= 0 {
		return fmt.Errorf("source %q: page_size must be > 0 (got %d)", s.Name, s.PageSize)
	}
	return nil
}

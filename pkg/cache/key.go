package cache

import (
	"fmt"
)

// Key identifies one cached page. Two keys with the same tuple address the
// same entry.
type Key struct {
	// Source is the data source name (e.g. "coins", "validators")
	Source string

	// Page is the zero-based page index
	Page int

	// Size is the page size the page was fetched with
	Size int
}

// String generates a deterministic key string.
// Format: page:<source>:<page>:<size>
//
// Example:
//
//	page:coins:3:50
func (k Key) String() string {
	return fmt.Sprintf("page:%s:%d:%d", k.Source, k.Page, k.Size)
}

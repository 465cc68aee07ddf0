package client

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

// PageRequest identifies one upstream page.
type PageRequest struct {
	// Source is the data source name, used for metrics and logs
	Source string

	// Endpoint is the upstream path (e.g. "/api/v1/coins")
	Endpoint string

	// Page is the zero-based page index
	Page int

	// Size is the requested page size
	Size int
}

// Page is a normalized upstream page.
type Page struct {
	Records       []record.Record
	TotalElements int
	TotalPages    int
}

// ParsePage normalizes a response body. Two shapes are accepted:
//
//	{"content": [...], "totalElements": 500, "totalPages": 10}
//	[...]
//
// A non-empty bare array is exactly one page; an empty one has no pages. When totalPages is absent it is derived
// from totalElements and size. Anything else is a validation error.
func ParsePage(body []byte, size int) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, validationError("response is not valid JSON")
	}

	root := gjson.ParseBytes(body)
	switch {
	case root.IsArray():
		records, err := parseRecords(root)
		if err != nil {
			return nil, err
		}
		// size 0: a non-empty bare array is one page, an empty one is none
		return &Page{Records: records, TotalElements: len(records), TotalPages: derivePages(len(records), 0)}, nil

	case root.IsObject():
		content := root.Get("content")
		if !content.IsArray() {
			return nil, validationError("response has no content array")
		}
		records, err := parseRecords(content)
		if err != nil {
			return nil, err
		}

		totalElements := len(records)
		if v := root.Get("totalElements"); v.Exists() {
			n, ok := count(v)
			if !ok {
				return nil, validationError("totalElements is not a non-negative integer")
			}
			totalElements = n
		}

		var totalPages int
		if v := root.Get("totalPages"); v.Exists() {
			n, ok := count(v)
			if !ok {
				return nil, validationError("totalPages is not a non-negative integer")
			}
			totalPages = n
		} else {
			totalPages = derivePages(totalElements, size)
		}

		return &Page{Records: records, TotalElements: totalElements, TotalPages: totalPages}, nil

	default:
		return nil, validationError(fmt.Sprintf("unexpected response type %s", root.Type))
	}
}

func parseRecords(arr gjson.Result) ([]record.Record, error) {
	elems := arr.Array()
	records := make([]record.Record, 0, len(elems))
	for i, el := range elems {
		if !el.IsObject() {
			return nil, validationError(fmt.Sprintf("content[%d] is not an object", i))
		}
		m, _ := el.Value().(map[string]any)
		records = append(records, record.Record(m))
	}
	return records, nil
}

func count(v gjson.Result) (int, bool) {
	if v.Type != gjson.Number {
		return 0, false
	}
	f := v.Float()
	if f < 0 || f != float64(int64(f)) {
		return 0, false
	}
	return int(f), true
}

func derivePages(totalElements, size int) int {
	if size <= 0 {
		if totalElements > 0 {
			return 1
		}
		return 0
	}
	return (totalElements + size - 1) / size
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: ErrMalformedResponse}
}

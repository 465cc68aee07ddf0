package fetch

import (
	"time"

	"github.com/Sternrassler/indexer-dashboard/pkg/client"
	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

// Status is the lifecycle phase of a source's fetch state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ErrorInfo is the user-facing description of the last failure.
type ErrorInfo struct {
	Kind    client.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// State is what a view renders for one source.
type State struct {
	Source string `json:"source"`
	Status Status `json:"status"`

	// Data holds the records of DataPage. After a failed load it still
	// holds the last successfully loaded page.
	Data     []record.Record `json:"data"`
	DataPage int             `json:"dataPage"`

	Err           *ErrorInfo `json:"error"`
	Loading       bool       `json:"loading"`
	CurrentPage   int        `json:"currentPage"`
	TotalPages    int        `json:"totalPages"`
	TotalElements int        `json:"totalElements"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (s State) clone() State {
	if s.Data != nil {
		s.Data = append([]record.Record(nil), s.Data...)
	}
	if s.Err != nil {
		e := *s.Err
		s.Err = &e
	}
	return s
}

// HasNext reports whether a following page exists.
func (s State) HasNext() bool {
	return s.CurrentPage < s.TotalPages-1
}

// HasPrev reports whether a preceding page exists.
func (s State) HasPrev() bool {
	return s.CurrentPage > 0
}

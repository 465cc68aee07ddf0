// Package testutil provides testing utilities for the indexer dashboard.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock indexer endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockIndexer is a configurable mock upstream indexer for testing.
type MockIndexer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	LastRequestHeader http.Header
	LastQuery         map[string]string
}

// NewMockIndexer creates a new mock indexer server.
func NewMockIndexer() *MockIndexer {
	mock := &MockIndexer{
		handlers:   make(map[string]http.HandlerFunc),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = map[string]string{
			"page": r.URL.Query().Get("page"),
			"size": r.URL.Query().Get("size"),
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not found"}`))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockIndexer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockIndexer) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockIndexer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockIndexer) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockIndexer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetRecords serves records from path as a page-aware endpoint honouring the
// page and size query parameters.
func (m *MockIndexer) SetRecords(path string, records []map[string]any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, err := strconv.Atoi(r.URL.Query().Get("size"))
		if err != nil || size <= 0 {
			size = 20
		}

		start := min(page*size, len(records))
		end := min(start+size, len(records))
		totalPages := (len(records) + size - 1) / size

		setHealthyHeaders(w)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(NewPageBody(records[start:end], len(records), totalPages)))
	})
}

// SetArray serves records from path as a bare JSON array.
func (m *MockIndexer) SetArray(path string, records []map[string]any) {
	body, _ := json.Marshal(records)
	m.SetResponse(path, NewHealthyResponse(string(body)))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockIndexer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to one path.
func (m *MockIndexer) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockIndexer) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetLastQuery returns the page and size parameters of the most recent request.
func (m *MockIndexer) GetLastQuery() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// NewPageBody renders a page-aware response body.
func NewPageBody(records []map[string]any, totalElements, totalPages int) string {
	if records == nil {
		records = []map[string]any{}
	}
	body, _ := json.Marshal(map[string]any{
		"content":       records,
		"totalElements": totalElements,
		"totalPages":    totalPages,
	})
	return string(body)
}

// MakeRecords builds n records with an id and a numeric value field.
func MakeRecords(n int, field string) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"id":  "rec-" + strconv.Itoa(i),
			field: float64(i + 1),
		}
	}
	return out
}

// NewHealthyResponse creates a standard 200 OK response with rate limit headers.
func NewHealthyResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "100",
			"X-RateLimit-Reset":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.Itoa(retryAfterSeconds),
			"Retry-After":           strconv.Itoa(retryAfterSeconds),
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewBadRequestResponse creates a 400 Bad Request response.
func NewBadRequestResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"error": "invalid page"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

func setHealthyHeaders(w http.ResponseWriter) {
	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
}

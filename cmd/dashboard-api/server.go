package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/indexer-dashboard/pkg/aggregate"
	"github.com/Sternrassler/indexer-dashboard/pkg/client"
	"github.com/Sternrassler/indexer-dashboard/pkg/export"
	"github.com/Sternrassler/indexer-dashboard/pkg/fetch"
	"github.com/Sternrassler/indexer-dashboard/pkg/format"
	"github.com/Sternrassler/indexer-dashboard/pkg/metrics"
	"github.com/Sternrassler/indexer-dashboard/pkg/pagination"
	"github.com/Sternrassler/indexer-dashboard/pkg/ratelimit"
	"github.com/Sternrassler/indexer-dashboard/pkg/record"
)

var apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dashboard_api_requests_total",
	Help: "Total dashboard API requests by route and status",
}, []string{"route", "status"})

// server exposes the fetch coordinators as a JSON API.
type server struct {
	registry *fetch.Registry
	tracker  *ratelimit.Tracker
	redis    *redis.Client // nil when rate limit state is process-local
	batch    pagination.Config
	prefetch int // neighbour pages warmed after a page load
	logger   zerolog.Logger
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", s.listSources)
		r.Get("/cache/stats", s.cacheStats)
		r.Get("/ratelimit", s.rateLimitState)

		r.Route("/sources/{source}", func(r chi.Router) {
			r.Get("/", s.sourceState)
			r.Get("/pages/{page}", s.loadPage)
			r.Post("/next", s.navigate(func(ctx context.Context, c *fetch.Coordinator) error { return c.NextPage(ctx) }))
			r.Post("/prev", s.navigate(func(ctx context.Context, c *fetch.Coordinator) error { return c.PrevPage(ctx) }))
			r.Post("/refetch", s.navigate(func(ctx context.Context, c *fetch.Coordinator) error { return c.Refetch(ctx) }))
			r.Post("/goto/{page}", s.goToPage)
			r.Delete("/cache", s.clearCache)
			r.Get("/stats", s.stats)
			r.Get("/distribution", s.distribution)
			r.Get("/export.csv", s.exportCSV)
		})
	})

	return r
}

func (s *server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		apiRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()

		s.logger.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed: redis unavailable")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *server) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Sources())
}

func (s *server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Pages().Stats())
}

func (s *server) rateLimitState(w http.ResponseWriter, r *http.Request) {
	state, err := s.tracker.GetState(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *server) sourceState(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(c.Snapshot()))
}

func (s *server) loadPage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 0 {
		writeError(w, http.StatusBadRequest, errors.New("page must be a non-negative integer"))
		return
	}

	_, err = c.Load(r.Context(), page)
	if err == nil && s.prefetch > 0 {
		s.warmNeighbours(c, page)
	}
	s.writeState(w, c, err)
}

func (s *server) goToPage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("page must be an integer"))
		return
	}
	s.writeState(w, c, c.GoToPage(r.Context(), page))
}

func (s *server) navigate(action func(context.Context, *fetch.Coordinator) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.coordinator(w, r)
		if !ok {
			return
		}
		s.writeState(w, c, action(r.Context(), c))
	}
}

func (s *server) clearCache(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	scope, err := fetch.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": c.ClearCache(scope)})
}

// statsResponse is an aggregate snapshot with display strings.
type statsResponse struct {
	aggregate.Snapshot
	Distinct *uint64           `json:"distinct,omitempty"`
	Matching *int              `json:"matching,omitempty"`
	Display  map[string]string `json:"display"`
}

// stats computes statistics over the currently loaded page:
//
//	?field=stake&top=5&distinct=owner&flag=isVerified
func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	field := q.Get("field")
	if field == "" {
		writeError(w, http.StatusBadRequest, errors.New("field is required"))
		return
	}
	top, _ := strconv.Atoi(q.Get("top"))

	records := c.Snapshot().Data
	snap := aggregate.Compute(records, record.Fields(strings.Split(field, "+")...), top)

	resp := statsResponse{
		Snapshot: snap,
		Display: map[string]string{
			"sum":     format.Magnitude(snap.Sum),
			"average": format.Magnitude(snap.Average),
			"max":     format.Magnitude(snap.Max),
			"count":   format.Grouped(snap.Count),
		},
	}
	if d := q.Get("distinct"); d != "" {
		n := aggregate.DistinctCount(records, record.Field(d))
		resp.Distinct = &n
	}
	if f := q.Get("flag"); f != "" {
		n := aggregate.CountWhere(records, func(rec record.Record) bool {
			v, _ := rec.Lookup(f)
			return record.Truthy(v)
		})
		resp.Matching = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

// distribution groups the loaded page: ?group=platform&value=liqUsd
func (s *server) distribution(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if q.Get("group") == "" || q.Get("value") == "" {
		writeError(w, http.StatusBadRequest, errors.New("group and value are required"))
		return
	}

	totals := aggregate.GroupTotals(c.Snapshot().Data, record.Field(q.Get("group")), record.Field(q.Get("value")))
	writeJSON(w, http.StatusOK, aggregate.Distribution(totals))
}

// exportCSV writes the current page, or every page with ?scope=all, as CSV.
// ?columns=name,stats.marketCap picks columns; otherwise the first record's
// keys are used.
func (s *server) exportCSV(w http.ResponseWriter, r *http.Request) {
	c, ok := s.coordinator(w, r)
	if !ok {
		return
	}

	var records []record.Record
	switch r.URL.Query().Get("scope") {
	case "", "page":
		records = c.Snapshot().Data
	case "all":
		pages, err := pagination.NewBatchFetcher(c, s.batch).FetchAllPages(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		records = pagination.Flatten(pages)
	default:
		writeError(w, http.StatusBadRequest, errors.New("scope must be page or all"))
		return
	}

	columns := export.DefaultColumns(records)
	if cols := r.URL.Query().Get("columns"); cols != "" {
		columns = columns[:0]
		for _, name := range strings.Split(cols, ",") {
			columns = append(columns, export.Column{Header: name, Selector: record.Field(name)})
		}
	}
	if len(columns) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no data to export"))
		return
	}

	table, err := export.Build(records, columns)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(c.Source().Name, time.Now())+`"`)
	if err := table.WriteCSV(w); err != nil {
		s.logger.Warn().Err(err).Str("source", c.Source().Name).Msg("CSV export failed")
	}
}

// warmNeighbours prefetches pages around page in the background.
func (s *server) warmNeighbours(c *fetch.Coordinator, page int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.batch.Timeout)
		defer cancel()
		if err := pagination.NewBatchFetcher(c, s.batch).WarmAround(ctx, page, s.prefetch); err != nil {
			s.logger.Debug().Err(err).Str("source", c.Source().Name).Int("page", page).Msg("Prefetch failed")
		}
	}()
}

func (s *server) coordinator(w http.ResponseWriter, r *http.Request) (*fetch.Coordinator, bool) {
	c, err := s.registry.Coordinator(chi.URLParam(r, "source"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	return c, true
}

// writeState responds with the coordinator state. A failed load still
// returns the state, which carries the error for the view.
func (s *server) writeState(w http.ResponseWriter, c *fetch.Coordinator, err error) {
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	writeJSON(w, status, newStateResponse(c.Snapshot()))
}

// stateResponse is a source state with the navigation hints a pager needs.
type stateResponse struct {
	fetch.State
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

func newStateResponse(s fetch.State) stateResponse {
	return stateResponse{State: s, HasNext: s.HasNext(), HasPrev: s.HasPrev()}
}

func statusFor(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch client.KindOf(err) {
	case client.KindRateLimited:
		return http.StatusTooManyRequests
	case client.KindClient:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/indexer-dashboard/pkg/cache"
)

var (
	// ErrUnknownSource is returned for a source name that is not registered.
	ErrUnknownSource = errors.New("unknown source")
)

// Registry owns the shared page cache and transport and hands out one
// Coordinator per source, created on first use.
type Registry struct {
	transport Transport
	pages     *cache.PageCache
	cfg       Config
	logger    zerolog.Logger

	sources []Source
	byName  map[string]Source

	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

// NewRegistry validates sources and creates a registry.
func NewRegistry(sources []Source, transport Transport, pages *cache.PageCache, cfg Config, logger zerolog.Logger) (*Registry, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if pages == nil {
		return nil, fmt.Errorf("page cache is required")
	}

	byName := make(map[string]Source, len(sources))
	for _, src := range sources {
		if err := src.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[src.Name]; dup {
			return nil, fmt.Errorf("duplicate source %q", src.Name)
		}
		byName[src.Name] = src
	}

	return &Registry{
		transport:    transport,
		pages:        pages,
		cfg:          cfg,
		logger:       logger,
		sources:      append([]Source(nil), sources...),
		byName:       byName,
		coordinators: make(map[string]*Coordinator),
	}, nil
}

// Coordinator returns the coordinator for name, creating it on first use.
func (r *Registry) Coordinator(name string) (*Coordinator, error) {
	src, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.coordinators[name]; ok {
		return c, nil
	}

	c, err := New(src, r.transport, r.pages, r.cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.coordinators[name] = c
	return c, nil
}

// Sources returns the registered sources in declaration order.
func (r *Registry) Sources() []Source {
	return append([]Source(nil), r.sources...)
}

// Pages returns the shared page cache.
func (r *Registry) Pages() *cache.PageCache {
	return r.pages
}

// active returns coordinators that have loaded at least once.
func (r *Registry) active() []*Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Coordinator, 0, len(r.coordinators))
	for _, src := range r.sources {
		c, ok := r.coordinators[src.Name]
		if ok && c.Snapshot().Status != StatusIdle {
			out = append(out, c)
		}
	}
	return out
}

// RefreshAll refetches the current page of every active source. Sources
// with a load in flight are skipped so a refresh never supersedes the
// page a user is navigating to. Failures are recorded in each source's
// state and returned joined.
func (r *Registry) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, c := range r.active() {
		if c.Snapshot().Status == StatusLoading {
			r.logger.Debug().
				Str("source", c.Source().Name).
				Msg("Skipping refresh, load in progress")
			continue
		}
		if err := c.Refetch(ctx); err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", c.Source().Name, err))
		}
	}
	return errors.Join(errs...)
}

// InvalidateAll drops every cached page.
func (r *Registry) InvalidateAll() int {
	return r.pages.Invalidate(cache.AllSources())
}

package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/indexer-dashboard/pkg/fetch"
)

var refreshRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dashboard_refresh_runs_total",
	Help: "Total scheduled refresh runs by result",
}, []string{"result"})

// refresher refetches the visible page of every active source.
type refresher struct {
	registry *fetch.Registry
	timeout  time.Duration
	logger   zerolog.Logger
}

func (rf *refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), rf.timeout)
	defer cancel()

	start := time.Now()
	if err := rf.registry.RefreshAll(ctx); err != nil {
		refreshRunsTotal.WithLabelValues("error").Inc()
		rf.logger.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Scheduled refresh failed")
		return
	}
	refreshRunsTotal.WithLabelValues("success").Inc()
	rf.logger.Info().Dur("duration", time.Since(start)).Msg("Scheduled refresh complete")
}

// schedule registers rf on a new cron scheduler. An empty spec returns nil.
func (rf *refresher) schedule(spec string) (*cron.Cron, error) {
	if spec == "" {
		return nil, nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, rf.run); err != nil {
		return nil, err
	}
	return c, nil
}

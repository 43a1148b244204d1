// Package app wires the store, query layer, gate, catalog, cache and
// dispatcher from process settings. The server and the CLI share it.
package app

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/georgeshao/fleetctx/internal/audit"
	"github.com/georgeshao/fleetctx/internal/cache"
	"github.com/georgeshao/fleetctx/internal/catalog"
	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/dispatcher"
	"github.com/georgeshao/fleetctx/internal/gate"
	"github.com/georgeshao/fleetctx/internal/metrics"
	"github.com/georgeshao/fleetctx/internal/planner"
	"github.com/georgeshao/fleetctx/internal/query"
	"github.com/georgeshao/fleetctx/internal/storage/pebbledb"
	"github.com/georgeshao/fleetctx/internal/storage/sqlite"
)

const (
	memoryAuditCapacity = 1000
	cacheSweepInterval  = time.Minute
)

type App struct {
	Settings   config.Settings
	Store      *sqlite.SQLiteStore
	Audit      audit.Log
	Query      *query.Service
	Gate       *gate.Gate
	Catalog    *catalog.Registry
	Cache      *cache.Cache
	Dispatcher *dispatcher.Dispatcher
	Metrics    *metrics.Metrics

	closers []func() error
}

// New builds the component graph. reg may be nil to skip metrics.
func New(s config.Settings, logger *logrus.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{Settings: s}

	store, err := sqlite.New(s.DatabasePath, sqlite.Options{
		QueryOnly:    s.QueryOnly,
		MaxOpenConns: s.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	// The first log in the tee serves reads, so durable logs go first.
	var logs audit.Tee
	if s.AuditPath != "" {
		durable, err := pebbledb.New(s.AuditPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		logs = append(logs, durable)
		a.closers = append(a.closers, durable.Close)
	}
	if s.AuditJSONL != "" {
		sink, err := audit.NewJSONFile(s.AuditJSONL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open audit file: %w", err)
		}
		logs = append(logs, sink)
	}
	logs = append(logs, audit.NewMemory(memoryAuditCapacity))
	a.Audit = logs

	a.Query = query.NewService(store, query.NewClock(s.Clock, store), s.Policy)
	a.Gate = gate.New(store, a.Audit, s.Policy, gate.WithMetrics(a.Metrics), gate.WithLogger(logger))
	a.Catalog = catalog.New(a.Query, a.Gate, s.Policy)

	a.Cache = cache.New(cacheSweepInterval)
	a.closers = append(a.closers, func() error { a.Cache.Stop(); return nil })

	var p dispatcher.Planner
	if s.PlannerURL != "" {
		p = planner.NewClient(s.PlannerURL, s.PlannerTimeout)
	}
	a.Dispatcher = dispatcher.New(a.Catalog, p, a.Cache, s.Policy,
		dispatcher.WithMetrics(a.Metrics),
		dispatcher.WithLogger(logger),
	)

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// NewLogger returns a logrus logger at the named level.
func NewLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

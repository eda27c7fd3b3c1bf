// Package engine composes the project memory store, the team store, the
// permission engine, recall and analytics into one handle.
//
// Team mutations made through the Engine are permission-checked and
// audited. Project memory operations are not gated.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/HendryAvila/devmem/internal/analytics"
	"github.com/HendryAvila/devmem/internal/config"
	"github.com/HendryAvila/devmem/internal/memory"
	"github.com/HendryAvila/devmem/internal/permission"
	"github.com/HendryAvila/devmem/internal/recall"
	"github.com/HendryAvila/devmem/internal/team"
	"github.com/HendryAvila/devmem/internal/telemetry"
)

// Engine is the composed memory and team knowledge engine.
type Engine struct {
	cfg config.Config

	Memory      *memory.Store
	Team        *team.Store
	Permissions *permission.Engine
	Recall      *recall.Engine
	Analytics   *analytics.Engine

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

type options struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
	repo    permission.Repository
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the structured logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTelemetry attaches metrics instruments and a tracer.
func WithTelemetry(m *telemetry.Metrics, tracer trace.Tracer) Option {
	return func(o *options) {
		o.metrics = m
		o.tracer = tracer
	}
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides id generation in every component.
func WithIDGenerator(gen func() string) Option {
	return func(o *options) { o.newID = gen }
}

// WithPermissionRepository replaces the in-memory rule and audit store.
func WithPermissionRepository(r permission.Repository) Option {
	return func(o *options) { o.repo = r }
}

// Open initializes the project store described by cfg, migrates the team
// relations and wires the engines.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Engine, error) {
	o := options{
		logger:  telemetry.Discard(),
		metrics: telemetry.NoopMetrics(),
		tracer:  telemetry.Noop().Tracer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.repo == nil {
		o.repo = permission.NewMemoryRepository(cfg.Audit.MaxEntries)
	}

	memOpts := []memory.Option{memory.WithLogger(o.logger)}
	permOpts := []permission.Option{
		permission.WithLogger(o.logger),
		permission.WithTelemetry(o.metrics, o.tracer),
	}
	anaOpts := []analytics.Option{}
	if o.now != nil {
		memOpts = append(memOpts, memory.WithClock(o.now))
		permOpts = append(permOpts, permission.WithClock(o.now))
		anaOpts = append(anaOpts, analytics.WithClock(o.now))
	}
	if o.newID != nil {
		memOpts = append(memOpts, memory.WithIDGenerator(o.newID))
		permOpts = append(permOpts, permission.WithIDGenerator(o.newID))
	}

	mem := memory.New(cfg.MemoryConfig(), memOpts...)
	if err := mem.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize memory store: %w", err)
	}
	ts := team.New(mem, cfg.TeamID,
		team.WithSearchLimit(cfg.Team.SearchLimit),
		team.WithLogger(o.logger),
	)
	if err := ts.Migrate(ctx); err != nil {
		_ = mem.Close()
		return nil, fmt.Errorf("migrate team store: %w", err)
	}

	e := &Engine{
		cfg:         cfg,
		Memory:      mem,
		Team:        ts,
		Permissions: permission.New(ts, o.repo, permOpts...),
		Recall: recall.New(mem,
			recall.WithLimits(cfg.Recall.RecentTurns, cfg.Recall.PerTokenLimit, cfg.Recall.MaxFragments),
			recall.WithLogger(o.logger),
			recall.WithTelemetry(o.metrics, o.tracer),
		),
		Analytics: analytics.New(ts, anaOpts...),
		logger:    o.logger,
		metrics:   o.metrics,
	}
	o.logger.Info("engine ready", "team_id", cfg.TeamID, "db", cfg.MemoryConfig().DBPath())
	return e, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.Memory.Close()
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() config.Config { return e.cfg }

// Logger returns the shared logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Metrics returns the shared instruments.
func (e *Engine) Metrics() *telemetry.Metrics { return e.metrics }

// RecallContext recalls fragments for prompt and renders them.
func (e *Engine) RecallContext(ctx context.Context, prompt string, level memory.DetailLevel) ([]recall.Fragment, string, error) {
	frags, err := e.Recall.Recall(ctx, prompt)
	if err != nil {
		return nil, "", err
	}
	return frags, recall.Format(frags, level), nil
}

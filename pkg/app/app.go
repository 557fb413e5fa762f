// Package app assembles the orchestrator, monitor and workers from a config.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfleet/openfleet/pkg/activity"
	"github.com/openfleet/openfleet/pkg/config"
	"github.com/openfleet/openfleet/pkg/engine"
	"github.com/openfleet/openfleet/pkg/fleet"
	"github.com/openfleet/openfleet/pkg/monitor"
	"github.com/openfleet/openfleet/pkg/policy"
	"github.com/openfleet/openfleet/pkg/scoring"
	"github.com/openfleet/openfleet/pkg/stores"
	"github.com/openfleet/openfleet/pkg/telemetry"
	"github.com/openfleet/openfleet/pkg/workers"
)

// App is a fully wired OpenFleet instance.
type App struct {
	Config       *config.Config
	Telemetry    *telemetry.Telemetry
	Fleet        *fleet.MemoryProvider
	Scoring      *scoring.Engine
	Monitor      *monitor.Monitor
	Rules        *policy.RuleEngine
	Recorder     *activity.Recorder
	Orchestrator *engine.Orchestrator

	// Store is nil unless the archive is enabled.
	Store *stores.SQLiteStore

	loader *policy.Loader
	logger zerolog.Logger
}

// Option adjusts assembly.
type Option func(*options)

type options struct {
	telemetry *telemetry.Telemetry
	clock     func() time.Time
}

// WithTelemetry uses t instead of building telemetry from the config.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *options) { o.telemetry = t }
}

// WithClock pins every component to clock.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// New builds an App from cfg. The archive, when enabled, is opened and migrated.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tel := o.telemetry
	if tel == nil {
		var err error
		if tel, err = telemetry.NewTelemetry(&cfg.Telemetry); err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
	}
	logger := tel.Logger.Zerolog()

	a := &App{
		Config:    cfg,
		Telemetry: tel,
		loader:    policy.NewLoader(logger),
		logger:    tel.Logger.Component("app"),
	}

	if err := a.assemble(ctx, o); err != nil {
		if a.Store != nil {
			_ = a.Store.Close()
		}
		if o.telemetry == nil {
			_ = tel.Shutdown(ctx)
		}
		return nil, err
	}

	a.logger.Debug().
		Int("vehicles", len(a.Fleet.VehicleIDs())).
		Int("service_centers", len(cfg.ServiceCenters)).
		Bool("archive", a.Store != nil).
		Msg("Application assembled")

	return a, nil
}

func (a *App) assemble(ctx context.Context, o options) error {
	cfg := a.Config
	tel := a.Telemetry
	logger := tel.Logger.Zerolog()

	if err := a.initFleet(); err != nil {
		return err
	}

	engineScoring, err := scoring.NewEngine(cfg.Scoring)
	if err != nil {
		return err
	}
	a.Scoring = engineScoring

	if err := a.initMonitor(ctx, o.clock); err != nil {
		return err
	}

	if cfg.Store.Enabled {
		if err := a.initStore(ctx); err != nil {
			return err
		}
	}

	recOpts := []activity.Option{activity.WithMetrics(tel.Metrics)}
	if o.clock != nil {
		recOpts = append(recOpts, activity.WithClock(o.clock))
	}
	if a.Store != nil {
		recOpts = append(recOpts, activity.WithSink(a.Store))
	}
	a.Recorder = activity.NewRecorder(cfg.Monitor.ActivityCapacity, a.Monitor, logger, recOpts...)

	reg := engine.NewWorkerRegistry()
	err = workers.RegisterAll(reg, workers.Deps{
		Provider:       a.Fleet,
		History:        a.Fleet,
		Scoring:        a.Scoring,
		Recorder:       a.Recorder,
		Telemetry:      tel,
		ServiceCenters: cfg.ServiceCenters,
		Clock:          o.clock,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to register workers: %w", err)
	}

	orchOpts := []engine.Option{
		engine.WithTelemetry(tel),
		engine.WithIdentity(cfg.Monitor.Orchestrator),
	}
	if o.clock != nil {
		orchOpts = append(orchOpts, engine.WithClock(o.clock))
	}
	if a.Store != nil {
		orchOpts = append(orchOpts, engine.WithArchiver(a.Store))
	}
	a.Orchestrator = engine.NewOrchestrator(reg, a.Recorder, logger, orchOpts...)
	return nil
}

func (a *App) initFleet() error {
	if a.Config.Fleet.DataFile == "" {
		a.Fleet = fleet.NewMemoryProvider()
		return nil
	}
	p, err := fleet.LoadDataset(a.Config.Fleet.DataFile)
	if err != nil {
		return fmt.Errorf("failed to load fleet data: %w", err)
	}
	a.Fleet = p
	return nil
}

func (a *App) initMonitor(ctx context.Context, clock func() time.Time) error {
	cfg := a.Config
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	set, rules, err := a.loader.Load(cfg.PolicySources())
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	a.Rules = policy.NewRuleEngine(a.Telemetry.Logger.Zerolog())
	if err := a.Rules.Replace(ctx, rules); err != nil {
		return err
	}

	a.Monitor = monitor.New(monitor.Config{
		AnomalyCapacity: cfg.Monitor.AnomalyCapacity,
		Location:        loc,
		Clock:           clock,
	}, set, a.Telemetry.Logger.Zerolog())
	if len(rules) > 0 {
		a.Monitor.SetRuleEngine(a.Rules)
	}

	events := a.Telemetry.Events
	a.Monitor.OnAnomaly(func(rec monitor.AnomalyRecord) {
		types := make([]string, 0, len(rec.Findings))
		for _, t := range rec.Types() {
			types = append(types, string(t))
		}
		_ = events.PublishAnomaly(rec.ID, rec.Actor, rec.RiskScore, types)
	})
	a.Monitor.OnCritical(func(rec monitor.AnomalyRecord) {
		details := make([]string, 0, len(rec.Findings))
		for _, f := range rec.Findings {
			if f.Severity == monitor.SeverityCritical {
				details = append(details, f.Detail)
			}
		}
		_ = events.PublishCriticalAlert(rec.ID, rec.Actor, strings.Join(details, "; "))
	})
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	if dir := filepath.Dir(a.Config.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}

	store, err := stores.NewSQLiteStore(a.Config.Store.Config)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	a.Store = store
	a.Monitor.OnAnomaly(store.AnomalyHook(a.logger))
	return nil
}

// WatchPolicies reloads actor policies and rules whenever their files change,
// until ctx is cancelled. It is a no-op when neither a policy file nor a rules
// directory is configured.
func (a *App) WatchPolicies(ctx context.Context) error {
	src := a.Config.PolicySources()
	if src.PolicyFile == "" && src.RulesDir == "" {
		return nil
	}
	return a.loader.Watch(ctx, src, func(set *policy.Set, rules []policy.Rule) error {
		if err := a.Rules.Replace(ctx, rules); err != nil {
			return err
		}
		a.Monitor.SetPolicies(set)
		if len(rules) > 0 {
			a.Monitor.SetRuleEngine(a.Rules)
		}
		_ = a.Telemetry.Events.PublishPoliciesReloaded(set.Len(), len(rules))
		return nil
	})
}

// Close stops watchers, flushes telemetry and closes the archive.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.loader.StopWatching(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

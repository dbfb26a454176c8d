// Package app wires the quest engine together from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/alem-hub/quest-engine/config"
	"github.com/alem-hub/quest-engine/internal/application/engine"
	"github.com/alem-hub/quest-engine/internal/application/events"
	"github.com/alem-hub/quest-engine/internal/application/generator"
	"github.com/alem-hub/quest-engine/internal/domain/quest"
	"github.com/alem-hub/quest-engine/internal/infrastructure/messaging"
	"github.com/alem-hub/quest-engine/internal/infrastructure/persistence"
	"github.com/alem-hub/quest-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/quest-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/quest-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/quest-engine/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/quest-engine/internal/infrastructure/scheduler"
	"github.com/alem-hub/quest-engine/pkg/timeutil"
)

const tracerName = "github.com/alem-hub/quest-engine"

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// Options carries the host-provided collaborators. The identity layer lives
// outside this module, so both are optional.
type Options struct {
	Actors   quest.ActorResolver
	Profiles quest.ProfileSource

	// Logger overrides the logger built from config.
	Logger *slog.Logger
	// Clock overrides the system clock.
	Clock timeutil.Clock
}

// App holds the wired components.
type App struct {
	Config  *config.Config
	Engine  *engine.Engine
	Events  *events.Publisher
	Bus     *messaging.InMemoryEventBus
	Gateway *persistence.ScopedGateway

	// Scheduler renews sections in the background. Nil when
	// QUESTS_RENEW_INTERVAL is zero.
	Scheduler *scheduler.Scheduler

	store  persistence.Store
	logger *slog.Logger
}

// New builds the application from cfg. The engine is not initialized; call
// Engine.Initialize once the actor is known.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = setupLogger(cfg)
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	log.Info("starting quest engine",
		"name", cfg.App.Name,
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"backend", cfg.Storage.Backend,
		"timezone", loc.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var now func() time.Time
	if opts.Clock != nil {
		now = opts.Clock.Now
	}
	gateway := persistence.NewScopedGateway(store, persistence.GatewayConfig{
		KeyPrefix:    cfg.Storage.KeyPrefix,
		SaveAttempts: cfg.Storage.SaveAttempts,
		SaveDelay:    cfg.Storage.SaveDelay,
		Logger:       log,
		Now:          now,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Messaging
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.HistorySize = cfg.Quests.EventHistorySize
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// Generators and engine
	// ─────────────────────────────────────────────────────────────────────────
	genOpts := generator.Options{
		Policy:   policyFrom(cfg.Quests),
		Profiles: opts.Profiles,
		Location: loc,
		Logger:   log,
	}

	eng := engine.New(engine.Options{
		Bus:       bus,
		Gateway:   gateway,
		Generator: generator.NewPersonalizedGenerator(genOpts),
		Fallback:  generator.NewTemplateGenerator(genOpts),
		Actors:    opts.Actors,
		Profiles:  opts.Profiles,
		Clock:     opts.Clock,
		Tracer:    tracer(cfg.Observability),
		Logger:    log,
	})

	a := &App{
		Config:  cfg,
		Engine:  eng,
		Events:  events.NewPublisher(bus, log),
		Bus:     bus,
		Gateway: gateway,
		store:   store,
		logger:  log,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Background renewal
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Quests.RenewInterval > 0 {
		schedCfg := scheduler.DefaultConfig()
		schedCfg.Logger = log
		a.Scheduler = scheduler.New(schedCfg)
		if err := a.Scheduler.Register(scheduler.NewRenewSectionsJob(eng), scheduler.Every(cfg.Quests.RenewInterval)); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("register renewal job: %w", err)
		}
	}

	return a, nil
}

// Start launches background jobs. The engine itself needs no start.
func (a *App) Start(ctx context.Context) error {
	if a.Scheduler == nil {
		return nil
	}
	return a.Scheduler.Start(ctx)
}

// Close stops background jobs, deinitializes the engine and releases the
// backend.
func (a *App) Close() error {
	a.logger.Info("shutting down quest engine")

	if a.Scheduler != nil && a.Scheduler.IsRunning() {
		_ = a.Scheduler.Stop()
	}
	a.Engine.Deinitialize()

	if err := a.Bus.Close(); err != nil {
		a.logger.Warn("failed to close event bus", "error", err)
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (persistence.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.NewStore(), nil

	case config.BackendSQLite:
		log.Info("opening sqlite database", "path", cfg.SQLite.Path)
		store, err := sqlite.NewSnapshotStore(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil

	case config.BackendPostgres:
		log.Info("connecting to database...")
		pgCfg := postgres.DefaultConfig()
		pgCfg.MaxConns = cfg.Database.MaxConns
		pgCfg.MinConns = cfg.Database.MinConns
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				conn.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		log.Info("database connection established")
		return postgres.NewSnapshotStore(conn), nil

	case config.BackendRedis:
		rCfg := redis.DefaultConfig()
		rCfg.Host = cfg.Redis.Host
		rCfg.Port = cfg.Redis.Port
		rCfg.Password = cfg.Redis.Password
		rCfg.DB = cfg.Redis.DB
		rCfg.PoolSize = cfg.Redis.PoolSize
		rCfg.MinIdleConns = cfg.Redis.MinIdleConns
		rCfg.DialTimeout = cfg.Redis.DialTimeout
		rCfg.ReadTimeout = cfg.Redis.ReadTimeout
		rCfg.WriteTimeout = cfg.Redis.WriteTimeout
		rCfg.SnapshotTTL = cfg.Redis.SnapshotTTL

		log.Info("connecting to redis...", "addr", rCfg.Addr())
		cache, err := redis.NewCache(ctx, rCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return redis.NewSnapshotStore(cache), nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func policyFrom(q config.QuestsConfig) generator.Policy {
	return generator.Policy{
		QuestsPerSection: q.PerSection,
		AttemptCap:       q.AttemptCap,
		LongCycleFactor:  q.LongCycleFactor,
		StarMultiplier:   q.StarMultiplier,
		XPMultiplier:     q.XPMultiplier,
		ShortCycleTitle:  q.ShortCycleTitle,
		LongCycleTitle:   q.LongCycleTitle,
	}
}

// tracer uses the global provider when tracing is on, so the host decides
// where spans go.
func tracer(cfg config.ObservabilityConfig) trace.Tracer {
	if cfg.TracingEnabled {
		return otel.Tracer(tracerName)
	}
	return noop.NewTracerProvider().Tracer(tracerName)
}

// setupLogger builds the root logger.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Observability.LogLevel),
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.IsProduction() || cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("app", cfg.App.Name)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/platform/gemini"
	"github.com/phrazzld/genqueue/internal/platform/metrics"
	"github.com/phrazzld/genqueue/internal/platform/natsbus"
	"github.com/phrazzld/genqueue/internal/platform/postgres"
	"github.com/phrazzld/genqueue/internal/redact"
	"github.com/phrazzld/genqueue/internal/task"
)

// application holds the shared dependencies of the server and releases them
// on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	manager   *task.Manager
	runner    *task.Runner
	emitter   *events.InMemoryEventEmitter
	collector *metrics.Collector

	// optional, nil when not configured
	pool   *pgxpool.Pool
	ledger *postgres.CreditLedger
	nc     *nats.Conn
}

// newApplication wires the task manager and every configured event handler.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		emitter: events.NewInMemoryEventEmitter(logger),
	}

	resolver, err := buildResolver(ctx, cfg.Resolver, logger)
	if err != nil {
		return nil, err
	}

	managerConfig := newManagerConfig(cfg)
	if managerConfig.AsyncResolution && !cfg.Scheduler.AsyncResolution {
		logger.Warn("enabling async resolution for network resolver backend",
			"resolver", cfg.Resolver.Backend)
	}
	app.manager = task.NewManager(managerConfig, resolver, logger, task.WithEmitter(app.emitter))

	app.runner = task.NewRunner(app.manager, cfg.Scheduler.TickInterval, logger)
	app.emitter.RegisterHandler(app.runner)

	app.collector = metrics.NewCollector(app.manager, app.manager.MaxConcurrentTasks())
	app.emitter.RegisterHandler(app.collector)

	if cfg.Events.NATSURL != "" {
		app.nc, err = natsbus.Connect(cfg.Events.NATSURL, logger)
		if err != nil {
			app.cleanup()
			return nil, err
		}
		app.emitter.RegisterHandler(natsbus.NewPublisher(app.nc, cfg.Events.SubjectPrefix, logger))
		logger.Info("publishing task events to nats",
			"url", redact.URL(cfg.Events.NATSURL),
			"subject_prefix", cfg.Events.SubjectPrefix)
	}

	if cfg.Database.URL != "" {
		app.pool, err = postgres.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			app.cleanup()
			return nil, err
		}
		app.ledger = postgres.NewCreditLedger(app.pool, postgres.DefaultLedgerBuffer, logger)
		app.ledger.Start()
		app.emitter.RegisterHandler(app.ledger, events.TaskCompleted)
		logger.Info("credit ledger enabled", "database", redact.URL(cfg.Database.URL))
	}

	logger.Info("application initialized",
		"max_concurrent_tasks", app.manager.MaxConcurrentTasks(),
		"tick_interval", cfg.Scheduler.TickInterval,
		"resolver", cfg.Resolver.Backend,
		"async_resolution", managerConfig.AsyncResolution)
	return app, nil
}

// newManagerConfig maps the scheduler settings onto the manager. The gemini
// backend always resolves asynchronously so its network calls and retry
// backoff never run on the tick loop.
func newManagerConfig(cfg *config.Config) task.ManagerConfig {
	return task.ManagerConfig{
		MaxConcurrentTasks: cfg.Scheduler.MaxConcurrentTasks,
		TickInterval:       cfg.Scheduler.TickInterval,
		DefaultMaxRetries:  cfg.Scheduler.DefaultMaxRetries,
		AsyncResolution:    cfg.Scheduler.AsyncResolution || cfg.Resolver.Backend == "gemini",
	}
}

// buildResolver returns the simulated resolver, or for the gemini backend a
// router sending image types to Gemini and the rest to the simulation.
func buildResolver(ctx context.Context, cfg config.ResolverConfig, logger *slog.Logger) (task.Resolver, error) {
	opts := []task.SimulatedOption{
		task.WithSuccessRate(cfg.SuccessRate),
		task.WithArtifactBaseURL(cfg.ArtifactBaseURL),
	}
	if cfg.Seed != 0 {
		opts = append(opts, task.WithSeed(cfg.Seed))
	}
	simulated := task.NewSimulatedResolver(opts...)

	if cfg.Backend != "gemini" {
		return simulated, nil
	}

	store, err := gemini.NewFileStore(cfg.ArtifactDir, cfg.ArtifactBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	gen, err := gemini.NewResolver(ctx, logger, cfg, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini resolver: %w", err)
	}
	return task.NewRoutingResolver(simulated).Route(gen, gemini.Types()...), nil
}

// run starts the scheduler loop and serves HTTP until ctx is cancelled.
func (app *application) run(ctx context.Context) error {
	defer app.cleanup()

	if err := app.runner.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler loop: %w", err)
	}
	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup stops background work and closes connections, newest first.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}
	if app.manager != nil {
		app.manager.Close()
	}
	if app.ledger != nil {
		app.ledger.Stop()
	}
	if app.pool != nil {
		app.pool.Close()
	}
	if app.nc != nil {
		if err := app.nc.Drain(); err != nil {
			app.logger.Warn("failed to drain nats connection", "error", err)
		}
	}
	app.logger.Info("application resources released")
}

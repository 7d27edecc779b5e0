// Package bootstrap assembles the process-level dependencies shared by every
// storefront binary: configuration, logging, the database and Redis handles,
// the metrics registry and signal-driven shutdown.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/instance"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const metricsShutdownTimeout = 5 * time.Second

type Options struct {
	// Kind names the binary in logs and in cfg.Service.Kind.
	Kind string
	// Redis dials Redis as part of Start.
	Redis bool
	// SkipDatabase leaves DB nil and skips dev migrations.
	SkipDatabase bool
}

// Runtime is what a main needs once bootstrap succeeded.
type Runtime struct {
	Kind     string
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	Redis    *redis.Client
	Registry *prometheus.Registry

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Start loads .env and config, then opens the database (running dev
// migrations when enabled) and optionally Redis. On error everything already
// opened is closed again.
func Start(ctx context.Context, opts Options) (rt *Runtime, err error) {
	early := logger.New(logger.Options{ServiceName: opts.Kind})
	if loadErr := godotenv.Load(); loadErr != nil {
		early.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = opts.Kind

	rt = &Runtime{
		Kind:   opts.Kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: opts.Kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
		Registry: prometheus.NewRegistry(),
	}
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close())
			rt = nil
		}
	}()

	if !opts.SkipDatabase {
		rt.DB, err = db.New(ctx, cfg.DB, rt.Logger)
		if err != nil {
			return rt, fmt.Errorf("bootstrap database: %w", err)
		}
		rt.OnClose("database", rt.DB.Close)

		if err = migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
			return rt, fmt.Errorf("dev migrations: %w", err)
		}
	}

	if opts.Redis {
		rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger)
		if err != nil {
			return rt, fmt.Errorf("bootstrap redis: %w", err)
		}
		rt.OnClose("redis", rt.Redis.Close)
	}
	return rt, nil
}

// OnClose registers fn to run on Close. Closers run in reverse order.
func (r *Runtime) OnClose(name string, fn func() error) {
	if fn == nil {
		return
	}
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Close runs every registered closer and joins their errors.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if cerr := c.fn(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c.name, cerr))
		}
	}
	r.closers = nil
	return err
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the process
// identity fields every log line should have.
func (r *Runtime) SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return r.Logger.WithFields(ctx, map[string]any{
		"env":         r.Config.App.Env,
		"serviceKind": r.Kind,
		"instance":    instance.GetID(),
	}), stop
}

// ServeMetrics exposes the registry on cfg.Service.MetricsAddr until ctx
// ends. It is a no-op when no address is configured.
func (r *Runtime) ServeMetrics(ctx context.Context) {
	addr := r.Config.Service.MetricsAddr
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.Logger.Error(ctx, "metrics listener stopped", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	r.Logger.Info(r.Logger.WithField(ctx, "addr", addr), "metrics listener started")
}

// Fatal logs err and exits the process. logg may be nil before the runtime exists.
func Fatal(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		logg = logger.New(logger.Options{})
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file with CONTENTCORE_* environment
// overrides, or from the environment alone.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/artpar/contentcore/adapters/http"
	"github.com/artpar/contentcore/adapters/metrics"
	"github.com/artpar/contentcore/config"
	"github.com/artpar/contentcore/core/runtime"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/storage"
)

// shutdownTimeout bounds how long in-flight requests may take on shutdown.
const shutdownTimeout = 30 * time.Second

// Options provides optional settings for application initialization.
type Options struct {
	// Version is reported by /version.
	Version string

	// Registry receives the Prometheus collectors. A new registry is used
	// when nil, so several apps can live in one process.
	Registry *prometheus.Registry

	// Functions are registered as named hooks before the schema loads.
	Functions map[string]schema.FieldHook
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Store      storage.Store
	Runtime    *runtime.Runtime
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	mu     sync.RWMutex
	config *config.Config
	holder *config.Holder
}

// NewFromFile loads configuration with config.LoadWithFallback and creates
// the application. When the file exists it is watched for changes while
// the app runs.
func NewFromFile(path string, opts Options) (*App, error) {
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		return nil, err
	}

	a, err := New(cfg, opts)
	if err != nil {
		return nil, err
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			holder, err := config.NewHolder(path, a.Logger)
			if err != nil {
				a.Close()
				return nil, err
			}
			holder.OnChange(a.applyConfig)
			a.holder = holder
		}
	}
	return a, nil
}

// New creates and initializes the application from a loaded configuration.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("initializing contentcore")

	a := &App{
		Logger: logger,
		config: cfg,
	}

	store, err := openStore(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.Store = store

	reg := opts.Registry
	if cfg.Metrics.Enabled {
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		a.Metrics = metrics.NewWithRegistry(reg)
		logger.Info().Msg("prometheus metrics enabled")
	}

	rtCfg := runtime.Config{Logger: logger}
	if a.Metrics != nil {
		rtCfg.Metrics = a.Metrics
	}
	a.Runtime = runtime.New(store, rtCfg)

	for name, fn := range opts.Functions {
		a.Runtime.RegisterFunction(name, fn)
	}
	RegisterHooks(a.Runtime, logger)

	s, err := BuildSchema(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.Runtime.Load(context.Background(), s); err != nil {
		a.Close()
		return nil, fmt.Errorf("load schema: %w", err)
	}

	routerCfg := apihttp.RouterConfig{
		Metrics:     a.Metrics,
		MetricsPath: cfg.Metrics.Path,
		Version:     opts.Version,
		Timeout:     cfg.Server.RequestTimeout,
	}
	if reg != nil {
		routerCfg.Gatherer = reg
	}
	if hc, ok := store.(apihttp.HealthChecker); ok {
		routerCfg.Health = apihttp.NewHealthHandler(hc)
	}
	router := apihttp.NewRouter(apihttp.NewHandler(a.Runtime, logger), logger, routerCfg)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.config
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts
// down gracefully. The config file and the schema directory are watched
// from before the server starts.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.holder.WatchSignals()
	}

	if a.Config().Schema.Watch {
		watcher, err := newSchemaWatcher(a.Config().Schema.Dir, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("schema watch disabled")
		} else {
			g.Go(func() error {
				return watcher.run(ctx, func() {
					if err := a.ReloadSchema(ctx); err != nil {
						a.Logger.Error().Err(err).Msg("schema reload failed, keeping old schema")
					}
				})
			})
		}
	}

	g.Go(func() error {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
		return nil
	})

	return g.Wait()
}

// ReloadSchema re-reads the schema directory and replaces the registered
// collections and globals. On failure the previous schema stays active.
func (a *App) ReloadSchema(ctx context.Context) error {
	s, err := BuildSchema(a.Config())
	if err == nil {
		err = a.Runtime.Reload(ctx, s)
	}
	if a.Metrics != nil {
		a.Metrics.ObserveReload(err)
	}
	return err
}

// applyConfig takes over the reloadable part of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	a.mu.Lock()
	old := a.config
	a.config = cfg
	a.mu.Unlock()

	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if old.Schema.Dir != cfg.Schema.Dir || !sameNestedDocs(old.Plugins.NestedDocs, cfg.Plugins.NestedDocs) {
		if err := a.ReloadSchema(context.Background()); err != nil {
			a.Logger.Error().Err(err).Msg("schema reload failed, keeping old schema")
		}
	}
}

// Close releases the store and stops watching the config file.
func (a *App) Close() error {
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("store close error")
			return err
		}
	}
	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "sqlite":
		store, err := storage.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.HealthCheck(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/apiward/adapters/clock"
	apihttp "github.com/artpar/apiward/adapters/http"
	"github.com/artpar/apiward/adapters/idgen"
	"github.com/artpar/apiward/adapters/memory"
	"github.com/artpar/apiward/adapters/metrics"
	"github.com/artpar/apiward/adapters/netmon"
	"github.com/artpar/apiward/adapters/sqlite"
	"github.com/artpar/apiward/app"
	"github.com/artpar/apiward/config"
	"github.com/artpar/apiward/domain/bucket"
	"github.com/artpar/apiward/domain/cachepolicy"
	"github.com/artpar/apiward/ports"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Governor   *app.Governor
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	holder  *config.Holder
	db      *sqlite.DB
	monitor *netmon.Monitor
}

// New creates and initializes the application from a loaded configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("upstream", cfg.Upstream.URL).
		Int("max_requests", cfg.RateLimit.MaxRequests).
		Int("window_secs", cfg.RateLimit.WindowSecs).
		Msg("initializing apiward")

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	upstream, err := apihttp.NewClient(apihttp.ClientConfig{
		BaseURL:         cfg.Upstream.URL,
		Timeout:         cfg.Upstream.Timeout,
		MaxIdleConns:    cfg.Upstream.MaxIdleConns,
		IdleConnTimeout: cfg.Upstream.IdleConnTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init upstream: %w", err)
	}

	cache, err := a.initCacheStore(cfg.CacheStore)
	if err != nil {
		return nil, fmt.Errorf("init cache store: %w", err)
	}

	monitor := netmon.New(logger)
	monitor.ProbeAddr = cfg.Network.ProbeAddr
	if cfg.Network.ProbeTimeout > 0 {
		monitor.ProbeTimeout = cfg.Network.ProbeTimeout
	}
	a.monitor = monitor

	realClock := clock.Real{}
	limiter := app.NewRateLimiter(
		bucket.Config{
			Capacity: cfg.RateLimit.MaxRequests,
			Window:   cfg.RateLimit.Window(),
		},
		app.LimiterDeps{
			Clock:   realClock,
			Sleeper: realClock,
			Logger:  logger,
			Metrics: a.Metrics,
		},
	)

	a.Governor = app.NewGovernor(app.GovernorDeps{
		Limiter:      limiter,
		Upstream:     upstream,
		Connectivity: monitor,
		Cache:        cache,
		Clock:        realClock,
		IDGen:        idgen.UUID{},
		Logger:       logger,
		Metrics:      a.Metrics,
	}, BuildTable(cfg.CachePolicy))

	a.initHTTPServer(cfg)

	return a, nil
}

// NewWithHotReload creates the application from a config file and watches
// it for changes. Rate limits and cache policy apply without restart.
func NewWithHotReload(path string) (*App, error) {
	holder, err := config.NewHolder(path, setupLogger(config.LoggingConfig{Level: "info", Format: "json"}))
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get())
	if err != nil {
		holder.Stop()
		return nil, err
	}
	a.holder = holder

	holder.OnChange(func(cfg *config.Config) {
		a.ApplyConfig(cfg)
	})

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	holder.WatchSignals()

	return a, nil
}

// ApplyConfig applies the reloadable parts of a new configuration.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.Governor.Limiter().UpdateConfig(bucket.Config{
		Capacity: cfg.RateLimit.MaxRequests,
		Window:   cfg.RateLimit.Window(),
	})
	a.Governor.UpdateTable(BuildTable(cfg.CachePolicy))
	a.Config = cfg

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
	}
	a.Logger.Info().Msg("configuration applied")
}

func (a *App) initCacheStore(cfg config.CacheStoreConfig) (ports.CacheStore, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		a.db = db
		a.Logger.Info().Str("path", cfg.Path).Msg("sqlite response cache enabled")
		return sqlite.NewCacheStore(db), nil
	default:
		return memory.NewCacheStore(), nil
	}
}

func (a *App) initHTTPServer(cfg *config.Config) {
	proxyHandler := apihttp.NewProxyHandler(a.Governor, a.Logger)
	healthHandler := apihttp.NewHealthHandler(a.monitor)

	router := apihttp.NewRouterWithConfig(proxyHandler, healthHandler, a.Logger, apihttp.RouterConfig{
		Metrics: a.Metrics,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// BuildTable converts cache policy configuration into a classification
// table, falling back to the built-in keywords and lifetimes.
func BuildTable(cfg config.CachePolicyConfig) cachepolicy.Table {
	table := cachepolicy.DefaultTable()

	if len(cfg.StaticKeywords) > 0 {
		table.StaticKeywords = cfg.StaticKeywords
	}
	if len(cfg.DynamicKeywords) > 0 {
		table.DynamicKeywords = cfg.DynamicKeywords
	}
	if cfg.StaticMaxAgeSecs > 0 {
		table.Static.MaxAge = time.Duration(cfg.StaticMaxAgeSecs) * time.Second
	}
	if cfg.DynamicMaxAgeSecs > 0 {
		table.Dynamic.MaxAge = time.Duration(cfg.DynamicMaxAgeSecs) * time.Second
	}
	if cfg.DefaultMaxAgeSecs > 0 {
		table.Default.MaxAge = time.Duration(cfg.DefaultMaxAgeSecs) * time.Second
	} else if cfg.DynamicMaxAgeSecs > 0 {
		// Default tracks dynamic at twice its lifetime unless pinned.
		table.Default.MaxAge = 2 * table.Dynamic.MaxAge
	}
	if cfg.OfflineMaxStaleSecs > 0 {
		stale := time.Duration(cfg.OfflineMaxStaleSecs) * time.Second
		table.Static.MaxStale = stale
		table.Dynamic.MaxStale = stale
		table.Default.MaxStale = stale
	}

	return table
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

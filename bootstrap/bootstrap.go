// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML file, environment variables, or both.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tola-labs/cfusage/adapters/clock"
	apihttp "github.com/tola-labs/cfusage/adapters/http"
	"github.com/tola-labs/cfusage/adapters/idgen"
	"github.com/tola-labs/cfusage/adapters/memory"
	"github.com/tola-labs/cfusage/adapters/metrics"
	"github.com/tola-labs/cfusage/adapters/remote"
	"github.com/tola-labs/cfusage/app"
	"github.com/tola-labs/cfusage/config"
	"github.com/tola-labs/cfusage/domain/usage"
	"github.com/tola-labs/cfusage/ports"
)

// Options provides optional settings for application initialization.
type Options struct {
	Version   string
	Registry  *prometheus.Registry // Metrics registry (default: fresh registry with Go and process collectors)
	Clock     ports.Clock          // Time source (default: wall clock in UTC)
	LogOutput io.Writer            // Log destination (default: stdout)
}

// Services are the wired usage services shared by the server and the CLI.
type Services struct {
	Fetcher   *remote.Fetcher
	Usage     *app.UsageService
	Directory *app.OrgDirectory
	Refresher *app.Refresher
}

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Services   *Services

	holder   *config.Holder
	stopOnce sync.Once
	started  atomic.Bool
}

// New creates the application from a loaded configuration.
func New(cfg *config.Config, opts Options) (*App, error) {
	return newApp(cfg, SetupLogger(cfg.Logging, opts.LogOutput), opts)
}

// NewWithHotReload creates the application from a config file and reloads
// excluded orgs, included services and the log level when the file changes
// or the process receives SIGHUP.
func NewWithHotReload(path string, opts Options) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg.Logging, opts.LogOutput)

	holder, err := config.NewHolder(path, logger.With().Str("component", "config").Logger())
	if err != nil {
		return nil, err
	}

	a, err := newApp(holder.Get(), logger, opts)
	if err != nil {
		holder.Stop()
		return nil, err
	}
	a.holder = holder

	holder.OnChange(a.applyConfig)
	holder.OnError(func(error) {
		if a.Metrics != nil {
			a.Metrics.ConfigReloadErrors.Inc()
		}
	})

	return a, nil
}

func newApp(cfg *config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	logger.Info().Int("foundations", len(cfg.Foundations)).Msg("initializing cfusage")

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = opts.Registry
		if registry == nil {
			registry = prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}
		a.Metrics = metrics.NewWithRegistry(registry)
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.NewInLocation(clock.Real{}, time.UTC)
	}

	a.Services = NewServices(cfg, logger, a.Metrics, clk)

	if err := a.initHTTPServer(registry, opts.Version); err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}

	return a, nil
}

// NewServices wires the fetcher, caches, directory and refresher for cfg.
// m may be nil.
func NewServices(cfg *config.Config, logger zerolog.Logger, m *metrics.Collector, clk ports.Clock) *Services {
	var (
		usageMetrics ports.UsageMetrics
		observer     remote.Observer
	)
	if m != nil {
		usageMetrics = m
		observer = m
	}

	foundations := make([]remote.Foundation, 0, len(cfg.Foundations))
	for _, f := range cfg.Foundations {
		foundations = append(foundations, remoteFoundation(f))
	}

	fetcher := remote.NewFetcher(remote.FetcherConfig{
		Foundations:  foundations,
		ExcludedOrgs: cfg.ExcludedOrgs,
		Observer:     observer,
	})

	usageSvc := app.NewUsageService(
		fetcher,
		remote.JSONParser{},
		memory.NewRollupStore[*usage.OrgUsage](memory.RollupStoreConfig{}),
		memory.NewRollupStore[*usage.SIUsage](memory.RollupStoreConfig{}),
		clk,
		logger,
		app.UsageServiceConfig{
			IncludedServices: cfg.IncludedServices,
			Metrics:          usageMetrics,
		},
	)

	directory := app.NewOrgDirectory(fetcher, clk, logger, app.OrgDirectoryConfig{
		RefreshInterval: cfg.Refresh.OrgInterval,
		Metrics:         usageMetrics,
	})

	refresher := app.NewRefresher(directory, usageSvc, clk, idgen.UUID{}, logger, app.RefresherConfig{
		Interval:  cfg.Refresh.Interval,
		Timeout:   cfg.Refresh.Timeout,
		OnStartup: cfg.Refresh.OnStartup,
		Metrics:   usageMetrics,
	})

	return &Services{
		Fetcher:   fetcher,
		Usage:     usageSvc,
		Directory: directory,
		Refresher: refresher,
	}
}

func remoteFoundation(f config.FoundationConfig) remote.Foundation {
	rf := remote.Foundation{
		Name:     f.Name,
		UsageURL: f.UsageURL,
		APIURL:   f.APIURL,
		Timeout:  f.Timeout,
	}
	switch {
	case f.UAA.Enabled():
		rf.Tokens = remote.NewOAuth2Token(remote.UAAConfig{
			TokenURL:     f.UAA.TokenURL,
			ClientID:     f.UAA.ClientID,
			ClientSecret: f.UAA.ClientSecret,
			Scopes:       f.UAA.Scopes,
		})
	case f.Token != "":
		rf.Tokens = remote.StaticToken(f.Token)
	}
	return rf
}

func (a *App) initHTTPServer(registry *prometheus.Registry, version string) error {
	cfg := a.Config

	// A nil refresher makes the refresh routes answer 503.
	var refresher *app.Refresher
	if cfg.Refresh.Enabled {
		refresher = a.Services.Refresher
	}

	routerCfg := apihttp.RouterConfig{
		Metrics:        a.Metrics,
		MetricsPath:    cfg.Metrics.Path,
		Version:        version,
		RequestTimeout: cfg.Server.WriteTimeout,
	}
	if registry != nil {
		routerCfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	router := apihttp.NewRouter(
		apihttp.NewUsageHandler(a.Services.Usage, a.Services.Directory, refresher, a.Logger),
		apihttp.NewHealthHandler(a.Services.Directory),
		a.Logger,
		routerCfg,
	)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("http server configured")
	return nil
}

// applyConfig applies the reloadable parts of a new configuration.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a.Services.Fetcher.SetExcludedOrgs(cfg.ExcludedOrgs)
	a.Services.Usage.SetIncludedServices(cfg.IncludedServices)

	if a.Metrics != nil {
		a.Metrics.ConfigReloads.Inc()
		a.Metrics.ConfigLastReload.SetToCurrentTime()
	}

	// Relist so the exclusion change shows up before the next scheduled listing.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := a.Services.Directory.RefreshAll(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("organization relisting after reload incomplete")
		}
	}()
}

// Run starts the HTTP server and background workers and blocks until ctx is
// cancelled, SIGINT or SIGTERM arrives, or the server fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		err := a.HTTPServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	a.start(ctx)

	var runErr error
	select {
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) start(ctx context.Context) {
	a.started.Store(true)

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch disabled")
		}
		a.holder.WatchSignals()
	}

	a.Services.Directory.Start(ctx)

	if a.Config.Refresh.Enabled {
		a.Services.Refresher.Start()
		a.Logger.Info().
			Dur("interval", a.Config.Refresh.Interval).
			Bool("on_startup", a.Config.Refresh.OnStartup).
			Msg("scheduled refresh enabled")
	}
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if a.holder != nil {
			a.holder.Stop()
		}

		if a.HTTPServer != nil {
			if err := a.HTTPServer.Shutdown(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("http server shutdown error")
				shutdownErr = err
			}
		}

		if a.started.Load() {
			if a.Config.Refresh.Enabled {
				a.Services.Refresher.Stop()
			}
			a.Services.Directory.Stop()
		}

		a.Logger.Info().Msg("shutdown complete")
	})
	return shutdownErr
}

// SetupLogger builds the process logger and sets the global level.
// A nil out writes to stdout.
func SetupLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

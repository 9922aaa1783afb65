// Package app wires the cookie pool and the download supervisor into one
// application context. A process creates a single App at startup and hands
// it to its front end; nothing in the core is global.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/spf13/afero"

	"github.com/entrhq/siphon/pkg/browser"
	"github.com/entrhq/siphon/pkg/config"
	"github.com/entrhq/siphon/pkg/cookies"
	"github.com/entrhq/siphon/pkg/download"
	"github.com/entrhq/siphon/pkg/logging"
	"github.com/entrhq/siphon/pkg/memory"
	"github.com/entrhq/siphon/pkg/metrics"
	"github.com/entrhq/siphon/pkg/types"
)

// App owns the browser pool and the download supervisor.
type App struct {
	cfg        *config.Config
	logger     *logging.Logger
	metrics    *metrics.Metrics
	pool       *browser.Pool
	supervisor *download.Supervisor
	filter     *cookies.Filter
	jar        *cookies.Writer
	ownsLogger bool

	mu        sync.Mutex
	closing   bool
	closeOnce sync.Once
	closeErr  error
}

type options struct {
	fs       afero.Fs
	launcher browser.Launcher
	guard    *memory.Guard
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// Option configures an App.
type Option func(*options)

// WithFs sets the filesystem for cookie jars and output directories.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithLauncher replaces the Playwright launcher.
func WithLauncher(l browser.Launcher) Option {
	return func(o *options) { o.launcher = l }
}

// WithGuard replaces the host memory guard.
func WithGuard(g *memory.Guard) Option {
	return func(o *options) { o.guard = g }
}

// WithLogger sets the root logger. By default a session file logger is opened.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink. By default a fresh registry is created.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New builds an App from a validated configuration. Nothing is launched
// until the first fetch.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	ownsLogger := o.logger == nil
	if ownsLogger {
		if cfg.Logging.Directory != "" {
			logging.SetLogDirectory(cfg.Logging.Directory)
		}
		// NewLogger falls back to stderr on error, so the logger is usable either way.
		o.logger, _ = logging.NewLogger("siphon")
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	o.logger.SetLevel(level)
	if o.metrics == nil {
		o.metrics = metrics.New()
	}
	if o.guard == nil {
		o.guard = memory.NewGuard(memory.SystemReader(), o.logger.With("memory"))
	}

	filter, err := cookies.NewFilter(cfg.CookieDomains)
	if err != nil {
		return nil, err
	}

	poolOpts := []browser.Option{
		browser.WithGuard(o.guard),
		browser.WithLogger(o.logger.With("browser")),
		browser.WithMetrics(o.metrics),
		browser.WithSettleDelay(cfg.Browser.SettleDelay),
		browser.WithBaseDelay(cfg.Browser.BaseDelay),
		browser.WithGracePeriod(cfg.Browser.GracePeriod),
		browser.WithPerInstanceCostMB(cfg.Browser.PerInstanceCostMB),
	}
	if o.launcher != nil {
		poolOpts = append(poolOpts, browser.WithLauncher(o.launcher))
	}
	pool := browser.NewPool(browser.Config{
		MaxConcurrency:        cfg.Browser.MaxConcurrency,
		MaxRetries:            cfg.Browser.MaxRetries,
		Timeout:               cfg.Browser.Timeout(),
		MinFreeMemoryFraction: cfg.Browser.MinFreeMemoryFraction,
		Headless:              cfg.Browser.Headless,
	}, poolOpts...)

	a := &App{
		cfg:        cfg,
		logger:     o.logger,
		metrics:    o.metrics,
		pool:       pool,
		filter:     filter,
		jar:        cookies.NewWriter(o.fs),
		ownsLogger: ownsLogger,
	}
	dlLog := o.logger.With("download")
	a.supervisor = download.NewSupervisor(download.Config{
		Executable:  cfg.Download.Executable,
		Directory:   cfg.Download.Directory,
		Format:      cfg.Download.Format,
		MergeFormat: cfg.Download.MergeFormat,
		KillGrace:   cfg.Download.KillGrace,
	},
		download.WithFs(o.fs),
		download.WithLogger(dlLog),
		download.WithMetrics(o.metrics),
		download.WithEventHandler(func(ev types.DownloadEvent) {
			if ev.Error != nil {
				dlLog.Infof("job %s: %s: %v", ev.JobID, ev.Type, ev.Error)
				return
			}
			dlLog.Infof("job %s: %s", ev.JobID, ev.Type)
		}),
	)
	return a, nil
}

// Config returns the configuration the App was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *logging.Logger { return a.logger }

// Metrics returns the metrics sink.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Pool returns the browser pool.
func (a *App) Pool() *browser.Pool { return a.pool }

func (a *App) accepting() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing {
		return types.Errorf(types.KindClosed, "siphon", "application is shutting down")
	}
	return nil
}

// FetchCookies harvests the cookies a browser ends up with after visiting url.
func (a *App) FetchCookies(ctx context.Context, url string) ([]cookies.Cookie, error) {
	if err := a.accepting(); err != nil {
		return nil, err
	}
	return a.pool.FetchCookies(ctx, url)
}

// Download starts a download job. Cookies outside the configured domain
// patterns are dropped before the jar is written. An empty outputDir uses
// the configured download directory.
func (a *App) Download(ctx context.Context, url string, list []cookies.Cookie, outputDir string, onProgress download.ProgressFunc) (*download.Job, error) {
	if err := a.accepting(); err != nil {
		return nil, err
	}
	if kept := a.filter.Apply(list); len(kept) != len(list) {
		a.logger.Debugf("cookie filter kept %d of %d cookies", len(kept), len(list))
		list = kept
	}
	return a.supervisor.Start(ctx, url, list, outputDir, onProgress)
}

// FetchAndDownload fetches cookies for url and then downloads it with them.
func (a *App) FetchAndDownload(ctx context.Context, url, outputDir string, onProgress download.ProgressFunc) (*download.Job, error) {
	list, err := a.FetchCookies(ctx, url)
	if err != nil {
		return nil, err
	}
	return a.Download(ctx, url, list, outputDir, onProgress)
}

// LoadCookies reads a previously saved Netscape cookie jar.
func (a *App) LoadCookies(path string) ([]cookies.Cookie, error) {
	return a.jar.Read(path)
}

// SaveCookies writes list as a Netscape cookie jar at path.
func (a *App) SaveCookies(list []cookies.Cookie, path string) error {
	return a.jar.Write(list, path)
}

// Cancel cancels an active download.
func (a *App) Cancel(jobID string) error {
	return a.supervisor.Cancel(jobID)
}

// Job returns the state of an active download.
func (a *App) Job(jobID string) (download.Snapshot, bool) {
	return a.supervisor.Get(jobID)
}

// Jobs lists active downloads.
func (a *App) Jobs() []download.Snapshot {
	return a.supervisor.List()
}

// Close stops accepting requests, shuts the browser pool down within its
// grace period and then terminates any downloads still running. It is safe
// to call more than once; later calls return the first result.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closing = true
		a.mu.Unlock()

		a.logger.Infof("shutting down")
		var errs []error
		if err := a.pool.Shutdown(ctx); err != nil {
			a.logger.Warnf("browser pool shutdown: %v", err)
			errs = append(errs, err)
		}
		if err := a.supervisor.Shutdown(ctx); err != nil {
			a.logger.Warnf("download shutdown: %v", err)
			errs = append(errs, err)
		}
		a.closeErr = errors.Join(errs...)
		a.logger.Infof("shutdown complete")
		if a.ownsLogger {
			if err := a.logger.Close(); err != nil {
				a.closeErr = errors.Join(a.closeErr, err)
			}
		}
	})
	return a.closeErr
}

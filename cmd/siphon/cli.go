package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/siphon/pkg/app"
	"github.com/entrhq/siphon/pkg/config"
	"github.com/entrhq/siphon/pkg/cookies"
	"github.com/entrhq/siphon/pkg/download"
	"github.com/entrhq/siphon/pkg/types"
)

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "path to the YAML config file (default ~/.siphon/config.yaml)",
		EnvVar: "SIPHON_CONFIG",
	},
	cli.StringFlag{
		Name:  "log-level",
		Usage: "override logging.level (debug, info, warn, error)",
	},
	cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "serve Prometheus metrics on this address, e.g. 127.0.0.1:9090",
	},
}

var cookiesFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "out, o",
		Usage: "write the cookies to this file as a Netscape jar",
	},
	cli.BoolFlag{
		Name:  "json",
		Usage: "print the cookies as JSON instead of a jar",
	},
}

var downloadFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "output-dir, o",
		Usage: "directory to save into (default download.directory)",
	},
	cli.StringFlag{
		Name:  "cookies-file",
		Usage: "use cookies from a saved Netscape jar instead of fetching them",
	},
	cli.BoolFlag{
		Name:  "no-cookies",
		Usage: "download without cookies",
	},
}

func newCLI(ctx context.Context) *cli.App {
	a := cli.NewApp()
	a.Name = "siphon"
	a.HelpName = "siphon"
	a.Usage = "download media with the cookies a real browser would have"
	a.UsageText = "siphon [global options] <command> [arguments...]"
	a.Version = version
	a.Flags = globalFlags
	a.Commands = []cli.Command{
		{
			Name:      "cookies",
			Usage:     "fetch the cookies a page sets",
			ArgsUsage: "<url>",
			Flags:     cookiesFlags,
			Action: func(c *cli.Context) error {
				return cookiesAction(ctx, c)
			},
		},
		{
			Name:      "download",
			Aliases:   []string{"d"},
			Usage:     "fetch cookies for each url and download it",
			ArgsUsage: "<url> [url...]",
			Flags:     downloadFlags,
			Action: func(c *cli.Context) error {
				return downloadAction(ctx, c)
			},
		},
		{
			Name:  "config",
			Usage: "manage the config file",
			Subcommands: []cli.Command{
				{
					Name:  "init",
					Usage: "write the default config",
					Flags: []cli.Flag{
						cli.BoolFlag{Name: "force, f", Usage: "overwrite an existing file"},
					},
					Action: configInitAction,
				},
				{
					Name:   "show",
					Usage:  "print the effective config",
					Action: configShowAction,
				},
			},
		},
	}
	return a
}

func loadConfig(c *cli.Context) (*config.Config, *config.Store, error) {
	store, err := config.NewStore(nil, c.GlobalString("config"))
	if err != nil {
		return nil, nil, err
	}
	cfg, err := store.Load()
	if err != nil {
		return nil, store, err
	}
	if level := c.GlobalString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := c.GlobalString("metrics-addr"); addr != "" {
		cfg.Metrics.Listen = addr
	}
	return cfg, store, nil
}

// openApp builds the application context and, if configured, the metrics
// endpoint. The returned function shuts both down.
func openApp(c *cli.Context) (*app.App, func(), error) {
	cfg, _, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}

	var srv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.Metrics().Handler())
		srv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Logger().Errorf("metrics server: %v", err)
			}
		}()
		a.Logger().Infof("serving metrics on %s", cfg.Metrics.Listen)
	}

	closeFn := func() {
		// Leave room for the pool grace period and the download kill grace.
		timeout := cfg.Browser.GracePeriod*2 + cfg.Download.KillGrace + 5*time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if srv != nil {
			_ = srv.Shutdown(ctx)
		}
		if err := a.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("shutdown:"), err)
		}
	}
	return a, closeFn, nil
}

func cookiesAction(ctx context.Context, c *cli.Context) error {
	url := c.Args().First()
	if url == "" {
		return types.Errorf(types.KindInvalidInput, "cookies", "a url is required")
	}

	a, closeApp, err := openApp(c)
	if err != nil {
		return err
	}
	defer closeApp()

	list, err := a.FetchCookies(ctx, url)
	if err != nil {
		return err
	}

	switch {
	case c.String("out") != "":
		if err := a.SaveCookies(list, c.String("out")); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s %d cookies to %s\n", successStyle.Render("wrote"), len(list), c.String("out"))
	case c.Bool("json"):
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	default:
		fmt.Print(cookies.Serialize(list))
	}
	return nil
}

// jobOutcome is one row of the download summary.
type jobOutcome struct {
	URL      string
	JobID    string
	Status   string
	Cookies  int
	Duration time.Duration
	Err      error
}

func downloadAction(ctx context.Context, c *cli.Context) error {
	urls := []string(c.Args())
	if len(urls) == 0 {
		return types.Errorf(types.KindInvalidInput, "download", "at least one url is required")
	}
	if c.Bool("no-cookies") && c.String("cookies-file") != "" {
		return types.Errorf(types.KindInvalidInput, "download", "--no-cookies and --cookies-file are mutually exclusive")
	}

	a, closeApp, err := openApp(c)
	if err != nil {
		return err
	}
	defer closeApp()

	var saved []cookies.Cookie
	if path := c.String("cookies-file"); path != "" {
		saved, err = a.LoadCookies(path)
		if err != nil {
			return err
		}
	}

	ui := newProgressUI(ctx, os.Stderr)
	outcomes := make([]jobOutcome, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			req := downloadRequest{
				url:       url,
				outputDir: c.String("output-dir"),
				cookies:   saved,
				fetch:     shouldFetch(c.String("cookies-file"), c.Bool("no-cookies")),
			}
			outcomes[i] = runDownload(ctx, a, ui, req)
		}(i, url)
	}
	wg.Wait()
	ui.wait()

	fmt.Fprintln(os.Stderr, renderSummary(outcomes))

	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.URL, o.Err))
		}
	}
	return errors.Join(errs...)
}

// shouldFetch reports whether cookies are harvested live. A saved jar is used
// as given even when it holds no cookies.
func shouldFetch(cookiesFile string, noCookies bool) bool {
	return cookiesFile == "" && !noCookies
}

type downloadRequest struct {
	url       string
	outputDir string
	cookies   []cookies.Cookie
	fetch     bool
}

func runDownload(ctx context.Context, a *app.App, ui *progressUI, req downloadRequest) jobOutcome {
	out := jobOutcome{URL: req.url, Status: "failed"}
	bar := ui.add(shortName(req.url))

	list := req.cookies
	if req.fetch {
		fetched, err := a.FetchCookies(ctx, req.url)
		if err != nil {
			bar.finish(false)
			out.Err = err
			return out
		}
		list = fetched
	}
	out.Cookies = len(list)

	job, err := a.Download(ctx, req.url, list, req.outputDir, bar.update)
	if job != nil {
		out.JobID = job.ID
	}
	if err != nil {
		bar.finish(false)
		out.Err = err
		if job != nil {
			out.Status = job.Status().String()
		}
		return out
	}

	res, err := job.Wait(context.Background())
	out.Status = res.Status.String()
	out.Duration = res.Duration
	out.Err = err
	bar.finish(res.Status == download.StatusSucceeded)
	return out
}

func configInitAction(c *cli.Context) error {
	store, err := config.NewStore(nil, c.GlobalString("config"))
	if err != nil {
		return err
	}
	if _, err := os.Stat(store.Path()); err == nil && !c.Bool("force") {
		return types.Errorf(types.KindInvalidInput, "config init", "%s already exists (use --force to overwrite)", store.Path())
	}
	if err := store.Save(config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", successStyle.Render("wrote"), store.Path())
	return nil
}

func configShowAction(c *cli.Context) error {
	cfg, store, err := loadConfig(c)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, mutedStyle.Render("# "+store.Path()))
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

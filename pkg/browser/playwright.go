package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/siphon/pkg/cookies"
	"github.com/entrhq/siphon/pkg/types"
)

// PlaywrightLauncher launches headless Chromium through Playwright.
type PlaywrightLauncher struct {
	// SkipInstall assumes the driver and browser are already installed.
	SkipInstall bool

	// Output receives installer and driver output. Nil discards it.
	Output io.Writer
}

// Launch installs Playwright's Chromium if needed and starts a browser.
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	out := l.Output
	if out == nil {
		out = io.Discard
	}
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   out,
		Stderr:   out,
	}

	if !l.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
	}
	if opts.Timeout > 0 {
		launchOpts.Timeout = playwright.Float(float64(opts.Timeout.Milliseconds()))
	}
	b, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &playwrightDriver{pw: pw, browser: b}, nil
}

type playwrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser

	mu     sync.Mutex
	closed bool
}

// NewSession opens a new browser context, which starts with an empty cookie
// store and history.
func (d *playwrightDriver) NewSession(ctx context.Context) (Session, error) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errors.New("browser is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return &playwrightSession{context: bctx, page: page}, nil
}

// Close stops the browser and the Playwright driver process.
func (d *playwrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if err := d.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := d.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}
	return errors.Join(errs...)
}

type playwrightSession struct {
	context playwright.BrowserContext
	page    playwright.Page
}

// Navigate loads url waiting for the network to go idle. Cancelling ctx
// closes the page, which aborts the navigation.
func (s *playwrightSession) Navigate(ctx context.Context, url string, timeout time.Duration) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.page.Close()
	})
	defer stop()

	opts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}

	resp, err := s.page.Goto(url, opts)
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return 0, types.NewError(types.KindTimeout, "navigate", err)
		}
		return 0, types.NewError(types.KindNavigationFailure, "navigate", err)
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

// Cookies returns every cookie in the context. Playwright reports session
// cookies with a negative expiry.
func (s *playwrightSession) Cookies(ctx context.Context) ([]cookies.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.context.Cookies()
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	list := make([]cookies.Cookie, 0, len(raw))
	for _, c := range raw {
		list = append(list, fromPlaywright(c))
	}
	return list, nil
}

// fromPlaywright maps a context cookie to a record. Chromium reports a cookie
// set with a Domain attribute as ".example.com"; the record carries the
// domain as the site set it, since the jar line already marks it as
// covering subdomains.
func fromPlaywright(c playwright.Cookie) cookies.Cookie {
	var expiry int64
	if c.Expires > 0 {
		expiry = int64(c.Expires)
	}
	return cookies.Cookie{
		Domain:   strings.TrimPrefix(c.Domain, "."),
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
		Expiry:   expiry,
		Name:     c.Name,
		Value:    c.Value,
	}
}

// Close closes the page and its context, discarding its cookies.
func (s *playwrightSession) Close() error {
	_ = s.page.Close() // may already be closed by cancellation
	if err := s.context.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}

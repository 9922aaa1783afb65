// Package browser harvests cookies by driving a headless browser through
// Playwright.
//
// # Architecture
//
// The package is built around three concepts:
//
//  1. Driver: a launched browser runtime (one per pool generation)
//  2. Session: an isolated browser context opened for a single task
//  3. Pool: a fixed set of workers pulling Tasks from a FIFO queue
//
// # Pool Lifecycle
//
// A Pool moves through Uninitialized, Initializing, Ready, Closing and
// Closed. Init launches the driver once, even under concurrent callers, and
// sizes the worker set from free host memory. Shutdown stops intake, gives
// in-flight tasks a grace period and then closes the browser under them.
// A closed pool can be initialized again.
//
// # Fetching Cookies
//
// FetchCookies validates the URL, then submits one task per attempt. A
// worker opens a fresh context, navigates with a per-attempt timeout, waits
// a short settle delay for scripts that set cookies asynchronously, and
// reads the context's cookies. Navigation failures and timeouts are retried
// with linear backoff after re-checking free memory.
//
// # Example Usage
//
//	pool := browser.NewPool(browser.Config{
//	    MaxConcurrency: 4,
//	    MaxRetries:     3,
//	    Timeout:        30 * time.Second,
//	    Headless:       true,
//	})
//	defer pool.Shutdown(context.Background())
//
//	list, err := pool.FetchCookies(ctx, "https://example.com")
package browser

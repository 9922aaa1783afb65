package browser

import (
	"context"
	"time"

	"github.com/entrhq/siphon/pkg/cookies"
)

// State is the lifecycle state of a Pool.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// TaskKind names what a worker does with a page.
type TaskKind string

// TaskCookies navigates to a URL and collects the cookies it sets.
const TaskCookies TaskKind = "cookies"

// Task is an immutable unit of work handed to a worker.
type Task struct {
	URL     string
	Kind    TaskKind
	Attempt int
}

// Config holds the externally owned pool settings.
type Config struct {
	// MaxConcurrency caps the number of workers
	MaxConcurrency int

	// MaxRetries is the number of additional attempts after the first
	MaxRetries int

	// Timeout bounds a single navigation attempt
	Timeout time.Duration

	// MinFreeMemoryFraction is the free/total memory ratio required to launch and retry
	MinFreeMemoryFraction float64

	// Headless controls whether the browser runs without a window
	Headless bool
}

// Driver owns a launched browser runtime.
type Driver interface {
	// NewSession opens a fresh, isolated browsing context.
	NewSession(ctx context.Context) (Session, error)

	// Close terminates the browser and every open session.
	Close() error
}

// Session is one isolated browsing context. Sessions never share cookies
// or history.
type Session interface {
	// Navigate loads url and returns the final response status, or 0 when
	// the navigation produced no response.
	Navigate(ctx context.Context, url string, timeout time.Duration) (int, error)

	// Cookies returns every cookie the context holds.
	Cookies(ctx context.Context) ([]cookies.Cookie, error)

	Close() error
}

// LaunchOptions configures a driver launch.
type LaunchOptions struct {
	Headless bool
	Args     []string
	Timeout  time.Duration
}

// Launcher starts a browser runtime.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Driver, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, opts LaunchOptions) (Driver, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	return f(ctx, opts)
}

// Default values for pool configuration
const (
	DefaultMaxConcurrency        = 1
	DefaultMaxRetries            = 3
	DefaultTimeout               = 30 * time.Second
	DefaultMinFreeMemoryFraction = 0.1
	DefaultSettleDelay           = 1500 * time.Millisecond
	DefaultBaseDelay             = time.Second
	DefaultGracePeriod           = 10 * time.Second
	DefaultLaunchTimeout         = 60 * time.Second
	DefaultPerInstanceCostMB     = 300
	DefaultQueueSize             = 64
)

// DefaultLaunchArgs keeps chromium working inside containers and headless CI.
var DefaultLaunchArgs = []string{
	"--disable-gpu",
	"--disable-software-rasterizer",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
}

// Viewport used for harvesting contexts
const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

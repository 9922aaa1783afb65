package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/entrhq/siphon/pkg/cookies"
	"github.com/entrhq/siphon/pkg/logging"
	"github.com/entrhq/siphon/pkg/memory"
	"github.com/entrhq/siphon/pkg/metrics"
	"github.com/entrhq/siphon/pkg/types"
)

// Pool runs cookie fetch tasks on a fixed set of workers, each task in its
// own isolated browser context. Init and Shutdown are single-flight: callers
// arriving while either is in progress share its outcome.
type Pool struct {
	cfg               Config
	guard             *memory.Guard
	launcher          Launcher
	logger            *logging.Logger
	metrics           *metrics.Metrics
	settleDelay       time.Duration
	baseDelay         time.Duration
	gracePeriod       time.Duration
	launchTimeout     time.Duration
	perInstanceCostMB int
	queueSize         int
	sleep             func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
	run   *generation

	flight   singleflight.Group
	launches atomic.Int64
}

// generation holds everything created by one successful launch.
type generation struct {
	driver  Driver
	queue   chan request
	workers int

	// stop is closed when shutdown begins; no new tasks are accepted.
	stop chan struct{}
	// done is closed once shutdown has finished.
	done chan struct{}

	// ctx is cancelled to abort in-flight navigations on forced shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type request struct {
	ctx   context.Context
	task  Task
	reply chan result
}

type result struct {
	cookies []cookies.Cookie
	err     error
}

// Option configures a Pool.
type Option func(*Pool)

// WithGuard sets the memory guard. The default reads host memory.
func WithGuard(g *memory.Guard) Option {
	return func(p *Pool) { p.guard = g }
}

// WithLauncher sets the browser launcher. The default is PlaywrightLauncher.
func WithLauncher(l Launcher) Option {
	return func(p *Pool) { p.launcher = l }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithSettleDelay sets how long a worker waits after navigation before
// reading cookies, giving asynchronous scripts time to set them.
func WithSettleDelay(d time.Duration) Option {
	return func(p *Pool) { p.settleDelay = d }
}

// WithBaseDelay sets the retry backoff unit; attempt n waits n*d before retrying.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Pool) { p.baseDelay = d }
}

// WithGracePeriod bounds how long Shutdown waits for in-flight tasks.
func WithGracePeriod(d time.Duration) Option {
	return func(p *Pool) { p.gracePeriod = d }
}

// WithPerInstanceCostMB sets the memory cost assumed per worker when sizing the pool.
func WithPerInstanceCostMB(mb int) Option {
	return func(p *Pool) { p.perInstanceCostMB = mb }
}

// WithQueueSize sets the capacity of the task queue.
func WithQueueSize(n int) Option {
	return func(p *Pool) { p.queueSize = n }
}

// NewPool creates an uninitialized pool. Nothing is launched until Init or
// the first FetchCookies call.
func NewPool(cfg Config, opts ...Option) *Pool {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	p := &Pool{
		cfg:               cfg,
		settleDelay:       DefaultSettleDelay,
		baseDelay:         DefaultBaseDelay,
		gracePeriod:       DefaultGracePeriod,
		launchTimeout:     DefaultLaunchTimeout,
		perInstanceCostMB: DefaultPerInstanceCostMB,
		queueSize:         DefaultQueueSize,
		sleep:             sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Discard()
	}
	if p.guard == nil {
		p.guard = memory.NewGuard(nil, p.logger)
	}
	if p.launcher == nil {
		p.launcher = &PlaywrightLauncher{}
	}
	if p.queueSize <= 0 {
		p.queueSize = DefaultQueueSize
	}
	return p
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Workers returns the worker count of the live generation, or 0.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil || p.state != StateReady {
		return 0
	}
	return p.run.workers
}

// Launches returns how many times the driver has been launched.
func (p *Pool) Launches() int {
	return int(p.launches.Load())
}

// Init launches the pool. It is a no-op when the pool is ready, and callers
// arriving while a launch is in progress receive that launch's outcome.
// Init after Shutdown launches a new generation.
func (p *Pool) Init(ctx context.Context) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	switch state {
	case StateReady:
		return nil
	case StateClosing:
		return types.Errorf(types.KindClosed, "init browser pool", "pool is shutting down")
	}

	ch := p.flight.DoChan("init", func() (interface{}, error) {
		return nil, p.launch()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return types.NewError(types.KindCancelled, "init browser pool", ctx.Err())
	}
}

// launch runs at most once at a time under the "init" flight key.
func (p *Pool) launch() error {
	p.mu.Lock()
	switch p.state {
	case StateReady:
		p.mu.Unlock()
		return nil
	case StateClosing:
		p.mu.Unlock()
		return types.Errorf(types.KindClosed, "init browser pool", "pool is shutting down")
	}
	previous := p.state
	p.state = StateInitializing
	p.mu.Unlock()

	gen, err := p.startGeneration()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.state = previous
		p.logger.Errorf("browser pool launch failed: %v", err)
		return err
	}
	p.run = gen
	p.state = StateReady
	p.logger.Infof("browser pool ready with %d workers (launch #%d)", gen.workers, p.Launches())
	return nil
}

func (p *Pool) startGeneration() (*generation, error) {
	if err := p.guard.AssertAvailable(p.cfg.MinFreeMemoryFraction); err != nil {
		return nil, err
	}

	launchCtx, cancel := context.WithTimeout(context.Background(), p.launchTimeout)
	defer cancel()

	p.launches.Add(1)
	driver, err := p.launcher.Launch(launchCtx, LaunchOptions{
		Headless: p.cfg.Headless,
		Args:     DefaultLaunchArgs,
		Timeout:  p.launchTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	workers := p.guard.RecommendConcurrency(p.perInstanceCostMB, 1, p.cfg.MaxConcurrency)
	runCtx, runCancel := context.WithCancel(context.Background())
	gen := &generation{
		driver:  driver,
		queue:   make(chan request, p.queueSize),
		workers: workers,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		ctx:     runCtx,
		cancel:  runCancel,
	}
	gen.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(gen, i)
	}
	p.metrics.PoolLaunched(workers)
	return gen, nil
}

// FetchCookies navigates to rawURL in a fresh browser context and returns the
// cookies it ends up with. An empty slice is a valid result. Navigation
// failures and timeouts are retried up to MaxRetries times with linear
// backoff; once the budget is spent the last cause is wrapped in a
// fetch-failed error.
func (p *Pool) FetchCookies(ctx context.Context, rawURL string) ([]cookies.Cookie, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	target := u.String()

	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	switch state {
	case StateClosing, StateClosed:
		return nil, types.Errorf(types.KindClosed, "fetch cookies", "browser pool is %s", state)
	case StateUninitialized, StateInitializing:
		if err := p.Init(ctx); err != nil {
			return nil, err
		}
	}

	attempts := p.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt-1) * p.baseDelay
			p.logger.Warnf("retrying %s in %s (attempt %d/%d): %v", target, delay, attempt, attempts, lastErr)
			if err := p.sleep(ctx, delay); err != nil {
				return nil, types.NewError(types.KindCancelled, "fetch cookies", err)
			}
			if err := p.guard.AssertAvailable(p.cfg.MinFreeMemoryFraction); err != nil {
				return nil, err
			}
		}

		task := Task{URL: target, Kind: TaskCookies, Attempt: attempt}
		start := time.Now()
		list, err := p.submit(ctx, task)
		p.metrics.FetchAttempt(outcome(err), time.Since(start))
		if err == nil {
			p.logger.Infof("fetched %d cookies from %s on attempt %d", len(list), target, attempt)
			return list, nil
		}
		if !types.KindOf(err).Retryable() {
			return nil, err
		}
		lastErr = err
	}

	p.logger.Errorf("giving up on %s after %d attempts: %v", target, attempts, lastErr)
	return nil, &types.Error{
		Kind:   types.KindFetchFailed,
		Op:     "fetch cookies",
		Detail: fmt.Sprintf("%d attempts", attempts),
		Err:    lastErr,
	}
}

// submit enqueues task and waits for its result.
func (p *Pool) submit(ctx context.Context, task Task) ([]cookies.Cookie, error) {
	p.mu.Lock()
	gen := p.run
	ready := p.state == StateReady
	p.mu.Unlock()
	if !ready || gen == nil {
		return nil, types.Errorf(types.KindClosed, "fetch cookies", "browser pool is not ready")
	}

	req := request{ctx: ctx, task: task, reply: make(chan result, 1)}
	select {
	case <-gen.stop:
		return nil, types.Errorf(types.KindClosed, "fetch cookies", "browser pool is shutting down")
	default:
	}
	select {
	case gen.queue <- req:
	case <-gen.stop:
		return nil, types.Errorf(types.KindClosed, "fetch cookies", "browser pool is shutting down")
	case <-ctx.Done():
		return nil, types.NewError(types.KindCancelled, "fetch cookies", ctx.Err())
	}

	select {
	case res := <-req.reply:
		return res.cookies, res.err
	case <-ctx.Done():
		return nil, types.NewError(types.KindCancelled, "fetch cookies", ctx.Err())
	case <-gen.done:
		// Shutdown answers queued requests, but a request can slip into the
		// buffer after the final drain.
		select {
		case res := <-req.reply:
			return res.cookies, res.err
		default:
			return nil, types.Errorf(types.KindClosed, "fetch cookies", "browser pool shut down")
		}
	}
}

func (p *Pool) worker(gen *generation, id int) {
	defer gen.wg.Done()
	log := p.logger.With(fmt.Sprintf("worker-%d", id))

	for {
		// Stop wins over queued work once shutdown starts.
		select {
		case <-gen.stop:
			return
		default:
		}

		select {
		case <-gen.stop:
			return
		case req := <-gen.queue:
			list, err := p.execute(gen, req)
			if err != nil {
				log.Debugf("task %s attempt %d failed: %v", req.task.URL, req.task.Attempt, err)
			}
			req.reply <- result{cookies: list, err: err}
		}
	}
}

// execute runs one task in its own browser context.
func (p *Pool) execute(gen *generation, req request) ([]cookies.Cookie, error) {
	if err := req.ctx.Err(); err != nil {
		return nil, types.NewError(types.KindCancelled, "fetch cookies", err)
	}

	ctx, cancel := context.WithTimeout(req.ctx, p.cfg.Timeout+p.settleDelay)
	defer cancel()
	stop := context.AfterFunc(gen.ctx, cancel)
	defer stop()

	session, err := gen.driver.NewSession(ctx)
	if err != nil {
		return nil, p.classify(gen, req.ctx, ctx, types.NewError(types.KindNavigationFailure, "open browser context", err))
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			p.logger.Debugf("closing browser context for %s: %v", req.task.URL, cerr)
		}
	}()

	status, err := session.Navigate(ctx, req.task.URL, p.cfg.Timeout)
	if err != nil {
		return nil, p.classify(gen, req.ctx, ctx, err)
	}
	if status < 200 || status > 299 {
		return nil, &types.Error{
			Kind:   types.KindNavigationFailure,
			Op:     "navigate",
			Detail: statusDetail(status),
		}
	}

	if err := sleepContext(ctx, p.settleDelay); err != nil {
		return nil, p.classify(gen, req.ctx, ctx, err)
	}

	raw, err := session.Cookies(ctx)
	if err != nil {
		return nil, p.classify(gen, req.ctx, ctx, types.NewError(types.KindNavigationFailure, "read cookies", err))
	}

	list := make([]cookies.Cookie, 0, len(raw))
	for _, c := range raw {
		if err := c.Validate(); err != nil {
			p.logger.Debugf("dropping cookie from %s: %v", req.task.URL, err)
			continue
		}
		list = append(list, c)
	}
	return list, nil
}

// classify maps a task error onto the taxonomy: caller cancellation,
// forced shutdown, per-attempt timeout, or navigation failure.
func (p *Pool) classify(gen *generation, callerCtx, attemptCtx context.Context, err error) error {
	switch {
	case callerCtx.Err() != nil:
		return types.NewError(types.KindCancelled, "fetch cookies", callerCtx.Err())
	case gen.ctx.Err() != nil:
		return types.NewError(types.KindClosed, "fetch cookies", err)
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		types.KindOf(err) == types.KindTimeout:
		return types.NewError(types.KindTimeout, "navigate", err)
	case types.KindOf(err) != types.KindUnknown:
		return err
	}
	return types.NewError(types.KindNavigationFailure, "navigate", err)
}

// Shutdown stops the pool. In-flight tasks get the grace period to finish,
// after which the browser is closed under them. It is a no-op on a pool that
// was never launched or is already closed, and concurrent calls share one
// shutdown.
func (p *Pool) Shutdown(ctx context.Context) error {
	ch := p.flight.DoChan("shutdown", func() (interface{}, error) {
		return nil, p.shutdown()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return types.NewError(types.KindCancelled, "shutdown browser pool", ctx.Err())
	}
}

func (p *Pool) shutdown() error {
	p.mu.Lock()
	if p.state == StateInitializing {
		// Let the launch settle, then close whatever it produced.
		p.mu.Unlock()
		<-p.flight.DoChan("init", func() (interface{}, error) {
			return nil, p.launch()
		})
		p.mu.Lock()
	}
	if p.state != StateReady {
		p.mu.Unlock()
		return nil
	}
	gen := p.run
	p.state = StateClosing
	close(gen.stop)
	p.mu.Unlock()

	p.logger.Infof("shutting down browser pool, grace period %s", p.gracePeriod)

	workersDone := make(chan struct{})
	go func() {
		gen.wg.Wait()
		close(workersDone)
	}()

	select {
	case <-workersDone:
	case <-time.After(p.gracePeriod):
		p.logger.Warnf("grace period elapsed, aborting in-flight tasks")
	}
	gen.cancel()

	if err := gen.driver.Close(); err != nil {
		p.logger.Warnf("closing browser driver: %v", err)
	}

	select {
	case <-workersDone:
	case <-time.After(p.gracePeriod):
		p.logger.Errorf("workers did not exit after browser close")
	}

	// Answer anything still queued.
	for drained := false; !drained; {
		select {
		case req := <-gen.queue:
			req.reply <- result{err: types.Errorf(types.KindClosed, "fetch cookies", "browser pool shut down")}
		default:
			drained = true
		}
	}

	p.mu.Lock()
	p.state = StateClosed
	p.run = nil
	close(gen.done)
	p.mu.Unlock()

	p.metrics.PoolClosed()
	p.logger.Infof("browser pool closed")
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	switch types.KindOf(err) {
	case types.KindNavigationFailure:
		return "navigation_failure"
	case types.KindTimeout:
		return "timeout"
	case types.KindCancelled:
		return "cancelled"
	case types.KindClosed:
		return "closed"
	}
	return "error"
}

func statusDetail(status int) string {
	if status == 0 {
		return "no response"
	}
	return fmt.Sprintf("status %d", status)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package download

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/entrhq/siphon/pkg/cookies"
	"github.com/entrhq/siphon/pkg/logging"
	"github.com/entrhq/siphon/pkg/metrics"
	"github.com/entrhq/siphon/pkg/types"
)

const (
	// DefaultExecutable is looked up on PATH when no executable is configured.
	DefaultExecutable = "yt-dlp"
	DefaultKillGrace  = 5 * time.Second

	readChunkSize = 4096
)

// Config controls how the external executable is run.
type Config struct {
	// Executable is a path or a name resolved on PATH.
	Executable string

	// Directory is used when a caller passes no output directory.
	Directory string

	Format      string
	MergeFormat string

	// KillGrace is how long a cancelled process gets to exit after SIGTERM
	// before it is killed.
	KillGrace time.Duration
}

// Supervisor spawns and tracks download jobs. Each job runs as an
// independent process; the supervisor only shares a registry between them.
type Supervisor struct {
	cfg     Config
	fs      afero.Fs
	jar     *cookies.Writer
	logger  *logging.Logger
	metrics *metrics.Metrics
	onEvent func(types.DownloadEvent)

	mu     sync.Mutex
	jobs   map[string]*Job
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithFs sets the filesystem used for output directories and cookie jars.
func WithFs(fs afero.Fs) Option {
	return func(s *Supervisor) { s.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithEventHandler receives started and finished events for every job.
// It is called synchronously and must not block.
func WithEventHandler(fn func(types.DownloadEvent)) Option {
	return func(s *Supervisor) { s.onEvent = fn }
}

// NewSupervisor creates a supervisor with no running jobs.
func NewSupervisor(cfg Config, opts ...Option) *Supervisor {
	if cfg.Executable == "" {
		cfg.Executable = DefaultExecutable
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	s := &Supervisor{
		cfg:  cfg,
		jobs: make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.jar = cookies.NewWriter(s.fs)
	return s
}

// StartDownload runs a job to completion. The job is cancelled if ctx is
// done first. On failure the error is typed: IOError before spawn,
// SpawnError when the executable cannot start, ProcessExitError on a
// non-zero exit, CancelledError on cancellation.
func (s *Supervisor) StartDownload(ctx context.Context, url string, list []cookies.Cookie, outputDir string, onProgress ProgressFunc) (*Result, error) {
	job, err := s.Start(ctx, url, list, outputDir, onProgress)
	if err != nil {
		return nil, err
	}
	return job.Wait(context.Background())
}

// Start spawns a job and returns once the process is running. Errors that
// happen before the process is running are returned directly and the job,
// if one was created, is already Failed. Progress events for the job are
// delivered to onProgress, which may be nil.
func (s *Supervisor) Start(ctx context.Context, url string, list []cookies.Cookie, outputDir string, onProgress ProgressFunc) (*Job, error) {
	if strings.TrimSpace(url) == "" {
		return nil, types.Errorf(types.KindInvalidInput, "download", "url is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.KindCancelled, "download", err)
	}
	if outputDir == "" {
		outputDir = s.cfg.Directory
	}
	if outputDir == "" {
		return nil, types.Errorf(types.KindInvalidInput, "download", "output directory is required")
	}

	job := newJob(uuid.New().String(), url, outputDir, list)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, types.Errorf(types.KindClosed, "download", "supervisor is shut down")
	}
	s.jobs[job.ID] = job
	s.wg.Add(1)
	s.mu.Unlock()

	log := s.logger.With(shortID(job.ID))
	log.Infof("starting download of %s into %s", url, outputDir)

	cmd, stdout, stderr, err := s.spawn(job, log)
	if err != nil {
		s.finish(job, StatusFailed, -1, err, log)
		s.cleanup(job, log)
		s.wg.Done()
		return job, err
	}

	if !job.markRunning(cmd.Process) {
		// Cancelled while spawning.
		_ = kill(cmd.Process)
		go func() {
			defer s.wg.Done()
			_, _ = io.Copy(io.Discard, stdout)
			_, _ = io.Copy(io.Discard, stderr)
			_ = cmd.Wait()
			close(job.exited)
			s.cleanup(job, log)
		}()
		return job, job.Err()
	}
	s.metrics.DownloadStarted()
	s.emit(types.NewDownloadStartedEvent(job.ID))
	log.Infof("spawned %s (pid %d)", cmd.Path, cmd.Process.Pid)

	go s.supervise(job, cmd, stdout, stderr, onProgress, log)
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Cancel(job.ID); err == nil {
				log.Infof("cancelled: %v", ctx.Err())
			}
		case <-job.done:
		}
	}()

	return job, nil
}

// spawn prepares the output directory and cookie jar and starts the process.
func (s *Supervisor) spawn(job *Job, log *logging.Logger) (*exec.Cmd, io.ReadCloser, io.ReadCloser, error) {
	if err := s.fs.MkdirAll(job.OutputDir, 0755); err != nil {
		return nil, nil, nil, types.NewError(types.KindIO, "download", fmt.Errorf("failed to create output directory: %w", err))
	}
	if err := s.checkWritable(job.OutputDir); err != nil {
		return nil, nil, nil, err
	}

	var cookieFile string
	if len(job.Cookies) > 0 {
		cookieFile = filepath.Join(job.OutputDir, "cookies", job.ID+".txt")
		if err := s.jar.Write(job.Cookies, cookieFile); err != nil {
			return nil, nil, nil, err
		}
		job.setCookieFile(cookieFile)
		log.Debugf("wrote %d cookies to %s", len(job.Cookies), cookieFile)
	}

	if job.Status().Terminal() {
		return nil, nil, nil, job.Err()
	}

	exe, err := s.resolveExecutable()
	if err != nil {
		return nil, nil, nil, err
	}

	args := BuildArgs(s.cfg, job.URL, job.OutputDir, cookieFile)
	log.Debugf("running %s %s", exe, strings.Join(args, " "))

	cmd := exec.Command(exe, args...)
	configureCommand(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, types.NewError(types.KindSpawn, "download", fmt.Errorf("failed to create stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, types.NewError(types.KindSpawn, "download", fmt.Errorf("failed to create stderr pipe: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, types.NewError(types.KindSpawn, "download", fmt.Errorf("failed to start %s: %w", exe, err))
	}
	return cmd, stdout, stderr, nil
}

// checkWritable creates and removes a scratch file in dir. MkdirAll succeeds
// on an existing directory the process cannot write to.
func (s *Supervisor) checkWritable(dir string) error {
	f, err := afero.TempFile(s.fs, dir, ".siphon-*")
	if err != nil {
		return types.NewError(types.KindIO, "download", fmt.Errorf("output directory %s is not writable: %w", dir, err))
	}
	name := f.Name()
	_ = f.Close()
	if err := s.fs.Remove(name); err != nil {
		return types.NewError(types.KindIO, "download", fmt.Errorf("failed to remove %s: %w", name, err))
	}
	return nil
}

func (s *Supervisor) resolveExecutable() (string, error) {
	path, err := exec.LookPath(s.cfg.Executable)
	if err != nil {
		return "", &types.Error{
			Kind:   types.KindSpawn,
			Op:     "download",
			Detail: fmt.Sprintf("executable %q not found", s.cfg.Executable),
			Err:    err,
		}
	}
	return path, nil
}

// supervise streams the process output and settles the job when it exits.
func (s *Supervisor) supervise(job *Job, cmd *exec.Cmd, stdout, stderr io.Reader, onProgress ProgressFunc, log *logging.Logger) {
	defer s.wg.Done()

	events := newEventQueue()
	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		events.deliver(onProgress)
	}()

	var wg sync.WaitGroup
	var lastStderr string

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.streamProgress(job, stdout, events, log)
	}()
	go func() {
		defer wg.Done()
		lastStderr = drainStderr(stderr, log)
	}()

	// Pipes must be fully read before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()
	close(job.exited)

	events.close()
	<-delivered

	status, code, err := exitOutcome(waitErr, lastStderr)
	s.finish(job, status, code, err, log)
	s.cleanup(job, log)
}

func (s *Supervisor) streamProgress(job *Job, r io.Reader, events *eventQueue, log *logging.Logger) {
	var lines LineBuffer
	buf := make([]byte, readChunkSize)

	handle := func(line string) {
		log.Debugf("stdout: %s", line)
		for _, pct := range ParsePercents(line) {
			job.setProgress(pct)
			events.push(types.NewProgressEvent(job.ID, pct, line))
		}
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range lines.Write(buf[:n]) {
				handle(line)
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Warnf("reading stdout: %v", err)
			}
			break
		}
	}
	if line, ok := lines.Flush(); ok {
		handle(line)
	}
}

// eventQueue hands progress events to a delivery goroutine without ever
// blocking the reader. Events are delivered in order and none are dropped.
type eventQueue struct {
	mu      sync.Mutex
	pending []types.DownloadEvent
	closed  bool
	signal  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev types.DownloadEvent) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()
	q.wake()
}

// close marks the end of the stream; deliver returns once the backlog is empty.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) deliver(fn ProgressFunc) {
	for range q.signal {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, ev := range batch {
			if fn != nil {
				fn(ev)
			}
		}
		if closed {
			return
		}
	}
}

func drainStderr(r io.Reader, log *logging.Logger) string {
	var last string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, readChunkSize), maxLineLength)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		log.Warnf("stderr: %s", line)
		last = line
	}
	if err := scanner.Err(); err != nil {
		log.Warnf("reading stderr: %v", err)
		_, _ = io.Copy(io.Discard, r)
	}
	return last
}

func exitOutcome(waitErr error, lastStderr string) (Status, int, error) {
	if waitErr == nil {
		return StatusSucceeded, 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		return StatusFailed, code, types.ProcessExitError(code, lastStderr)
	}
	detail := lastStderr
	if detail == "" {
		detail = waitErr.Error()
	}
	return StatusFailed, -1, types.ProcessExitError(-1, detail)
}

// finish settles the job. Only the first caller's outcome is recorded; the
// winner also gets the process that was running when the job settled.
func (s *Supervisor) finish(job *Job, status Status, code int, err error, log *logging.Logger) (bool, *os.Process) {
	won, prev, proc := job.settle(status, code, err)
	if !won {
		return false, nil
	}

	s.mu.Lock()
	delete(s.jobs, job.ID)
	s.mu.Unlock()

	s.metrics.DownloadFinished(status.String(), prev == StatusRunning)
	if prev == StatusRunning {
		s.emit(types.NewDownloadFinishedEvent(job.ID, job.Progress(), err))
	}

	switch status {
	case StatusSucceeded:
		log.Infof("download finished")
	case StatusCancelled:
		log.Infof("download cancelled")
	default:
		log.Errorf("download failed: %v", err)
	}
	return true, proc
}

// cleanup removes the job's cookie jar once no process can read it.
func (s *Supervisor) cleanup(job *Job, log *logging.Logger) {
	job.mu.Lock()
	path := job.cookieFile
	job.mu.Unlock()
	if path == "" {
		return
	}
	if err := s.jar.Remove(path); err != nil {
		log.Warnf("removing cookie jar: %v", err)
	}
}

// Cancel stops a job. A running process gets SIGTERM and, if it is still
// alive after the kill grace period, SIGKILL. The job settles as Cancelled
// unless it already settled.
func (s *Supervisor) Cancel(jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return types.Errorf(types.KindInvalidInput, "cancel download", "unknown job %q", jobID)
	}

	log := s.logger.With(shortID(job.ID))
	won, proc := s.finish(job, StatusCancelled, -1, types.Errorf(types.KindCancelled, "download", "cancelled"), log)
	if !won {
		return nil
	}
	if proc == nil {
		// Not spawned yet; Start kills the process if one appears.
		return nil
	}

	if err := terminate(proc); err != nil {
		log.Warnf("sending SIGTERM: %v", err)
	}
	go func() {
		timer := time.NewTimer(s.cfg.KillGrace)
		defer timer.Stop()
		select {
		case <-job.exited:
		case <-timer.C:
			log.Warnf("process did not exit within %s, killing", s.cfg.KillGrace)
			if err := kill(proc); err != nil {
				log.Warnf("sending SIGKILL: %v", err)
			}
		}
	}()
	return nil
}

// Get returns a snapshot of an active job. Settled jobs are no longer tracked.
func (s *Supervisor) Get(jobID string) (Snapshot, bool) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return job.Snapshot(), true
}

// List returns snapshots of all active jobs, oldest first.
func (s *Supervisor) List() []Snapshot {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].created.Before(jobs[k].created)
	})
	out := make([]Snapshot, len(jobs))
	for i, job := range jobs {
		out[i] = job.Snapshot()
	}
	return out
}

// Shutdown stops accepting jobs, cancels every active one and waits until
// their processes have exited.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) > 0 {
		s.logger.Infof("cancelling %d active downloads", len(ids))
	}
	for _, id := range ids {
		_ = s.Cancel(id)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return types.NewError(types.KindCancelled, "shutdown downloads", ctx.Err())
	}
}

func (s *Supervisor) emit(ev types.DownloadEvent) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package download

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/entrhq/siphon/pkg/cookies"
	"github.com/entrhq/siphon/pkg/types"
)

// Status is the lifecycle position of a download job.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// ProgressFunc receives progress events for one job. It is called from a
// dedicated goroutine, never from the output read loop.
type ProgressFunc func(types.DownloadEvent)

// Job is one supervised run of the external executable.
type Job struct {
	ID        string
	URL       string
	OutputDir string
	Cookies   []cookies.Cookie

	created time.Time

	mu         sync.Mutex
	status     Status
	progress   float64
	cookieFile string
	startedAt  time.Time
	finishedAt time.Time
	exitCode   int
	err        error
	process    *os.Process

	settleOnce sync.Once
	done       chan struct{}
	// exited is closed once the process has been reaped, which may be
	// after the job settled as cancelled.
	exited chan struct{}
}

// Snapshot is a copy of a job's observable state.
type Snapshot struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	OutputDir  string    `json:"output_dir"`
	Status     Status    `json:"-"`
	StatusName string    `json:"status"`
	Progress   float64   `json:"progress"`
	CookieFile string    `json:"cookie_file,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Result describes a settled job.
type Result struct {
	JobID    string
	Status   Status
	Progress float64
	ExitCode int
	Duration time.Duration
}

func newJob(id, url, outputDir string, list []cookies.Cookie) *Job {
	return &Job{
		ID:        id,
		URL:       url,
		OutputDir: outputDir,
		Cookies:   list,
		status:    StatusPending,
		created:   time.Now(),
		exitCode:  -1,
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
}

// Done is closed once the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Status returns the current status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns the last parsed percentage.
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Err returns the terminal error, or nil while running or after success.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Snapshot returns a copy of the job's state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:         j.ID,
		URL:        j.URL,
		OutputDir:  j.OutputDir,
		Status:     j.status,
		StatusName: j.status.String(),
		Progress:   j.progress,
		CookieFile: j.cookieFile,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}

// Wait blocks until the job settles or ctx is done. Returning early on ctx
// does not cancel the job.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, types.NewError(types.KindCancelled, "wait for download", ctx.Err())
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	res := &Result{
		JobID:    j.ID,
		Status:   j.status,
		Progress: j.progress,
		ExitCode: j.exitCode,
	}
	if !j.startedAt.IsZero() {
		res.Duration = j.finishedAt.Sub(j.startedAt)
	}
	return res, j.err
}

// markRunning moves Pending to Running. It fails if the job already settled,
// for example because it was cancelled while the process was being spawned.
func (j *Job) markRunning(p *os.Process) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusPending {
		return false
	}
	j.status = StatusRunning
	j.process = p
	j.startedAt = time.Now()
	return true
}

func (j *Job) setProgress(pct float64) {
	j.mu.Lock()
	j.progress = pct
	j.mu.Unlock()
}

func (j *Job) setCookieFile(path string) {
	j.mu.Lock()
	j.cookieFile = path
	j.mu.Unlock()
}

// settle records the terminal outcome. Only the first call has any effect;
// it reports whether this call won, the status the job held before and the
// process that was running, if any.
func (j *Job) settle(status Status, exitCode int, err error) (won bool, prev Status, proc *os.Process) {
	j.settleOnce.Do(func() {
		j.mu.Lock()
		prev = j.status
		proc = j.process
		j.status = status
		j.exitCode = exitCode
		j.err = err
		j.finishedAt = time.Now()
		j.process = nil
		j.mu.Unlock()
		close(j.done)
		won = true
	})
	return won, prev, proc
}

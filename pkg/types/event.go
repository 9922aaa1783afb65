package types

import "time"

// DownloadEventType defines the type of event emitted while a download job runs.
type DownloadEventType string

const (
	EventTypeDownloadStarted   DownloadEventType = "download_started"   // EventTypeDownloadStarted indicates the external process was spawned.
	EventTypeDownloadProgress  DownloadEventType = "download_progress"  // EventTypeDownloadProgress indicates a new progress percentage was parsed.
	EventTypeDownloadSucceeded DownloadEventType = "download_succeeded" // EventTypeDownloadSucceeded indicates the process exited with code 0.
	EventTypeDownloadFailed    DownloadEventType = "download_failed"    // EventTypeDownloadFailed indicates a spawn failure or non-zero exit.
	EventTypeDownloadCancelled DownloadEventType = "download_cancelled" // EventTypeDownloadCancelled indicates the job was cancelled by the caller.
)

// DownloadEvent represents a progress or lifecycle notification for a download job.
type DownloadEvent struct {
	// Time is when the event was produced.
	Time time.Time

	// Error contains the failure for failed events.
	Error error

	// JobID identifies the download job.
	JobID string

	// Line is the raw output line the progress was parsed from.
	Line string

	// Type indicates the kind of event.
	Type DownloadEventType

	// Progress is the last reported percentage, clamped to [0, 100].
	Progress float64
}

// IsTerminal reports whether the event ends the job's event stream.
func (e DownloadEvent) IsTerminal() bool {
	switch e.Type {
	case EventTypeDownloadSucceeded, EventTypeDownloadFailed, EventTypeDownloadCancelled:
		return true
	}
	return false
}

// NewProgressEvent creates a progress event.
func NewProgressEvent(jobID string, progress float64, line string) DownloadEvent {
	return DownloadEvent{
		Type:     EventTypeDownloadProgress,
		JobID:    jobID,
		Progress: progress,
		Line:     line,
		Time:     time.Now(),
	}
}

// NewDownloadStartedEvent creates an event for a freshly spawned process.
func NewDownloadStartedEvent(jobID string) DownloadEvent {
	return DownloadEvent{
		Type:  EventTypeDownloadStarted,
		JobID: jobID,
		Time:  time.Now(),
	}
}

// NewDownloadFinishedEvent creates the terminal event matching err.
// A nil error is a success; a KindCancelled error is a cancellation.
func NewDownloadFinishedEvent(jobID string, progress float64, err error) DownloadEvent {
	ev := DownloadEvent{
		Type:     EventTypeDownloadSucceeded,
		JobID:    jobID,
		Progress: progress,
		Error:    err,
		Time:     time.Now(),
	}
	switch {
	case err == nil:
	case KindOf(err) == KindCancelled:
		ev.Type = EventTypeDownloadCancelled
	default:
		ev.Type = EventTypeDownloadFailed
	}
	return ev
}

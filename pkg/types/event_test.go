package types

import (
	"errors"
	"testing"
)

func TestDownloadEventType(t *testing.T) {
	tests := []struct {
		eventType DownloadEventType
		expected  string
	}{
		{EventTypeDownloadStarted, "download_started"},
		{EventTypeDownloadProgress, "download_progress"},
		{EventTypeDownloadSucceeded, "download_succeeded"},
		{EventTypeDownloadFailed, "download_failed"},
		{EventTypeDownloadCancelled, "download_cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("got %q, want %q", tt.eventType, tt.expected)
			}
		})
	}
}

func TestNewProgressEvent(t *testing.T) {
	ev := NewProgressEvent("job-1", 55.5, "[download]  55.5% of 10MiB")

	if ev.Type != EventTypeDownloadProgress {
		t.Errorf("Type = %v, want %v", ev.Type, EventTypeDownloadProgress)
	}
	if ev.JobID != "job-1" {
		t.Errorf("JobID = %q, want job-1", ev.JobID)
	}
	if ev.Progress != 55.5 {
		t.Errorf("Progress = %v, want 55.5", ev.Progress)
	}
	if ev.Line != "[download]  55.5% of 10MiB" {
		t.Errorf("Line = %q", ev.Line)
	}
	if ev.Time.IsZero() {
		t.Error("Time should be set")
	}
}

func TestNewDownloadStartedEvent(t *testing.T) {
	ev := NewDownloadStartedEvent("job-2")
	if ev.Type != EventTypeDownloadStarted || ev.JobID != "job-2" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.IsTerminal() {
		t.Error("started event should not be terminal")
	}
}

func TestNewDownloadFinishedEvent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want DownloadEventType
	}{
		{"success", nil, EventTypeDownloadSucceeded},
		{"cancelled", NewError(KindCancelled, "download", nil), EventTypeDownloadCancelled},
		{"exit", ProcessExitError(1, ""), EventTypeDownloadFailed},
		{"spawn", NewError(KindSpawn, "download", errors.New("not found")), EventTypeDownloadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := NewDownloadFinishedEvent("job", 42, tt.err)
			if ev.Type != tt.want {
				t.Errorf("Type = %v, want %v", ev.Type, tt.want)
			}
			if !ev.IsTerminal() {
				t.Error("finished event should be terminal")
			}
		})
	}

	if NewProgressEvent("job", 10, "").IsTerminal() {
		t.Error("progress event should not be terminal")
	}
}

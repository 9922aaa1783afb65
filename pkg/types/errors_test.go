package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same kind",
			err:    NewError(KindIO, "write", errors.New("disk full")),
			target: ErrIO,
			want:   true,
		},
		{
			name:   "different kind",
			err:    NewError(KindIO, "write", nil),
			target: ErrSpawn,
			want:   false,
		},
		{
			name:   "wrapped with fmt",
			err:    fmt.Errorf("outer: %w", NewError(KindInvalidInput, "fetch cookies", nil)),
			target: ErrInvalidInput,
			want:   true,
		},
		{
			name:   "fetch failed exposes last cause",
			err:    NewError(KindFetchFailed, "fetch cookies", NewError(KindNavigationFailure, "navigate", nil)),
			target: ErrNavigationFailure,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.want {
				t.Errorf("errors.Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v, want unknown", got)
	}

	err := fmt.Errorf("ctx: %w", NewError(KindFetchFailed, "fetch", NewError(KindTimeout, "navigate", nil)))
	if got := KindOf(err); got != KindFetchFailed {
		t.Errorf("KindOf() = %v, want %v", got, KindFetchFailed)
	}
}

func TestProcessExitError(t *testing.T) {
	err := ProcessExitError(3, "ERROR: unsupported URL")

	if !errors.Is(err, ErrProcessExit) {
		t.Fatal("expected process exit kind")
	}
	code, ok := ExitCode(fmt.Errorf("wrapped: %w", err))
	if !ok || code != 3 {
		t.Errorf("ExitCode() = %d, %v; want 3, true", code, ok)
	}
	want := "download: process exited with code 3 (ERROR: unsupported URL)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestKindRetryable(t *testing.T) {
	retryable := map[Kind]bool{
		KindNavigationFailure: true,
		KindTimeout:           true,
		KindInvalidInput:      false,
		KindResourceExhausted: false,
		KindCancelled:         false,
		KindClosed:            false,
	}
	for kind, want := range retryable {
		if got := kind.Retryable(); got != want {
			t.Errorf("%v.Retryable() = %v, want %v", kind, got, want)
		}
	}
}

package types

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the cookie pool and the download supervisor.
type Kind int

const (
	KindUnknown           Kind = iota // KindUnknown is used for errors that carry no classification.
	KindInvalidInput                  // KindInvalidInput marks malformed caller input (bad URL, unknown job).
	KindResourceExhausted             // KindResourceExhausted marks insufficient host memory.
	KindNavigationFailure             // KindNavigationFailure marks a failed or non-2xx page navigation.
	KindTimeout                       // KindTimeout marks a per-attempt navigation timeout.
	KindFetchFailed                   // KindFetchFailed wraps the last cause once the retry budget is exhausted.
	KindSpawn                         // KindSpawn marks an external executable that could not be started.
	KindProcessExit                   // KindProcessExit marks a non-zero exit of the external executable.
	KindIO                            // KindIO marks filesystem failures.
	KindCancelled                     // KindCancelled marks caller-initiated cancellation.
	KindClosed                        // KindClosed marks requests made after shutdown began.
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindInvalidInput:      "invalid input",
	KindResourceExhausted: "resource exhausted",
	KindNavigationFailure: "navigation failure",
	KindTimeout:           "timeout",
	KindFetchFailed:       "fetch failed",
	KindSpawn:             "spawn error",
	KindProcessExit:       "process exit",
	KindIO:                "io error",
	KindCancelled:         "cancelled",
	KindClosed:            "closed",
}

// String returns a human readable name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether a fetch attempt that failed with this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindNavigationFailure || k == KindTimeout
}

// Sentinel values for errors.Is. They match any *Error of the same kind.
var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrResourceExhausted = &Error{Kind: KindResourceExhausted}
	ErrNavigationFailure = &Error{Kind: KindNavigationFailure}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrFetchFailed       = &Error{Kind: KindFetchFailed}
	ErrSpawn             = &Error{Kind: KindSpawn}
	ErrProcessExit       = &Error{Kind: KindProcessExit}
	ErrIO                = &Error{Kind: KindIO}
	ErrCancelled         = &Error{Kind: KindCancelled}
	ErrClosed            = &Error{Kind: KindClosed}
)

// Error is the typed error returned across package boundaries.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op names the operation that failed, e.g. "fetch cookies".
	Op string

	// Code is the process exit code for KindProcessExit.
	Code int

	// Detail is optional extra context (last stderr line, HTTP status).
	Detail string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Kind == KindProcessExit {
		msg = fmt.Sprintf("process exited with code %d", e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a typed error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a typed error whose cause is a formatted message.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// ProcessExitError builds the error reported when the external executable exits non-zero.
func ProcessExitError(code int, detail string) *Error {
	return &Error{Kind: KindProcessExit, Op: "download", Code: code, Detail: detail}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCode returns the exit code carried by a process-exit error, if any.
func ExitCode(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindProcessExit {
		return e.Code, true
	}
	return 0, false
}

// Package fserrors classifies errors into the two kinds the upload engine
// cares about: ones a retry could fix, and ones it cannot.
//
// This mirrors original_source/publisher/worker/exceptions.py
// (RetryException / NoRetryException) and the shouldRetry/fserrors calling
// convention used throughout backend/ftp/ftp.go and backend/sftp/sftp.go.
package fserrors

import (
	"errors"
	"net"
	"net/textproto"
	"os"

	pkgerrors "github.com/pkg/errors"
)

// NoRetryError is returned for failures that a retry cannot fix: a
// detected collision, a security violation, a malformed archive, an auth
// failure upstream. The scheduler must surface these immediately.
type NoRetryError struct {
	msg   string
	cause error
}

// NewNoRetry wraps msg (and an optional cause) as a no-retry failure.
func NewNoRetry(msg string, cause error) *NoRetryError {
	return &NoRetryError{msg: msg, cause: cause}
}

func (e *NoRetryError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *NoRetryError) Unwrap() error { return e.cause }

// AlreadyExistsError is the validator's collision failure (spec §4.7).
type AlreadyExistsError struct {
	Paths []string
}

func (e *AlreadyExistsError) Error() string {
	return "the following paths already exist on the remote: " + joinPaths(e.Paths)
}

// DoesNotExistError fires when a change-permissions target disappeared
// mid-run (spec §4.8, step 8).
type DoesNotExistError struct {
	Path string
}

func (e *DoesNotExistError) Error() string {
	return "path no longer exists on the remote: " + e.Path
}

// SecurityError signals a path that would escape the workspace (collector
// path-traversal rejection, spec §4.10).
type SecurityError struct {
	msg string
}

// NewSecurity builds a SecurityError.
func NewSecurity(msg string) *SecurityError { return &SecurityError{msg: msg} }

func (e *SecurityError) Error() string { return e.msg }

func joinPaths(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// IsNoRetry reports whether err belongs to the no-retry family: it should
// be surfaced to the caller as-is, never wrapped in a retry envelope.
func IsNoRetry(err error) bool {
	if err == nil {
		return false
	}
	var noRetry *NoRetryError
	var exists *AlreadyExistsError
	var notExist *DoesNotExistError
	var security *SecurityError
	switch {
	case errors.As(err, &noRetry):
		return true
	case errors.As(err, &exists):
		return true
	case errors.As(err, &notExist):
		return true
	case errors.As(err, &security):
		return true
	}
	return false
}

// ShouldRetry reports whether err looks like a transient transport
// failure worth a reconnect-and-retry (C3) or a scheduler-level retry
// (C9's RetryException). Mirrors backend/ftp/ftp.go's shouldRetry, minus
// its context-cancellation check: a cancelled or expired context's error
// is not special-cased and is reported as retryable.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if IsNoRetry(err) {
		return false
	}
	cause := pkgerrors.Cause(err)
	var netErr net.Error
	if errors.As(cause, &netErr) {
		return true
	}
	var protoErr *textproto.Error
	if errors.As(cause, &protoErr) {
		switch protoErr.Code {
		case 421, 425, 426, 450, 451, 452:
			return true
		}
		return false
	}
	if errors.Is(cause, os.ErrDeadlineExceeded) {
		return true
	}
	if errors.Is(cause, net.ErrClosed) {
		return true
	}
	// Unrecognized errors are assumed transient: a crash mid-execution
	// should resume rather than hard-fail, per spec §7.
	return true
}

// RetryError is raised by the upload engine when an operation fails in a
// retryable way partway through a job. It carries an opaque JSON recovery
// blob (see internal/engine/recovery.go) the scheduler hands back on the
// next attempt; the blob has no format version field.
type RetryError struct {
	msg     string
	Blob    []byte
	cause   error
}

// NewRetry builds a RetryError wrapping cause with the serialized resume
// state blob.
func NewRetry(msg string, cause error, blob []byte) *RetryError {
	return &RetryError{msg: msg, cause: cause, Blob: blob}
}

func (e *RetryError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *RetryError) Unwrap() error { return e.cause }

// Package backend defines the remote filesystem abstraction (C2) shared
// by the FTP and SFTP implementations, and the reconnect-and-retry
// decorator (C3) that wraps any Backend with crash-tolerant retry
// semantics.
//
// Grounded on original_source/publisher/worker/managers/backends.py's
// ConnectionBackEnd abstract base (connect/quit plus the
// on_exception_reconnect_and_retry decorator applied to every other
// method).
package backend

import (
	"context"
	"io"
)

// EntryType is the kind of remote object Type reports.
type EntryType int

const (
	// TypeUnknown means the path does not exist.
	TypeUnknown EntryType = iota
	// TypeFile is a plain remote file.
	TypeFile
	// TypeDir is a remote directory.
	TypeDir
)

// Backend is the full set of remote filesystem primitives the upload
// engine (C9) and validator (C8) need, regardless of whether the
// underlying transport is FTP or SFTP. Every method other than Connect
// and Quit is expected to be wrapped by a retry decorator (see
// WithRetry) by the time the engine receives it.
type Backend interface {
	// Connect establishes the underlying session. Never retried itself:
	// a failure here means there is nothing to reconnect to.
	Connect(ctx context.Context) error
	// Quit tears the session down. Never retried.
	Quit(ctx context.Context) error

	// Exists reports whether path (file or folder) is present remotely.
	Exists(ctx context.Context, path string) (bool, error)
	// Dir lists the immediate child names of the remote folder at path.
	Dir(ctx context.Context, path string) ([]string, error)
	// Type reports whether path is a file, a directory, or absent.
	Type(ctx context.Context, path string) (EntryType, error)
	// Size reports a remote file's size in bytes.
	Size(ctx context.Context, path string) (int64, error)

	// Download streams the remote file at path into w.
	Download(ctx context.Context, path string, w io.Writer) error
	// Upload streams r into the remote file at path, creating or
	// overwriting it.
	Upload(ctx context.Context, path string, r io.Reader) error

	// Mkdir creates a remote directory. Implementations treat an
	// already-exists response as success, matching the original's
	// handling of quirky FTP "already exists" status codes.
	Mkdir(ctx context.Context, path string) error
	// DeleteFile removes a single remote file.
	DeleteFile(ctx context.Context, path string) error
	// DeleteDirectory removes an empty remote directory. Removing a
	// non-empty directory fails with an error; callers consult Dir first.
	DeleteDirectory(ctx context.Context, path string) error
	// Chmod applies perm (one of manifest.Permission's chmod strings) to
	// path.
	Chmod(ctx context.Context, path string, perm string) error
	// EraseDirectory recursively removes everything under path,
	// including path itself.
	EraseDirectory(ctx context.Context, path string) error
}

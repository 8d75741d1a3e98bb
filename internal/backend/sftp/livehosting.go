package sftp

import (
	"context"
	"os"
)

// LiveHosting wraps Backend with the symlink-aware operations
// LiveHostingSFTPBackEnd adds in
// original_source/publisher/worker/managers/backends.py: Symlink,
// Readlink, and Lstat (lstat), used by the live-hosting publish path to
// publish atomically via a symlink swap instead of an in-place overwrite.
type LiveHosting struct {
	*Backend
}

// NewLiveHosting wraps a plain SFTP Backend with symlink support.
func NewLiveHosting(opts Options) *LiveHosting {
	return &LiveHosting{Backend: New(opts)}
}

// Symlink creates a symbolic link at newname pointing at oldname.
func (l *LiveHosting) Symlink(ctx context.Context, oldname, newname string) error {
	return l.sftp.Symlink(oldname, newname)
}

// Readlink resolves the target of the symbolic link at name.
func (l *LiveHosting) Readlink(ctx context.Context, name string) (string, error) {
	return l.sftp.ReadLink(name)
}

// Lstat stats name without following a trailing symlink, matching
// LiveHostingSFTPBackEnd.lstat.
func (l *LiveHosting) Lstat(ctx context.Context, name string) (os.FileInfo, error) {
	return l.sftp.Lstat(name)
}

// ListDirAttr lists path's children along with their full attributes
// (mirroring paramiko's listdir_attr), used by the live-hosting manager
// to tell real directories from symlinked ones without a second round
// trip per entry.
func (l *LiveHosting) ListDirAttr(ctx context.Context, path string) ([]os.FileInfo, error) {
	return l.sftp.ReadDir(path)
}

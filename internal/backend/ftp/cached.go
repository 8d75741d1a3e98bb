package ftp

import (
	"context"
	"io"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sitehost/publisher/internal/backend"
)

// Cached wraps Backend with a per-folder directory-listing cache backed
// by github.com/patrickmn/go-cache. Entries never expire on their own —
// invalidation is purely event-driven, matching
// CachedFTPUploadBackEnd._invalidate_cache in
// original_source/publisher/worker/managers/backends.py, which clears the
// whole cache on connect() and on every mutating operation.
type Cached struct {
	*Backend
	listings *gocache.Cache
}

// NewCached wraps a plain Backend with directory-listing caching.
func NewCached(opts Options) *Cached {
	return &Cached{
		Backend:  New(opts),
		listings: gocache.New(gocache.NoExpiration, gocache.NoExpiration),
	}
}

var _ backend.Backend = (*Cached)(nil)

func (c *Cached) invalidate() {
	c.listings.Flush()
}

func (c *Cached) Connect(ctx context.Context) error {
	c.invalidate()
	return c.Backend.Connect(ctx)
}

func (c *Cached) Dir(ctx context.Context, path string) ([]string, error) {
	if cached, ok := c.listings.Get(path); ok {
		return cached.([]string), nil
	}
	names, err := c.Backend.Dir(ctx, path)
	if err != nil {
		return nil, err
	}
	c.listings.Set(path, names, gocache.NoExpiration)
	return names, nil
}

func (c *Cached) Type(ctx context.Context, path string) (backend.EntryType, error) {
	parent, name := splitPath(path)
	names, err := c.Dir(ctx, parent)
	if err != nil {
		return backend.TypeUnknown, err
	}
	for _, n := range names {
		if n == name {
			// The cached listing only carries names; fall back to the
			// underlying backend for the type of a known-present entry.
			return c.Backend.Type(ctx, path)
		}
	}
	return backend.TypeUnknown, nil
}

func (c *Cached) Exists(ctx context.Context, path string) (bool, error) {
	typ, err := c.Type(ctx, path)
	if err != nil {
		return false, err
	}
	return typ != backend.TypeUnknown, nil
}

func (c *Cached) Upload(ctx context.Context, path string, r io.Reader) error {
	c.invalidate()
	return c.Backend.Upload(ctx, path, r)
}

func (c *Cached) Mkdir(ctx context.Context, path string) error {
	c.invalidate()
	return c.Backend.Mkdir(ctx, path)
}

func (c *Cached) DeleteFile(ctx context.Context, path string) error {
	c.invalidate()
	return c.Backend.DeleteFile(ctx, path)
}

func (c *Cached) DeleteDirectory(ctx context.Context, path string) error {
	c.invalidate()
	return c.Backend.DeleteDirectory(ctx, path)
}

func (c *Cached) EraseDirectory(ctx context.Context, path string) error {
	c.invalidate()
	return c.Backend.EraseDirectory(ctx, path)
}

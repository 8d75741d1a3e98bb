package ftp

import (
	"context"
	"strings"

	"github.com/sitehost/publisher/internal/backend"
)

// Boosted wraps Cached with the prefix-walk optimization from
// BoostedFTPUploadBackEnd in
// original_source/publisher/worker/managers/backends.py: before trusting
// a deep path's Exists/Type/Dir result, it walks the path's ancestor
// folders top-down through the (already-caching) Dir lookups, so a
// missing shallow ancestor short-circuits the whole subtree without ever
// issuing the deep LIST.
type Boosted struct {
	*Cached
}

// NewBoosted wraps a cached Backend with the ancestor short-circuit.
func NewBoosted(opts Options) *Boosted {
	return &Boosted{Cached: NewCached(opts)}
}

var _ backend.Backend = (*Boosted)(nil)

// prefixes returns path's ancestor folders in top-down order, e.g.
// "a/b/c" -> ["a", "a/b"]. An empty or root path has no ancestors.
func prefixes(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts)-1)
	acc := ""
	for i := 0; i < len(parts)-1; i++ {
		if acc == "" {
			acc = parts[i]
		} else {
			acc = acc + "/" + parts[i]
		}
		out = append(out, acc)
	}
	return out
}

// ancestorsExist walks path's ancestor folders top-down, returning false
// the moment one is missing — at that point the caller already knows
// path itself cannot exist, without listing it directly.
func (b *Boosted) ancestorsExist(ctx context.Context, path string) (bool, error) {
	for _, ancestor := range prefixes(path) {
		typ, err := b.Cached.Type(ctx, ancestor)
		if err != nil {
			return false, err
		}
		if typ != backend.TypeDir {
			return false, nil
		}
	}
	return true, nil
}

func (b *Boosted) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := b.ancestorsExist(ctx, path)
	if err != nil || !ok {
		return false, err
	}
	return b.Cached.Exists(ctx, path)
}

func (b *Boosted) Type(ctx context.Context, path string) (backend.EntryType, error) {
	ok, err := b.ancestorsExist(ctx, path)
	if err != nil {
		return backend.TypeUnknown, err
	}
	if !ok {
		return backend.TypeUnknown, nil
	}
	return b.Cached.Type(ctx, path)
}

func (b *Boosted) Dir(ctx context.Context, path string) ([]string, error) {
	ok, err := b.ancestorsExist(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return b.Cached.Dir(ctx, path)
}

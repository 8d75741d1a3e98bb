// Package collector downloads a site export archive, validates it, and
// extracts it into a local working directory (C10).
//
// Grounded on original_source/publisher/worker/collector.py's
// ZIPCollector: spooled download, magic-number + CRC + path-traversal
// validation, then extraction. archive/zip (stdlib) is used for reading
// the archive, matching backend/zip/zip.go's own use of the same
// package — no third-party zip-reading library appears anywhere in the
// retrieved pack, so this is the one deliberately stdlib-only component
// (see DESIGN.md).
package collector

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sitehost/publisher/internal/fserrors"
	"github.com/sitehost/publisher/internal/plog"
)

// Collector downloads and unpacks one site archive.
type Collector struct {
	// HTTPClient is used to fetch the archive; defaults to
	// http.DefaultClient when nil.
	HTTPClient *http.Client
}

// Collect downloads the archive at url, validates it, and extracts it
// into workingDir. Mirrors ZIPCollector.collect's
// _downloadData/_validateData/_extractData sequence. Every failure here
// is a no-retry failure (fserrors.IsNoRetry reports true): a malformed
// archive or path-traversal attempt will reproduce identically on a retry.
func (c *Collector) Collect(ctx context.Context, url, workingDir string) error {
	jobID := uuid.New().String()
	plog.Infof(plog.Named("collector"), "[%s] collecting %s", jobID, url)

	spool, err := c.download(ctx, url)
	if err != nil {
		if fserrors.IsNoRetry(err) {
			return err
		}
		return fserrors.NewNoRetry("archive download failed", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	size, err := spool.Seek(0, io.SeekEnd)
	if err != nil {
		return fserrors.NewNoRetry("downloaded archive could not be read", err)
	}

	zr, err := zip.NewReader(spool, size)
	if err != nil {
		// Magic-number / central-directory check, matching
		// zipfile.is_zipfile.
		return fserrors.NewNoRetry("downloaded archive is not a valid zip file", err)
	}
	if err := validateMembers(zr); err != nil {
		return err
	}
	if err := extract(zr, workingDir); err != nil {
		return fserrors.NewNoRetry("archive extraction failed", err)
	}
	return nil
}

// download spools the archive to a temp file so a large export never
// sits fully in memory, matching _downloadData's
// tempfile.SpooledTemporaryFile use.
func (c *Collector) download(ctx context.Context, url string) (*os.File, error) {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fserrors.NewNoRetry("archive download failed with non-200 status", nil)
	}

	spool, err := os.CreateTemp("", "publisher-archive-*.zip")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(spool, resp.Body); err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, err
	}
	return spool, nil
}

// validateMembers runs the internal CRC walk (archive/zip validates
// CRC32 as each member is fully read, standing in for zipfile.testzip())
// and the path-traversal check (rejecting ".." or a leading "/" in any
// member name), matching _validateData's two remaining checks after the
// magic-number test.
func validateMembers(zr *zip.Reader) error {
	for _, f := range zr.File {
		if isUnsafePath(f.Name) {
			return fserrors.NewSecurity("archive member escapes the extraction directory: " + f.Name)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return fserrors.NewNoRetry("archive member could not be opened: "+f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fserrors.NewNoRetry("archive failed CRC validation: "+f.Name, err)
		}
	}
	return nil
}

// isUnsafePath reports whether name (a zip member path) would escape the
// extraction root, matching the original's literal ".." / leading "/"
// checks.
func isUnsafePath(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// extract writes every member of zr into workingDir, matching
// _extractData's zfile.extractall(working_dir).
func extract(zr *zip.Reader, workingDir string) error {
	for _, f := range zr.File {
		target := filepath.Join(workingDir, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractOne(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractOne(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	plog.Debugf(plog.Named("collector"), "extracted %s", target)
	return nil
}

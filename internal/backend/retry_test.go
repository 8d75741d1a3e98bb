package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/sitehost/publisher/internal/fserrors"
)

// fakeBackend lets tests script a sequence of failures before success,
// and counts Connect/Quit calls to verify the reconnect cycle fires.
type fakeBackend struct {
	connects, quits int
	existsCalls     int
	failFirstN      int
	failErr         error
}

func (f *fakeBackend) Connect(ctx context.Context) error { f.connects++; return nil }
func (f *fakeBackend) Quit(ctx context.Context) error    { f.quits++; return nil }

func (f *fakeBackend) Exists(ctx context.Context, path string) (bool, error) {
	f.existsCalls++
	if f.existsCalls <= f.failFirstN {
		return false, f.failErr
	}
	return true, nil
}

func (f *fakeBackend) Dir(ctx context.Context, path string) ([]string, error) { return nil, nil }
func (f *fakeBackend) Type(ctx context.Context, path string) (EntryType, error) {
	return TypeFile, nil
}
func (f *fakeBackend) Size(ctx context.Context, path string) (int64, error) { return 0, nil }
func (f *fakeBackend) Download(ctx context.Context, path string, w io.Writer) error {
	return nil
}

func (f *fakeBackend) Upload(ctx context.Context, path string, r io.Reader) error {
	f.existsCalls++
	if f.existsCalls <= f.failFirstN {
		return f.failErr
	}
	_, err := io.Copy(io.Discard, r)
	return err
}

func (f *fakeBackend) Mkdir(ctx context.Context, path string) error            { return nil }
func (f *fakeBackend) DeleteFile(ctx context.Context, path string) error      { return nil }
func (f *fakeBackend) DeleteDirectory(ctx context.Context, path string) error { return nil }
func (f *fakeBackend) Chmod(ctx context.Context, path string, perm string) error {
	return nil
}
func (f *fakeBackend) EraseDirectory(ctx context.Context, path string) error { return nil }

type transientErr struct{}

func (transientErr) Error() string   { return "connection reset" }
func (transientErr) Timeout() bool   { return false }
func (transientErr) Temporary() bool { return true }

var _ net.Error = transientErr{}

func TestRetrySucceedsAfterOneTransientFailure(t *testing.T) {
	fake := &fakeBackend{failFirstN: 1, failErr: transientErr{}}
	b := WithRetry(fake, "test")

	ok, err := b.Exists(context.Background(), "/some/path")
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected Exists to report true after retry")
	}
	if fake.connects != 1 || fake.quits != 1 {
		t.Errorf("expected exactly one reconnect cycle, got connects=%d quits=%d", fake.connects, fake.quits)
	}
}

func TestRetryGivesUpAfterSecondFailure(t *testing.T) {
	fake := &fakeBackend{failFirstN: 2, failErr: transientErr{}}
	b := WithRetry(fake, "test")

	_, err := b.Exists(context.Background(), "/some/path")
	if err == nil {
		t.Fatal("expected Exists to fail after exhausting the single retry")
	}
}

func TestRetryDoesNotRetryNoRetryError(t *testing.T) {
	fake := &fakeBackend{failFirstN: 1, failErr: fserrors.NewNoRetry("collision", nil)}
	b := WithRetry(fake, "test")

	_, err := b.Exists(context.Background(), "/some/path")
	if err == nil {
		t.Fatal("expected no-retry error to propagate immediately")
	}
	if fake.connects != 0 {
		t.Errorf("expected no reconnect attempt for a no-retry error, got connects=%d", fake.connects)
	}
}

func TestRetryUploadRewindsSeekableReader(t *testing.T) {
	fake := &fakeBackend{failFirstN: 1, failErr: transientErr{}}
	b := WithRetry(fake, "test")

	r := bytes.NewReader([]byte("payload"))
	err := b.Upload(context.Background(), "/f", r)
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if fake.connects != 1 {
		t.Errorf("expected one reconnect cycle, got %d", fake.connects)
	}
}

func TestRetryUploadGivesUpOnUnseekableReader(t *testing.T) {
	fake := &fakeBackend{failFirstN: 1, failErr: transientErr{}}
	b := WithRetry(fake, "test")

	r := io.NopCloser(bytes.NewReader([]byte("payload")))
	err := b.Upload(context.Background(), "/f", r)
	if err == nil {
		t.Fatal("expected unretryable failure for a non-seekable reader")
	}
	if !errors.Is(err, transientErr{}) {
		// transientErr has no Is method; just confirm it's the same error value via string.
		if err.Error() != (transientErr{}).Error() {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

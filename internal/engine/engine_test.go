package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sitehost/publisher/internal/backend"
	"github.com/sitehost/publisher/internal/manifest"
)

// memBackend is an in-memory fake remote filesystem used to drive the
// engine end to end without a real FTP/SFTP server.
type memBackend struct {
	files   map[string][]byte
	folders map[string]bool
	// undeletable marks paths whose DeleteFile/DeleteDirectory should
	// fail, exercising the tombstone path.
	undeletable map[string]bool
}

func newMemBackend() *memBackend {
	return &memBackend{files: map[string][]byte{}, folders: map[string]bool{}, undeletable: map[string]bool{}}
}

func (m *memBackend) Connect(ctx context.Context) error { return nil }
func (m *memBackend) Quit(ctx context.Context) error    { return nil }

func (m *memBackend) Exists(ctx context.Context, path string) (bool, error) {
	if _, ok := m.files[path]; ok {
		return true, nil
	}
	return m.folders[path], nil
}

func (m *memBackend) Dir(ctx context.Context, path string) ([]string, error) {
	prefix := path + "/"
	if path == "." {
		prefix = ""
	}
	var out []string
	seen := map[string]bool{}
	add := func(full string) {
		rest := strings.TrimPrefix(full, prefix)
		if rest == full || rest == "" {
			return
		}
		name := rest
		if idx := strings.Index(rest, "/"); idx >= 0 {
			name = rest[:idx]
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for p := range m.files {
		add(p)
	}
	for p := range m.folders {
		add(p)
	}
	return out, nil
}

func (m *memBackend) Type(ctx context.Context, path string) (backend.EntryType, error) {
	if _, ok := m.files[path]; ok {
		return backend.TypeFile, nil
	}
	if m.folders[path] {
		return backend.TypeDir, nil
	}
	return backend.TypeUnknown, nil
}

func (m *memBackend) Size(ctx context.Context, path string) (int64, error) {
	return int64(len(m.files[path])), nil
}

func (m *memBackend) Download(ctx context.Context, path string, w io.Writer) error {
	_, err := w.Write(m.files[path])
	return err
}

func (m *memBackend) Upload(ctx context.Context, path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.files[path] = data
	return nil
}

func (m *memBackend) Mkdir(ctx context.Context, path string) error {
	m.folders[path] = true
	return nil
}

func (m *memBackend) DeleteFile(ctx context.Context, path string) error {
	if m.undeletable[path] {
		return errors.New("permission denied")
	}
	delete(m.files, path)
	return nil
}

func (m *memBackend) DeleteDirectory(ctx context.Context, path string) error {
	if m.undeletable[path] {
		return errors.New("permission denied")
	}
	delete(m.folders, path)
	return nil
}

func (m *memBackend) Chmod(ctx context.Context, path string, perm string) error { return nil }

func (m *memBackend) EraseDirectory(ctx context.Context, path string) error {
	prefix := path + "/"
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			delete(m.files, p)
		}
	}
	for p := range m.folders {
		if strings.HasPrefix(p, prefix) || p == path {
			delete(m.folders, p)
		}
	}
	return nil
}

func TestJobStartFreshPublish(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "assets", "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}

	mem := newMemBackend()
	job := &Job{
		Backend:     mem,
		LocalRoot:   root,
		Permissions: PermissionMap{Default: "644", Writeable: "755", Cache: "755"},
	}

	if err := job.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if string(mem.files["index.html"]) != "hello" {
		t.Errorf("index.html not uploaded correctly: %q", mem.files["index.html"])
	}
	if string(mem.files["assets/app.js"]) != "console.log(1)" {
		t.Errorf("assets/app.js not uploaded correctly: %q", mem.files["assets/app.js"])
	}
	if !mem.folders["assets"] {
		t.Error("assets folder was not created")
	}

	var manifestFolder string
	for f := range mem.folders {
		if strings.HasPrefix(f, manifestFolderPrefix) {
			manifestFolder = f
		}
	}
	if manifestFolder == "" {
		t.Fatal("no manifest folder was created")
	}
	if _, ok := mem.files[manifestFolder+"/"+manifestFileName]; !ok {
		t.Error("final manifest was not uploaded")
	}
	if _, ok := mem.files[manifestFolder+"/"+manifestTmpFileName]; ok {
		t.Error("temp manifest should have been deleted after a successful run")
	}
}

func TestJobStartSecondRunIsNoop(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	mem := newMemBackend()
	job := &Job{Backend: mem, LocalRoot: root, Permissions: PermissionMap{Default: "644", Writeable: "755", Cache: "755"}}

	if err := job.Start(context.Background(), nil); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := job.Start(context.Background(), nil); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if string(mem.files["a.txt"]) != "v1" {
		t.Errorf("a.txt content changed unexpectedly: %q", mem.files["a.txt"])
	}
}

func TestJobStartTombstonesUndeletableRemoteFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	mem := newMemBackend()
	job := &Job{Backend: mem, LocalRoot: root, Permissions: PermissionMap{Default: "644", Writeable: "755", Cache: "755"}}

	if err := job.Start(context.Background(), nil); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	var manifestFolder string
	for f := range mem.folders {
		if strings.HasPrefix(f, manifestFolderPrefix) {
			manifestFolder = f
		}
	}
	if manifestFolder == "" {
		t.Fatal("no manifest folder was created")
	}

	// Inject a remote-only file into the manifest and the remote
	// filesystem, then make it impossible to delete.
	fl, err := manifest.ReadManifest(mem.files[manifestFolder+"/"+manifestFileName], nil)
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	fl.Files["gone.txt"] = manifest.Entry{Kind: manifest.File, Path: "gone.txt", Permission: manifest.PermDefault, Size: 1, Checksum: "z"}
	data, err := fl.GenerateManifest()
	if err != nil {
		t.Fatalf("regenerate manifest: %v", err)
	}
	mem.files[manifestFolder+"/"+manifestFileName] = data
	mem.files["gone.txt"] = []byte("x")
	mem.undeletable["gone.txt"] = true

	if err := job.Start(context.Background(), nil); err != nil {
		t.Fatalf("second Start should absorb the delete failure, got: %v", err)
	}

	if _, ok := mem.files["gone.txt"]; !ok {
		t.Error("gone.txt should still be present since its delete failed")
	}

	final, err := manifest.ReadManifest(mem.files[manifestFolder+"/"+manifestFileName], nil)
	if err != nil {
		t.Fatalf("parse final manifest: %v", err)
	}
	tomb, ok := final.GetFile("gone.txt")
	if !ok {
		t.Fatal("expected gone.txt tombstone entry in final manifest")
	}
	if !tomb.Old {
		t.Errorf("expected gone.txt entry to be marked Old, got %+v", tomb)
	}
}

func TestJobDeleteAll(t *testing.T) {
	mem := newMemBackend()
	mem.files["a.txt"] = []byte("x")
	mem.folders["dir"] = true
	mem.files["dir/b.txt"] = []byte("y")

	job := &Job{Backend: mem}
	if err := job.DeleteAll(context.Background()); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if len(mem.files) != 0 || len(mem.folders) != 0 {
		t.Errorf("expected remote to be empty, got files=%v folders=%v", mem.files, mem.folders)
	}
}

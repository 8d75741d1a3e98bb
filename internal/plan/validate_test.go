package plan

import (
	"context"
	"io"
	"testing"

	"github.com/sitehost/publisher/internal/backend"
)

type stubBackend struct {
	existingPaths map[string]bool
	dirContents   map[string][]string
}

func (s *stubBackend) Connect(ctx context.Context) error { return nil }
func (s *stubBackend) Quit(ctx context.Context) error    { return nil }
func (s *stubBackend) Exists(ctx context.Context, path string) (bool, error) {
	return s.existingPaths[path], nil
}
func (s *stubBackend) Dir(ctx context.Context, path string) ([]string, error) {
	return s.dirContents[path], nil
}
func (s *stubBackend) Type(ctx context.Context, path string) (backend.EntryType, error) {
	return backend.TypeUnknown, nil
}
func (s *stubBackend) Size(ctx context.Context, path string) (int64, error) { return 0, nil }
func (s *stubBackend) Download(ctx context.Context, path string, w io.Writer) error {
	return nil
}
func (s *stubBackend) Upload(ctx context.Context, path string, r io.Reader) error { return nil }
func (s *stubBackend) Mkdir(ctx context.Context, path string) error               { return nil }
func (s *stubBackend) DeleteFile(ctx context.Context, path string) error         { return nil }
func (s *stubBackend) DeleteDirectory(ctx context.Context, path string) error    { return nil }
func (s *stubBackend) Chmod(ctx context.Context, path string, perm string) error { return nil }
func (s *stubBackend) EraseDirectory(ctx context.Context, path string) error     { return nil }

func TestValidateNewDetectsCollision(t *testing.T) {
	stub := &stubBackend{existingPaths: map[string]bool{"new.txt": true}}
	tl := &TaskList{NewFiles: []Task{{Path: "new.txt"}}}

	err := ValidateNew(context.Background(), stub, tl)
	if err == nil {
		t.Fatal("expected AlreadyExistsError for a colliding new file")
	}
}

func TestValidateNewExemptsEraseCoveredPaths(t *testing.T) {
	stub := &stubBackend{existingPaths: map[string]bool{"cache/new.txt": true}}
	tl := &TaskList{
		NewFiles:     []Task{{Path: "cache/new.txt"}},
		EraseFolders: []Task{{Path: "cache"}},
	}

	err := ValidateNew(context.Background(), stub, tl)
	if err != nil {
		t.Fatalf("expected no error for a path covered by an erase prefix, got %v", err)
	}
}

func TestValidateDeleteFoldersFiltersNonEmpty(t *testing.T) {
	stub := &stubBackend{dirContents: map[string][]string{
		"empty":     nil,
		"has-stuff": {"leftover.txt"},
	}}
	tl := &TaskList{DeleteFolders: []Task{{Path: "empty"}, {Path: "has-stuff"}}}

	nonEmpty, err := ValidateDeleteFolders(context.Background(), stub, tl)
	if err != nil {
		t.Fatalf("ValidateDeleteFolders: %v", err)
	}
	if len(nonEmpty) != 1 || nonEmpty[0].Path != "has-stuff" {
		t.Errorf("expected has-stuff flagged non-empty, got %+v", nonEmpty)
	}
	if len(tl.DeleteFolders) != 1 || tl.DeleteFolders[0].Path != "empty" {
		t.Errorf("expected only empty folder to remain in DeleteFolders, got %+v", tl.DeleteFolders)
	}
}

func TestValidateDeleteFoldersSubtractsOwnScheduledChildren(t *testing.T) {
	stub := &stubBackend{dirContents: map[string][]string{
		"parent": {"child.txt", "childdir"},
	}}
	tl := &TaskList{
		DeleteFolders: []Task{{Path: "parent"}, {Path: "parent/childdir"}},
		DeleteFiles:   []Task{{Path: "parent/child.txt"}},
	}

	nonEmpty, err := ValidateDeleteFolders(context.Background(), stub, tl)
	if err != nil {
		t.Fatalf("ValidateDeleteFolders: %v", err)
	}
	if len(nonEmpty) != 0 {
		t.Errorf("expected parent's own scheduled children to be subtracted, got leftover %+v", nonEmpty)
	}
	paths := map[string]bool{}
	for _, dt := range tl.DeleteFolders {
		paths[dt.Path] = true
	}
	if !paths["parent"] || !paths["parent/childdir"] {
		t.Errorf("expected both folders to remain in DeleteFolders, got %+v", tl.DeleteFolders)
	}
}

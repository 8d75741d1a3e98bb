package manifest

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// FileList is the full scanned-or-loaded state of one side (local or
// remote) of a publish: every folder and file path, tagged with its
// permission class and, for files, size/checksum.
type FileList struct {
	Folders map[string]Entry
	Files   map[string]Entry
}

// New returns an empty FileList.
func New() *FileList {
	return &FileList{Folders: map[string]Entry{}, Files: map[string]Entry{}}
}

// md5sum hashes a file's contents in 128-byte blocks, matching
// manifestbased.py's md5sum() block size.
func md5sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	buf := make([]byte, 128)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// permissionFor classifies relPath (a '/'-separated path relative to the
// scan root) against the writeable and cache path lists. The first list
// whose entries are a path-or-prefix-of relPath wins, with cache checked
// first since cache paths are also typically writeable from the caller's
// point of view but must keep their distinct erase-on-change semantics.
func permissionFor(relPath string, writeable, cache []string) Permission {
	if pathListContains(cache, relPath) {
		return PermCache
	}
	if pathListContains(writeable, relPath) {
		return PermWriteable
	}
	return PermDefault
}

func pathListContains(list []string, relPath string) bool {
	for _, p := range list {
		if p == relPath {
			return true
		}
		if len(relPath) > len(p) && relPath[:len(p)] == p && relPath[len(p)] == '/' {
			return true
		}
	}
	return false
}

// ScanLocalFolder walks root and builds a FileList of every folder and
// file beneath it, relative to root, classifying each path against the
// writeable and cache lists. Grounded on FileList.scan_local_folder's
// os.walk traversal in manifestbased.py.
func ScanLocalFolder(root string, writeable, cache []string) (*FileList, error) {
	fl := New()
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		perm := permissionFor(rel, writeable, cache)
		if info.IsDir() {
			fl.Folders[rel] = Entry{Kind: Folder, Path: rel, Permission: perm}
			return nil
		}
		sum, err := md5sum(path)
		if err != nil {
			return err
		}
		fl.Files[rel] = Entry{Kind: File, Path: rel, Permission: perm, Size: info.Size(), Checksum: sum}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fl, nil
}

// ReadManifest parses a manifest JSON document (the authoritative
// `.manifest`) and, if recovery is non-nil, overlays a recovery document
// (`.manifest.new`) on top — entries present in the recovery document win,
// since they reflect a mid-crash upload-in-progress state that is newer
// than the authoritative manifest. Mirrors read_json_manifest's merge
// order in manifestbased.py.
func ReadManifest(manifest []byte, recovery []byte) (*FileList, error) {
	fl, err := parseManifest(manifest)
	if err != nil {
		return nil, err
	}
	if recovery == nil {
		return fl, nil
	}
	overlay, err := parseManifest(recovery)
	if err != nil {
		return nil, err
	}
	for path, entry := range overlay.Folders {
		fl.Folders[path] = entry
	}
	for path, entry := range overlay.Files {
		fl.Files[path] = entry
	}
	return fl, nil
}

func parseManifest(data []byte) (*FileList, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	fl := New()
	for _, e := range entries {
		switch e.Kind {
		case Folder:
			fl.Folders[e.Path] = e
		case File:
			fl.Files[e.Path] = e
		}
	}
	return fl, nil
}

// GenerateManifest serializes fl back to the on-wire tuple-array format,
// with folders sorted before files and both sorted by path for
// deterministic output. Mirrors FileList.generate_manifest.
func (fl *FileList) GenerateManifest() ([]byte, error) {
	entries := make([]Entry, 0, len(fl.Folders)+len(fl.Files))
	for _, folderPath := range sortedKeys(fl.Folders) {
		entries = append(entries, fl.Folders[folderPath])
	}
	for _, filePath := range sortedKeys(fl.Files) {
		entries = append(entries, fl.Files[filePath])
	}
	return json.Marshal(entries)
}

func sortedKeys(m map[string]Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetFolders returns every folder entry, sorted by path ascending.
func (fl *FileList) GetFolders() []Entry {
	out := make([]Entry, 0, len(fl.Folders))
	for _, p := range sortedKeys(fl.Folders) {
		out = append(out, fl.Folders[p])
	}
	return out
}

// GetFiles returns every file entry, sorted by path ascending.
func (fl *FileList) GetFiles() []Entry {
	out := make([]Entry, 0, len(fl.Files))
	for _, p := range sortedKeys(fl.Files) {
		out = append(out, fl.Files[p])
	}
	return out
}

// GetFile looks up a single file entry by path.
func (fl *FileList) GetFile(path string) (Entry, bool) {
	e, ok := fl.Files[path]
	return e, ok
}

// GetFolder looks up a single folder entry by path.
func (fl *FileList) GetFolder(path string) (Entry, bool) {
	e, ok := fl.Folders[path]
	return e, ok
}

// RemoveInvalids keeps only the entries exists accepts, dropping every
// other file and folder entry in place. Mirrors FileList.remove_invalids(
// predicate), called as remove_invalids(back_end.exists) when loading the
// remote manifest: an entry for an object a human deleted out-of-band on
// the remote must not linger forever as a phantom delete target.
func (fl *FileList) RemoveInvalids(exists func(path string) (bool, error)) error {
	for path := range fl.Files {
		ok, err := exists(path)
		if err != nil {
			return err
		}
		if !ok {
			delete(fl.Files, path)
		}
	}
	for path := range fl.Folders {
		ok, err := exists(path)
		if err != nil {
			return err
		}
		if !ok {
			delete(fl.Folders, path)
		}
	}
	return nil
}

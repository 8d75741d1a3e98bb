// Package manifest implements the file-list / manifest data model (C6):
// scanning a local directory tree, reading and merging a remote manifest
// (plus its in-progress recovery counterpart), and serializing the result
// back to the on-wire JSON tuple format.
//
// The wire format and merge semantics are ported from
// original_source/publisher/worker/managers/manifestbased.py's
// FileListEntry/FileListFileEntry/FileListFolderEntry and FileList classes.
package manifest

import (
	"encoding/json"
	"fmt"
)

// Kind distinguishes a file entry from a folder entry.
type Kind int

const (
	// File is a regular file entry.
	File Kind = iota
	// Folder is a directory entry.
	Folder
)

// Permission is one of the three permission classes from spec.md §3.
type Permission string

const (
	// PermDefault ("r") is the default, read-only-on-remote class.
	PermDefault Permission = "r"
	// PermWriteable ("w") marks a path the remote may write to.
	PermWriteable Permission = "w"
	// PermCache ("c") marks a path that is fully erased on class change
	// or deletion rather than merely deleted.
	PermCache Permission = "c"
)

// Entry is one file or folder in a FileList. Size and Checksum are only
// meaningful when Kind == File.
type Entry struct {
	Kind       Kind
	Path       string
	Permission Permission
	Size       int64
	Checksum   string
	// Old marks an entry recovered from a prior manifest whose remote
	// state could not be confirmed as fully applied (spec.md §4.9's
	// "old" flag on partially-deleted folders/files).
	Old bool
}

// tuple is the on-wire shape: ["FILE", path, permission, size, checksum, old]
// or ["DIR", path, permission, old].
func (e Entry) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case File:
		return json.Marshal([]interface{}{"FILE", e.Path, string(e.Permission), e.Size, e.Checksum, e.Old})
	case Folder:
		return json.Marshal([]interface{}{"DIR", e.Path, string(e.Permission), e.Old})
	default:
		return nil, fmt.Errorf("manifest: unknown entry kind %d", e.Kind)
	}
}

// UnmarshalJSON parses one tuple entry back into an Entry.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return fmt.Errorf("manifest: empty entry tuple")
	}
	var tag string
	if err := json.Unmarshal(raw[0], &tag); err != nil {
		return err
	}
	switch tag {
	case "FILE":
		if len(raw) != 6 {
			return fmt.Errorf("manifest: FILE tuple wants 6 elements, got %d", len(raw))
		}
		var path, perm, checksum string
		var size int64
		var old bool
		if err := json.Unmarshal(raw[1], &path); err != nil {
			return err
		}
		if err := json.Unmarshal(raw[2], &perm); err != nil {
			return err
		}
		if err := json.Unmarshal(raw[3], &size); err != nil {
			return err
		}
		if err := json.Unmarshal(raw[4], &checksum); err != nil {
			return err
		}
		if err := json.Unmarshal(raw[5], &old); err != nil {
			return err
		}
		*e = Entry{Kind: File, Path: path, Permission: Permission(perm), Size: size, Checksum: checksum, Old: old}
		return nil
	case "DIR":
		if len(raw) != 4 {
			return fmt.Errorf("manifest: DIR tuple wants 4 elements, got %d", len(raw))
		}
		var path, perm string
		var old bool
		if err := json.Unmarshal(raw[1], &path); err != nil {
			return err
		}
		if err := json.Unmarshal(raw[2], &perm); err != nil {
			return err
		}
		if err := json.Unmarshal(raw[3], &old); err != nil {
			return err
		}
		*e = Entry{Kind: Folder, Path: path, Permission: Permission(perm), Old: old}
		return nil
	default:
		return fmt.Errorf("manifest: unknown entry tag %q", tag)
	}
}

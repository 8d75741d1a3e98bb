// Package plan computes the seven disjoint task buckets that drive the
// upload engine (C7), and validates them against the remote's actual
// state before they are executed (C8).
//
// Grounded on original_source/publisher/worker/managers/manifestbased.py's
// TaskList class and its _get_* private helpers, which this package
// reimplements as the exact same set-algebra over manifest.FileList pairs.
package plan

import (
	"sort"

	"github.com/sitehost/publisher/internal/manifest"
)

// Task is one unit of work in a bucket. Done is set by the engine once
// the op completes, so a partially-finished TaskList can be resumed.
type Task struct {
	Path       string
	Permission manifest.Permission
	// OldPermission is the permission class the path had in the
	// previous (remote) state. Only ChangePermissions tasks set it, and
	// eraseFolders reads it there to find retained "c" folders;
	// DeleteFolders tasks carry the remote class in Permission instead.
	OldPermission manifest.Permission
	Size          int64
	Done          bool
	// Old marks a DeleteFiles/DeleteFolders task the engine could not
	// actually remove from the remote (spec.md §4.8 steps 4-5): the task
	// is still considered done for resume purposes, but the object
	// becomes a tombstone in the next manifest rather than disappearing.
	Old bool
}

// TaskList is the full set of work computed by Compute, split into the
// seven phases the engine executes in order.
type TaskList struct {
	DeleteFolders     []Task
	DeleteFiles       []Task
	CreateFolders     []Task
	NewFiles          []Task
	UpdateFiles       []Task
	ChangePermissions []Task
	EraseFolders      []Task
}

// Compute diffs local (the freshly scanned local tree) against remote
// (the previous manifest state) and returns the seven task buckets.
// Mirrors TaskList.__init__'s sequence of _get_* calls.
func Compute(local, remote *manifest.FileList) *TaskList {
	tl := &TaskList{
		DeleteFolders:     deleteFolders(local, remote),
		CreateFolders:     newFolders(local, remote),
		DeleteFiles:       deleteFiles(local, remote),
		NewFiles:          newFiles(local, remote),
		UpdateFiles:       changedFiles(local, remote),
		ChangePermissions: changePermissionsOnly(local, remote),
	}
	tl.EraseFolders = eraseFolders(tl, remote)
	return tl
}

func deleteFolders(local, remote *manifest.FileList) []Task {
	var out []Task
	for path, e := range remote.Folders {
		if _, ok := local.Folders[path]; !ok {
			out = append(out, Task{Path: path, Permission: e.Permission})
		}
	}
	sortTasks(out)
	return out
}

func newFolders(local, remote *manifest.FileList) []Task {
	var out []Task
	for path, e := range local.Folders {
		if _, ok := remote.Folders[path]; !ok {
			out = append(out, Task{Path: path, Permission: e.Permission})
		}
	}
	sortTasks(out)
	return out
}

func deleteFiles(local, remote *manifest.FileList) []Task {
	var out []Task
	for path, e := range remote.Files {
		if _, ok := local.Files[path]; !ok {
			out = append(out, Task{Path: path, Permission: e.Permission})
		}
	}
	sortTasks(out)
	return out
}

func newFiles(local, remote *manifest.FileList) []Task {
	var out []Task
	for path, e := range local.Files {
		if _, ok := remote.Files[path]; !ok {
			out = append(out, Task{Path: path, Permission: e.Permission, Size: e.Size})
		}
	}
	sortTasks(out)
	return out
}

// changedFiles returns files present on both sides whose checksum (or,
// when either side has no checksum, size) differs, a checksum-then-size
// comparison of the two manifest entries only. The backend's live remote
// size is not checked, here or in the engine, so a file truncated on the
// server after an earlier upload is not detected as changed.
func changedFiles(local, remote *manifest.FileList) []Task {
	var out []Task
	for path, localEntry := range local.Files {
		remoteEntry, ok := remote.Files[path]
		if !ok {
			continue
		}
		if changed(localEntry, remoteEntry) {
			out = append(out, Task{Path: path, Permission: localEntry.Permission, Size: localEntry.Size})
		}
	}
	sortTasks(out)
	return out
}

func changed(local, remote manifest.Entry) bool {
	if local.Checksum != "" && remote.Checksum != "" {
		return local.Checksum != remote.Checksum
	}
	return local.Size != remote.Size
}

// changePermissionsOnly covers every folder common to both sides, and
// every file common to both sides that isn't already in update_files
// (changed content) — the full intersection, not just the entries whose
// permission differs. Mirrors spec.md §4.6's literal formula:
// change_perms = (local.folders ∩ remote.folders) ∪
// (local.files ∩ remote.files − update_files). A common entry whose
// permission class happens to be unchanged still needs a chmod pass
// (the original's own test fixture forces a chmod on an untouched file
// to prove this), and still needs OldPermission recorded so
// eraseFolders can detect a retained "c" folder.
func changePermissionsOnly(local, remote *manifest.FileList) []Task {
	var out []Task
	for path, localEntry := range local.Folders {
		remoteEntry, ok := remote.Folders[path]
		if !ok {
			continue
		}
		out = append(out, Task{Path: path, Permission: localEntry.Permission, OldPermission: remoteEntry.Permission})
	}
	for path, localEntry := range local.Files {
		remoteEntry, ok := remote.Files[path]
		if !ok || changed(localEntry, remoteEntry) {
			continue
		}
		out = append(out, Task{Path: path, Permission: localEntry.Permission, OldPermission: remoteEntry.Permission, Size: localEntry.Size})
	}
	sortTasks(out)
	return out
}

// eraseFolders is the union of (a) folders common to both sides whose
// old (remote) class was "c", whether or not their class changes, and (b) deleted
// folders whose local (pre-deletion, i.e. remote) permission was "w" or
// "c" — exactly TaskList's documented rule: "erase_folders =
// (chmod_folders where old permission=='c') + (delete_folders where
// remote permission in ('w','c'))".
func eraseFolders(tl *TaskList, remote *manifest.FileList) []Task {
	var out []Task
	for _, t := range tl.ChangePermissions {
		if _, isFolder := remote.Folders[t.Path]; !isFolder {
			continue
		}
		if t.OldPermission == manifest.PermCache {
			out = append(out, t)
		}
	}
	for _, t := range tl.DeleteFolders {
		if t.Permission == manifest.PermWriteable || t.Permission == manifest.PermCache {
			out = append(out, t)
		}
	}
	sortTasks(out)
	return out
}

func sortTasks(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Path < tasks[j].Path })
}

// ReverseSorted returns tasks ordered by path descending — erase and
// delete-folder phases must process children before their parents.
func ReverseSorted(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].Path > out[j].Path })
	return out
}

// AscendingSorted returns tasks ordered by path ascending — the
// create-folders phase must process parents before their children.
func AscendingSorted(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// UnfinishedTasks filters tasks down to the ones not yet marked Done,
// matching filter_unfinished_tasks for resuming a partially-completed
// phase after a crash.
func UnfinishedTasks(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Done {
			out = append(out, t)
		}
	}
	return out
}

// FinishedTasks is the complement of UnfinishedTasks.
func FinishedTasks(tasks []Task) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Done {
			out = append(out, t)
		}
	}
	return out
}

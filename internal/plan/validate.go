package plan

import (
	"context"
	"sort"
	"strings"

	"github.com/sitehost/publisher/internal/backend"
	"github.com/sitehost/publisher/internal/fserrors"
)

// ValidateNew checks the planner's CreateFolders and NewFiles tasks
// against the live remote: any of them that already exists there is a
// collision the planner could not have known about from a stale
// manifest alone (e.g. a prior run crashed after creating it but before
// recording that in the manifest). A path covered by an erase-folders
// prefix is exempt, since that prefix is about to be wiped anyway.
// Mirrors manifestbased.py's _validate_new / _validate_task_list.
func ValidateNew(ctx context.Context, b backend.Backend, tl *TaskList) error {
	var collisions []string
	check := func(t Task) error {
		if coveredByErase(t.Path, tl.EraseFolders) {
			return nil
		}
		exists, err := b.Exists(ctx, t.Path)
		if err != nil {
			return err
		}
		if exists {
			collisions = append(collisions, t.Path)
		}
		return nil
	}
	for _, t := range tl.CreateFolders {
		if err := check(t); err != nil {
			return err
		}
	}
	for _, t := range tl.NewFiles {
		if err := check(t); err != nil {
			return err
		}
	}
	if len(collisions) > 0 {
		sort.Strings(collisions)
		return &fserrors.AlreadyExistsError{Paths: collisions}
	}
	return nil
}

func coveredByErase(path string, eraseFolders []Task) bool {
	for _, e := range eraseFolders {
		if path == e.Path || strings.HasPrefix(path, e.Path+"/") {
			return true
		}
	}
	return false
}

// ValidateDeleteFolders checks each DeleteFolders task's remote state and
// removes (in place, returning the removed leftovers) any folder that is
// not actually empty on the remote — deleting it would fail or silently
// leave orphaned children. This runs before DELETE_FILES/DELETE_FOLDERS
// execute, so a folder's own children that are themselves scheduled for
// deletion this same run still show up in its listing; those are
// subtracted first; matching manifestbased.py's
// `folder_content = set(folder_content) - delete_files - delete_folders`.
// This check is non-fatal. The engine calls it once, after the
// erase-folders phase, so it sees the remote state erase left behind; it
// is not also run before erase. Mirrors _validate_delete_folders.
func ValidateDeleteFolders(ctx context.Context, b backend.Backend, tl *TaskList) (nonEmpty []Task, err error) {
	kept := tl.DeleteFolders[:0:0]
	for _, t := range tl.DeleteFolders {
		names, derr := b.Dir(ctx, t.Path)
		if derr != nil {
			return nil, derr
		}
		consumed := directChildNames(t.Path, tl.DeleteFiles)
		for name := range directChildNames(t.Path, tl.DeleteFolders) {
			consumed[name] = true
		}
		remaining := 0
		for _, name := range names {
			if !consumed[name] {
				remaining++
			}
		}
		if remaining > 0 {
			nonEmpty = append(nonEmpty, t)
			continue
		}
		kept = append(kept, t)
	}
	tl.DeleteFolders = kept
	return nonEmpty, nil
}

// directChildNames returns the base names of every task in tasks that is a
// direct child of parent, matching the shape Backend.Dir returns for
// parent's own listing.
func directChildNames(parent string, tasks []Task) map[string]bool {
	prefix := parent + "/"
	if parent == "." {
		prefix = ""
	}
	out := make(map[string]bool)
	for _, t := range tasks {
		if !strings.HasPrefix(t.Path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(t.Path, prefix)
		if rest == "" {
			continue
		}
		if idx := strings.Index(rest, "/"); idx >= 0 {
			rest = rest[:idx]
		}
		out[rest] = true
	}
	return out
}

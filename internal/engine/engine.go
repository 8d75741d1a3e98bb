package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sitehost/publisher/internal/backend"
	"github.com/sitehost/publisher/internal/fserrors"
	"github.com/sitehost/publisher/internal/manifest"
	"github.com/sitehost/publisher/internal/plan"
	"github.com/sitehost/publisher/internal/plog"
)

// Phase names a step of the job, reported via Job.OnPhase for operator
// visibility (the original logs these same names: "PREPARING TASKLIST",
// "ERASE_FOLDERS", etc).
type Phase string

const (
	PhasePreparingTaskList Phase = "PREPARING_TASKLIST"
	PhaseEraseFolders      Phase = "ERASE_FOLDERS"
	PhaseDeleteFiles       Phase = "DELETE_FILES"
	PhaseDeleteFolders     Phase = "DELETE_FOLDERS"
	PhaseCreateFolders     Phase = "CREATE_FOLDERS"
	PhaseUploadFiles       Phase = "UPLOAD_FILES"
	PhaseChangePermissions Phase = "CHANGE_PERMISSIONS"
	PhaseDone              Phase = "DONE"
)

// PermissionMap maps the three permission classes to the chmod string
// the backend should apply for each, matching init_manager's
// `permission_map = {'r': ..., 'w': ..., 'c': ...}` construction in
// original_source/publisher/worker/managers/__init__.py.
type PermissionMap struct {
	Default   string
	Writeable string
	Cache     string
}

func (pm PermissionMap) modeFor(p manifest.Permission) string {
	switch p {
	case manifest.PermWriteable:
		return pm.Writeable
	case manifest.PermCache:
		return pm.Cache
	default:
		return pm.Default
	}
}

// Job describes one publish run.
type Job struct {
	Backend       backend.Backend
	LocalRoot     string
	Writeable     []string
	Cache         []string
	Permissions   PermissionMap
	OnPhase       func(Phase)
	OnProgress    func(Progress)
	// UploadConcurrency bounds the number of files uploaded in parallel
	// during PhaseUploadFiles. 0 or 1 means sequential, matching
	// spec.md's default.
	UploadConcurrency int
}

func (j *Job) phase(p Phase) {
	if j.OnPhase != nil {
		j.OnPhase(p)
	}
	plog.Infof(plog.Named("engine"), "entering phase %s", p)
}

func (j *Job) progress(p Progress) {
	if j.OnProgress != nil {
		j.OnProgress(p)
	}
}

// Start runs (or resumes, if recovery is non-nil) a full publish. On any
// retryable failure it returns an *fserrors.RetryError carrying a fresh
// recovery blob the caller should pass back in on the next attempt. A
// *fserrors.NoRetryError (or AlreadyExistsError/DoesNotExistError/
// SecurityError) is returned as-is: mirrors
// ManifestUploadManager.start's outer try/except, which re-raises
// NoRetryException unchanged and wraps everything else as
// RetryException(str(e), pickle.dumps(tasklist)).
func (j *Job) Start(ctx context.Context, recovery *RecoveryState) (err error) {
	if err := j.Backend.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if qerr := j.Backend.Quit(ctx); qerr != nil {
			plog.Warnf(plog.Named("engine"), "quit failed (ignored): %v", qerr)
		}
	}()

	manifestFolder, tl, rerr := j.prepare(ctx, recovery)
	if rerr != nil {
		return j.classify(rerr, manifestFolder, tl)
	}

	if err := j.run(ctx, manifestFolder, tl); err != nil {
		return j.classify(err, manifestFolder, tl)
	}
	j.phase(PhaseDone)
	return nil
}

// classify wraps a failure as a RetryError (with a fresh recovery blob)
// unless it is already a no-retry failure.
func (j *Job) classify(err error, manifestFolder string, tl *plan.TaskList) error {
	if fserrors.IsNoRetry(err) {
		return err
	}
	state := &RecoveryState{ManifestFolder: manifestFolder, TaskList: tl}
	blob, merr := state.Marshal()
	if merr != nil {
		return err
	}
	return fserrors.NewRetry("publish failed", err, blob)
}

// prepare resolves the manifest folder and task list for this attempt:
// from the recovery blob if resuming, or freshly computed from a local
// scan vs. the remote's current state otherwise. Mirrors start()'s
// PREPARING TASKLIST phase.
func (j *Job) prepare(ctx context.Context, recovery *RecoveryState) (string, *plan.TaskList, error) {
	j.phase(PhasePreparingTaskList)

	if recovery != nil {
		return recovery.ManifestFolder, recovery.TaskList, nil
	}

	folder, exists, err := findManifestFolder(ctx, j.Backend)
	if err != nil {
		return "", nil, err
	}
	if !exists {
		folder, err = newManifestFolder()
		if err != nil {
			return "", nil, err
		}
	}

	localList, err := manifest.ScanLocalFolder(j.LocalRoot, j.Writeable, j.Cache)
	if err != nil {
		return folder, nil, err
	}
	remoteList, err := getRemoteList(ctx, j.Backend, folder, exists)
	if err != nil {
		return folder, nil, err
	}

	tl := plan.Compute(localList, remoteList)
	if err := plan.ValidateNew(ctx, j.Backend, tl); err != nil {
		return folder, tl, err
	}
	return folder, tl, nil
}

// run executes every phase in strict order against an already-validated
// task list, then writes the final manifest. Mirrors start()'s body
// after _validate_task_list.
func (j *Job) run(ctx context.Context, manifestFolder string, tl *plan.TaskList) error {
	localList, err := manifest.ScanLocalFolder(j.LocalRoot, j.Writeable, j.Cache)
	if err != nil {
		return err
	}

	if err := j.Backend.Mkdir(ctx, manifestFolder); err != nil {
		return err
	}
	if err := uploadManifestFile(ctx, j.Backend, manifestFolder, manifestTmpFileName, localList); err != nil {
		return err
	}

	totalNonUpload := len(tl.DeleteFolders) + len(tl.DeleteFiles) + len(tl.CreateFolders) + len(tl.ChangePermissions) + len(tl.EraseFolders)
	var totalBytes int64
	for _, t := range tl.NewFiles {
		totalBytes += t.Size
	}
	for _, t := range tl.UpdateFiles {
		totalBytes += t.Size
	}
	progress := newProgressState(totalNonUpload, totalBytes)

	j.phase(PhaseEraseFolders)
	for _, t := range plan.UnfinishedTasks(plan.ReverseSorted(tl.EraseFolders)) {
		if err := j.Backend.EraseDirectory(ctx, t.Path); err != nil {
			return err
		}
		markDone(tl.EraseFolders, t.Path)
		progress.nonUploadDone(1)
		j.progress(progress.snapshot())
	}

	if leftover, verr := plan.ValidateDeleteFolders(ctx, j.Backend, tl); verr != nil {
		return verr
	} else if len(leftover) > 0 {
		plog.Warnf(plog.Named("engine"), "%d delete-folder targets were not fully emptied by erase", len(leftover))
	}

	// DELETE_FILES and DELETE_FOLDERS absorb per-operation failures rather
	// than aborting the job: a path the remote refuses to remove becomes
	// a tombstone (Old=true) recorded in the final manifest instead, so
	// the next run retries it. Mirrors spec.md §4.8 steps 4-5.
	j.phase(PhaseDeleteFiles)
	for _, t := range plan.UnfinishedTasks(tl.DeleteFiles) {
		if err := j.Backend.DeleteFile(ctx, t.Path); err != nil {
			plog.Warnf(plog.Named("engine"), "delete_file %s failed, tombstoning: %v", t.Path, err)
			markOld(tl.DeleteFiles, t.Path)
		}
		markDone(tl.DeleteFiles, t.Path)
		progress.nonUploadDone(1)
		j.progress(progress.snapshot())
	}

	j.phase(PhaseDeleteFolders)
	for _, t := range plan.UnfinishedTasks(plan.ReverseSorted(tl.DeleteFolders)) {
		names, err := j.Backend.Dir(ctx, t.Path)
		if err != nil {
			return err
		}
		if len(names) > 0 {
			plog.Warnf(plog.Named("engine"), "delete_folder %s is not empty, tombstoning", t.Path)
			markOld(tl.DeleteFolders, t.Path)
		} else if err := j.Backend.DeleteDirectory(ctx, t.Path); err != nil {
			plog.Warnf(plog.Named("engine"), "delete_directory %s failed, tombstoning: %v", t.Path, err)
			markOld(tl.DeleteFolders, t.Path)
		}
		markDone(tl.DeleteFolders, t.Path)
		progress.nonUploadDone(1)
		j.progress(progress.snapshot())
	}

	j.phase(PhaseCreateFolders)
	for _, t := range plan.UnfinishedTasks(plan.AscendingSorted(tl.CreateFolders)) {
		if err := j.Backend.Mkdir(ctx, t.Path); err != nil {
			return err
		}
		if err := j.Backend.Chmod(ctx, t.Path, j.Permissions.modeFor(t.Permission)); err != nil {
			return err
		}
		markDone(tl.CreateFolders, t.Path)
		progress.nonUploadDone(1)
		j.progress(progress.snapshot())
	}

	j.phase(PhaseUploadFiles)
	if err := j.uploadFiles(ctx, tl, progress); err != nil {
		return err
	}

	j.phase(PhaseChangePermissions)
	for _, t := range plan.UnfinishedTasks(tl.ChangePermissions) {
		exists, err := j.Backend.Exists(ctx, t.Path)
		if err != nil {
			return err
		}
		if !exists {
			return &fserrors.DoesNotExistError{Path: t.Path}
		}
		if err := j.Backend.Chmod(ctx, t.Path, j.Permissions.modeFor(t.Permission)); err != nil {
			return err
		}
		markDone(tl.ChangePermissions, t.Path)
		progress.nonUploadDone(1)
		j.progress(progress.snapshot())
	}

	appendTombstones(localList, tl)
	if err := uploadManifestFile(ctx, j.Backend, manifestFolder, manifestFileName, localList); err != nil {
		return err
	}
	return j.Backend.DeleteFile(ctx, manifestFolder+"/"+manifestTmpFileName)
}

// appendTombstones adds an Old=true entry to fl for every DeleteFiles/
// DeleteFolders task the delete phases could not actually remove,
// matching step 9's "serialize local_list augmented with the tombstone
// entries accumulated in steps 4 and 5".
func appendTombstones(fl *manifest.FileList, tl *plan.TaskList) {
	for _, t := range tl.DeleteFiles {
		if t.Old {
			fl.Files[t.Path] = manifest.Entry{Kind: manifest.File, Path: t.Path, Permission: t.Permission, Size: t.Size, Old: true}
		}
	}
	for _, t := range tl.DeleteFolders {
		if t.Old {
			fl.Folders[t.Path] = manifest.Entry{Kind: manifest.Folder, Path: t.Path, Permission: t.Permission, Old: true}
		}
	}
}

// uploadFiles runs NewFiles then UpdateFiles, chmodding each after a
// successful upload. Mirrors _upload_files. When UploadConcurrency is
// greater than 1 the uploads run bounded-parallel through an
// errgroup.Group (the file order within each bucket is not otherwise
// significant, unlike the strictly-ordered phases around it); the
// sequential path (the spec's default) is the one every test drives.
func (j *Job) uploadFiles(ctx context.Context, tl *plan.TaskList, progress *progressState) error {
	all := append(append([]plan.Task{}, plan.UnfinishedTasks(tl.NewFiles)...), plan.UnfinishedTasks(tl.UpdateFiles)...)

	if j.UploadConcurrency <= 1 {
		for _, t := range all {
			if err := j.uploadOne(ctx, t); err != nil {
				return err
			}
			markDone(tl.NewFiles, t.Path)
			markDone(tl.UpdateFiles, t.Path)
			progress.bytesDone(t.Size)
			j.progress(progress.snapshot())
		}
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.UploadConcurrency)
	for _, t := range all {
		t := t
		g.Go(func() error {
			if err := j.uploadOne(gctx, t); err != nil {
				return err
			}
			mu.Lock()
			markDone(tl.NewFiles, t.Path)
			markDone(tl.UpdateFiles, t.Path)
			progress.bytesDone(t.Size)
			snap := progress.snapshot()
			mu.Unlock()
			j.progress(snap)
			return nil
		})
	}
	return g.Wait()
}

func (j *Job) uploadOne(ctx context.Context, t plan.Task) error {
	localPath := filepath.Join(j.LocalRoot, filepath.FromSlash(t.Path))
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := j.Backend.Upload(ctx, t.Path, f); err != nil {
		return err
	}
	return j.Backend.Chmod(ctx, t.Path, j.Permissions.modeFor(t.Permission))
}

func markDone(tasks []plan.Task, path string) {
	for i := range tasks {
		if tasks[i].Path == path {
			tasks[i].Done = true
			return
		}
	}
}

func markOld(tasks []plan.Task, path string) {
	for i := range tasks {
		if tasks[i].Path == path {
			tasks[i].Old = true
			return
		}
	}
}

// DeleteAll erases the entire remote destination and its manifest
// folder, matching ManifestUploadManager.delete_all.
func (j *Job) DeleteAll(ctx context.Context) error {
	if err := j.Backend.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if qerr := j.Backend.Quit(ctx); qerr != nil {
			plog.Warnf(plog.Named("engine"), "quit failed (ignored): %v", qerr)
		}
	}()
	names, err := j.Backend.Dir(ctx, ".")
	if err != nil {
		return err
	}
	for _, name := range names {
		typ, err := j.Backend.Type(ctx, name)
		if err != nil {
			return err
		}
		if typ == backend.TypeDir {
			if err := j.Backend.EraseDirectory(ctx, name); err != nil {
				return err
			}
			continue
		}
		if err := j.Backend.DeleteFile(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

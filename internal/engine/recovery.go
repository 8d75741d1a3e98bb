// Package engine implements the upload engine (C9): the phase-ordered
// state machine that turns a plan.TaskList into remote operations, with
// crash-recovery via a JSON resume blob.
//
// Grounded on
// original_source/publisher/worker/managers/manifestbased.py's
// ManifestUploadManager.start, whose phase sequencing, progress
// weighting, and pickle-based recovery blob this package reimplements
// (JSON instead of pickle, since the blob must be portable and
// human-inspectable).
package engine

import (
	"encoding/json"

	"github.com/sitehost/publisher/internal/plan"
)

// RecoveryState is the full resumable state of an in-progress job: which
// manifest folder it is using and the task list with each task's Done
// flag, exactly as manifestbased.py's RetryException carries
// `pickle.dumps(tasklist)` as its recovery_parameters.
type RecoveryState struct {
	ManifestFolder string        `json:"manifest_folder"`
	TaskList       *plan.TaskList `json:"task_list"`
}

// Marshal serializes the recovery state to the JSON blob carried by
// fserrors.RetryError.
func (r *RecoveryState) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// ParseRecovery deserializes a recovery blob previously produced by
// Marshal.
func ParseRecovery(blob []byte) (*RecoveryState, error) {
	var r RecoveryState
	if err := json.Unmarshal(blob, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

package engine

import "time"

// weight is the fixed per-task weight non-upload tasks contribute to the
// progress denominator, matching manifestbased.py's _update_state literal
// 4096 constant (chosen there so a handful of directory ops don't get
// lost against a multi-megabyte upload total, and vice versa).
const weight = 4096

// Progress is one progress snapshot, delivered to Job.OnProgress as the
// engine works through a phase.
type Progress struct {
	Percent float64
	// Remaining is the estimated time left, valid only once Percent
	// exceeds 5%, matching _update_state's own threshold for reporting
	// an ETA at all (below that, the estimate is too noisy to be useful).
	Remaining time.Duration
	HasETA    bool
}

// progressState accumulates totals across a job and computes Progress
// snapshots as tasks complete. Mirrors _update_state's dividend/divisor
// formula: dividend = 4096*finished_non_upload + uploaded_bytes,
// divisor = 4096*total_non_upload + total_upload_bytes.
type progressState struct {
	totalNonUpload int
	totalBytes     int64

	doneNonUpload int
	doneBytes     int64

	start time.Time
}

func newProgressState(totalNonUpload int, totalBytes int64) *progressState {
	return &progressState{totalNonUpload: totalNonUpload, totalBytes: totalBytes, start: time.Now()}
}

func (p *progressState) nonUploadDone(n int) {
	p.doneNonUpload += n
}

func (p *progressState) bytesDone(n int64) {
	p.doneBytes += n
}

func (p *progressState) snapshot() Progress {
	divisor := float64(weight)*float64(p.totalNonUpload) + float64(p.totalBytes)
	if divisor == 0 {
		return Progress{Percent: 1}
	}
	dividend := float64(weight)*float64(p.doneNonUpload) + float64(p.doneBytes)
	percent := dividend / divisor

	snap := Progress{Percent: percent}
	elapsed := time.Since(p.start)
	if percent > 0.05 && elapsed > 0 {
		speed := percent / elapsed.Seconds()
		if speed > 0 {
			snap.Remaining = time.Duration((1 - percent) / speed * float64(time.Second))
			snap.HasETA = true
		}
	}
	return snap
}

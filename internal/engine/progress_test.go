package engine

import "testing"

func TestProgressSnapshotBasic(t *testing.T) {
	p := newProgressState(4, 1000)
	p.nonUploadDone(2)
	p.bytesDone(500)

	snap := p.snapshot()
	// dividend = 4096*2 + 500 = 8692; divisor = 4096*4 + 1000 = 17384
	want := 8692.0 / 17384.0
	if diff := snap.Percent - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Percent = %v, want %v", snap.Percent, want)
	}
}

func TestProgressSnapshotEmptyJobIsComplete(t *testing.T) {
	p := newProgressState(0, 0)
	snap := p.snapshot()
	if snap.Percent != 1 {
		t.Errorf("expected a job with no work to report 100%%, got %v", snap.Percent)
	}
}

func TestProgressSnapshotNoETABelowThreshold(t *testing.T) {
	p := newProgressState(100, 0)
	p.nonUploadDone(1)
	snap := p.snapshot()
	if snap.HasETA {
		t.Error("expected no ETA below the 5% threshold")
	}
}

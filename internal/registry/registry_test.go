package registry

import (
	"testing"
	"time"

	"github.com/TotallyGatsby/brood-flow/internal/broodminder"
)

func frameWithSeq(seq uint16) broodminder.Frame {
	return broodminder.Frame{
		Model:         broodminder.ModelT2,
		FirmwareMajor: 2,
		FirmwareMinor: 5,
		Sequence:      seq,
	}
}

func TestObserveDeduplication(t *testing.T) {
	// Repeated broadcasts of the same logical reading must collapse: the
	// counter sequence 5,5,6,6,7 yields exactly three publishable outcomes.
	r := New()
	now := time.Now()

	seqs := []uint16{5, 5, 6, 6, 7}
	want := []Outcome{NewDevice, Duplicate, Updated, Duplicate, Updated}

	published := 0
	for i, seq := range seqs {
		got := r.Observe("47:01:01", frameWithSeq(seq), now)
		if got != want[i] {
			t.Errorf("Observe(seq %d) = %v; want %v", seq, got, want[i])
		}
		if got == NewDevice || got == Updated {
			published++
		}
	}
	if published != 3 {
		t.Errorf("published outcomes = %d; want 3", published)
	}
}

func TestObserveWraparound(t *testing.T) {
	r := New()
	now := time.Now()

	if got := r.Observe("dev", frameWithSeq(65534), now); got != NewDevice {
		t.Fatalf("first Observe = %v; want NewDevice", got)
	}
	// Counter wrapped past the uint16 boundary: a small observed value with
	// a large stored one is a new reading, not a stale one.
	if got := r.Observe("dev", frameWithSeq(1), now); got != Updated {
		t.Errorf("Observe after wraparound = %v; want Updated", got)
	}
}

func TestObserveStale(t *testing.T) {
	r := New()
	now := time.Now()

	r.Observe("dev", frameWithSeq(7), now)
	if got := r.Observe("dev", frameWithSeq(6), now); got != Stale {
		t.Errorf("Observe(6 after 7) = %v; want Stale", got)
	}
	// Exactly half the counter space away counts as stale, per the
	// smaller-than-half tie-break.
	if got := r.Observe("dev", frameWithSeq(7+1<<15), now); got != Stale {
		t.Errorf("Observe(half-space jump) = %v; want Stale", got)
	}
	// Stale frames must not disturb the stored sequence.
	if got := r.Observe("dev", frameWithSeq(8), now); got != Updated {
		t.Errorf("Observe(8) = %v; want Updated", got)
	}
}

func TestObserveIndependentDevices(t *testing.T) {
	r := New()
	now := time.Now()

	r.Observe("a", frameWithSeq(5), now)
	if got := r.Observe("b", frameWithSeq(5), now); got != NewDevice {
		t.Errorf("Observe for second identity = %v; want NewDevice", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d; want 2", r.Len())
	}
}

func TestPrune(t *testing.T) {
	r := New()
	start := time.Now()

	r.Observe("silent", frameWithSeq(1), start)
	r.Observe("active", frameWithSeq(1), start)
	r.Observe("active", frameWithSeq(2), start.Add(23*time.Hour))

	pruned := r.Prune(24*time.Hour, start.Add(25*time.Hour))
	if len(pruned) != 1 || pruned[0] != "silent" {
		t.Fatalf("Prune() = %v; want [silent]", pruned)
	}
	if r.Len() != 1 {
		t.Errorf("Len() after prune = %d; want 1", r.Len())
	}

	// A pruned device reappearing starts over as new.
	if got := r.Observe("silent", frameWithSeq(2), start.Add(26*time.Hour)); got != NewDevice {
		t.Errorf("Observe after prune = %v; want NewDevice", got)
	}
}

func TestSnapshot(t *testing.T) {
	r := New()
	t0 := time.Now()

	r.Observe("47:01:01", frameWithSeq(10), t0)
	r.Observe("47:01:01", frameWithSeq(11), t0.Add(time.Minute))

	snaps := r.Snapshot()
	if len(snaps) != 1 {
		t.Fatalf("Snapshot() has %d entries; want 1", len(snaps))
	}
	st := snaps[0]
	if st.ID != "47:01:01" {
		t.Errorf("ID = %q; want 47:01:01", st.ID)
	}
	if st.ModelName != "T2" {
		t.Errorf("ModelName = %q; want T2", st.ModelName)
	}
	if st.Firmware != "2.05" {
		t.Errorf("Firmware = %q; want 2.05", st.Firmware)
	}
	if st.LastSequence != 11 {
		t.Errorf("LastSequence = %d; want 11", st.LastSequence)
	}
	if st.Readings != 2 {
		t.Errorf("Readings = %d; want 2", st.Readings)
	}
	if !st.FirstSeen.Equal(t0) || !st.LastSeen.Equal(t0.Add(time.Minute)) {
		t.Errorf("timestamps = %v/%v; want %v/%v", st.FirstSeen, st.LastSeen, t0, t0.Add(time.Minute))
	}
}

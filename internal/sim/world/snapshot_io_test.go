package world

import (
	"path/filepath"
	"testing"

	"seeyuj.sim/internal/persistence/snapshot"
)

func TestSnapshot_RoundTripPreservesDigest(t *testing.T) {
	w, p := newTestWorld(t, 42)
	name := "vault"
	mustStep(t, w, p, CreateZoneCmd{ZoneID: 3, Name: &name}, MoveEntityCmd{EntityID: 2, To: WorldPos{Zone: 3}})
	runTicks(t, w, p, 120)

	st := snapshot.NewStore(filepath.Join(t.TempDir(), "world_42"))
	if err := st.Save(w.ExportSnapshot(999)); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r, err := FromSnapshot(snap)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if r.StateDigest() != w.StateDigest() {
		t.Fatalf("digest after round trip %s != %s", r.StateDigest(), w.StateDigest())
	}
	m := r.Meta()
	if m.SnapshotTick != 121 || m.LastEventID != 999 {
		t.Fatalf("cursor=%d/%d want 121/999", m.SnapshotTick, m.LastEventID)
	}

	// Both worlds keep evolving identically.
	rp := ProcessorFor(r)
	a := runTicks(t, w, p, 50)
	b := runTicks(t, r, rp, 50)
	if a[49] != b[49] {
		t.Fatalf("diverged after import: %s vs %s", a[49], b[49])
	}
}

func TestFromSnapshot_RejectsInconsistentCursor(t *testing.T) {
	w, _ := newTestWorld(t, 1)
	s := w.ExportSnapshot(3)
	s.Meta.SnapshotTick = 10
	if _, err := FromSnapshot(s); err == nil {
		t.Fatalf("expected error for cursor/state tick mismatch")
	}
}

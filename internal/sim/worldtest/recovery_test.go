package worldtest

import (
	"testing"
)

// Snapshot at any tick plus the log tail must land on the live state.
func TestRecovery_AnySnapshotTickMatchesLive(t *testing.T) {
	h := NewHarness(t, "rec", 11, smallGenesis())
	live := h.Run(90, scenario())

	for _, tick := range []uint64{0, 1, 5, 17, 44, 89, 90} {
		store := h.SnapshotAt(t.TempDir(), h.CursorAt(tick))
		res := h.Recover(store)
		if res.SnapshotTick != tick {
			t.Fatalf("snapshot tick=%d want %d", res.SnapshotTick, tick)
		}
		if res.World.CurrentTick() != 90 {
			t.Fatalf("from %d: recovered tick=%d want 90", tick, res.World.CurrentTick())
		}
		if got := res.World.StateDigest(); got != live[90] {
			t.Fatalf("from %d: digest=%s want %s", tick, got, live[90])
		}
		if res.LastEventID() != h.LastEventID() {
			t.Fatalf("from %d: last id=%d want %d", tick, res.LastEventID(), h.LastEventID())
		}
	}
}

// A recovered world keeps producing the same future as the original.
func TestRecovery_ContinuesIdentically(t *testing.T) {
	h := NewHarness(t, "rec", 12, smallGenesis())
	h.Run(40, scenario())
	store := h.SnapshotAt(t.TempDir(), h.CursorAt(25))
	res := h.Recover(store)

	resumed := Resume(t, res.World, res.LastEventID())

	want := h.Run(80, scenario())
	got := resumed.Run(80, scenario())
	for tick := uint64(41); tick <= 80; tick++ {
		if want[tick] != got[tick] {
			t.Fatalf("diverged at tick %d after recovery", tick)
		}
	}
	if resumed.LastEventID() != h.LastEventID() {
		t.Fatalf("event ids diverged: %d vs %d", resumed.LastEventID(), h.LastEventID())
	}
}

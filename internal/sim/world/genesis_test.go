package world

import "testing"

func TestGenesis_PopulatesOrigin(t *testing.T) {
	w, evs, err := Genesis("alpha", 42, testGenesis())
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if w.ID() != "world_42" {
		t.Fatalf("id=%q want world_42", w.ID())
	}
	if w.CurrentTick() != 0 {
		t.Fatalf("tick=%d want 0", w.CurrentTick())
	}
	if w.EntityCount() != 15 {
		t.Fatalf("entities=%d want 15", w.EntityCount())
	}
	z, ok := w.Zone(OriginZone)
	if !ok || z.Name == nil || *z.Name != OriginZoneName {
		t.Fatalf("origin zone missing or unnamed: %+v", z)
	}
	if len(z.Entities) != 15 {
		t.Fatalf("origin members=%d want 15", len(z.Entities))
	}
	if w.NextEntityID() != 16 {
		t.Fatalf("next id=%d want 16", w.NextEntityID())
	}
	if _, ok := evs[0].Data.(WorldCreated); !ok {
		t.Fatalf("first event %T want WorldCreated", evs[0].Data)
	}
	last, ok := evs[len(evs)-1].Data.(TickProcessed)
	if !ok || last.Tick != 0 {
		t.Fatalf("last event %+v want TickProcessed{0}", evs[len(evs)-1].Data)
	}
	if last.RNGState != w.RNGState() {
		t.Fatalf("tick_processed rng=%d world rng=%d", last.RNGState, w.RNGState())
	}
	for _, e := range w.Entities() {
		if e.Position.Pos.X < -32 || e.Position.Pos.X > 32 || e.Position.Pos.Y < -32 || e.Position.Pos.Y > 32 {
			t.Fatalf("entity %d outside spawn radius: %+v", e.ID, e.Position)
		}
	}
}

func TestGenesis_EventsRebuildWorld(t *testing.T) {
	w, evs, err := Genesis("alpha", 7, testGenesis())
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	r := NewEmpty()
	for _, ev := range evs {
		if err := Apply(r, ev); err != nil {
			t.Fatalf("apply %s: %v", ev.Data.EventKind(), err)
		}
	}
	if r.StateDigest() != w.StateDigest() {
		t.Fatalf("rebuilt digest %s != genesis digest %s", r.StateDigest(), w.StateDigest())
	}
}

func TestGenesis_RejectsBadName(t *testing.T) {
	if _, _, err := Genesis("   ", 1, testGenesis()); !IsRejected(err) {
		t.Fatalf("expected rejection for blank name, got %v", err)
	}
	long := make([]byte, MaxWorldNameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, _, err := Genesis(string(long), 1, testGenesis()); !IsRejected(err) {
		t.Fatalf("expected rejection for long name, got %v", err)
	}
}

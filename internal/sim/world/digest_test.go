package world

import "testing"

func applyAll(t *testing.T, evs ...EventData) *World {
	t.Helper()
	w := NewEmpty()
	origin := OriginZoneName
	base := []EventData{
		WorldCreated{WorldID: "world_3", Name: "d", Seed: 3},
		ZoneCreated{ZoneID: OriginZone, Name: &origin},
		ZoneCreated{ZoneID: 1},
	}
	for _, d := range append(base, evs...) {
		if err := Apply(w, Event{Data: d}); err != nil {
			t.Fatalf("apply %T: %v", d, err)
		}
	}
	return w
}

func TestStateDigest_AbsentPropertyDiffersFromZero(t *testing.T) {
	zero := uint32(0)
	absent := applyAll(t, EntitySpawned{EntityID: 1, Kind: KindResource})
	zeroed := applyAll(t, EntitySpawned{EntityID: 1, Kind: KindResource, Properties: Properties{Amount: &zero}})
	if absent.StateDigest() == zeroed.StateDigest() {
		t.Fatalf("absent and zero amount hash the same: %s", absent.StateDigest())
	}
}

func TestStateDigest_ZoneMemberOrderCounts(t *testing.T) {
	spawn := []EventData{
		EntitySpawned{EntityID: 1, Kind: KindItem},
		EntitySpawned{EntityID: 2, Kind: KindItem},
	}
	straight := applyAll(t, spawn...)
	// Leaving and re-entering the origin puts entity 1 after entity 2.
	roundTrip := applyAll(t, append(spawn,
		EntityMoved{EntityID: 1, From: WorldPos{}, To: WorldPos{Zone: 1}},
		EntityMoved{EntityID: 1, From: WorldPos{Zone: 1}, To: WorldPos{}},
	)...)

	a, _ := straight.Entity(1)
	b, _ := roundTrip.Entity(1)
	if a.Position != b.Position {
		t.Fatalf("positions differ: %+v vs %+v", a.Position, b.Position)
	}
	if straight.StateDigest() == roundTrip.StateDigest() {
		t.Fatalf("member order did not change the digest")
	}
}

package world

import (
	"fmt"

	"seeyuj.sim/internal/persistence/snapshot"
)

// ExportSnapshot captures the world with the cursor (current tick,
// lastEventID). Must be called from the goroutine that owns the world.
func (w *World) ExportSnapshot(lastEventID uint64) snapshot.SnapshotV2 {
	meta := w.Meta()
	meta.SnapshotTick = w.tick
	meta.LastEventID = lastEventID

	ents := make([]snapshot.EntityV2, 0, w.entities.Len())
	w.entities.Each(func(id EntityID, e *Entity) {
		p := e.Properties.clone()
		ents = append(ents, snapshot.EntityV2{
			ID:        uint64(id),
			Kind:      e.Kind.String(),
			State:     e.State.String(),
			Zone:      uint32(e.Position.Zone),
			Pos:       [3]int32{e.Position.Pos.X, e.Position.Pos.Y, e.Position.Pos.Z},
			CreatedAt: e.CreatedAt,
			Name:      p.Name,
			Amount:    p.Amount,
			Health:    p.Health,
		})
	})

	zones := make([]snapshot.ZoneV2, 0, w.zones.Len())
	w.zones.Each(func(id ZoneID, z *Zone) {
		c := z.Clone()
		members := make([]uint64, 0, len(c.Entities))
		for _, m := range c.Entities {
			members = append(members, uint64(m))
		}
		zones = append(zones, snapshot.ZoneV2{ID: uint32(id), Name: c.Name, Loaded: c.Loaded, Entities: members})
	})

	return snapshot.SnapshotV2{
		Header:       snapshot.Header{Version: snapshot.Version, WorldID: meta.WorldID, Tick: w.tick},
		Meta:         metaToSnapshot(meta),
		Tick:         w.tick,
		SimTime:      w.simTime,
		RNGState:     w.rngState,
		NextEntityID: uint64(w.nextEntityID),
		Entities:     ents,
		Zones:        zones,
	}
}

// FromSnapshot rebuilds a world from a snapshot. The world's cursor is the
// snapshot's embedded meta.
func FromSnapshot(s snapshot.SnapshotV2) (*World, error) {
	if s.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version: %d", s.Header.Version)
	}
	if s.Meta.WorldID == "" {
		return nil, fmt.Errorf("snapshot has no world id")
	}
	if s.Meta.SnapshotTick != s.Tick {
		return nil, fmt.Errorf("snapshot cursor tick %d != state tick %d", s.Meta.SnapshotTick, s.Tick)
	}

	w := NewEmpty()
	w.meta = metaFromSnapshot(s.Meta)
	w.tick = s.Tick
	w.simTime = s.SimTime
	w.rngState = s.RNGState
	w.nextEntityID = EntityID(s.NextEntityID)
	if w.nextEntityID == InvalidEntityID {
		w.nextEntityID = 1
	}

	for _, zs := range s.Zones {
		id := ZoneID(zs.ID)
		if w.zones.Has(id) {
			return nil, fmt.Errorf("snapshot: duplicate zone %d", zs.ID)
		}
		z := &Zone{ID: id, Loaded: zs.Loaded, Entities: make([]EntityID, 0, len(zs.Entities))}
		if zs.Name != nil {
			z.Name = strPtr(*zs.Name)
		}
		for _, m := range zs.Entities {
			z.Entities = append(z.Entities, EntityID(m))
		}
		w.zones.Set(id, z)
	}

	for _, es := range s.Entities {
		id := EntityID(es.ID)
		if id == InvalidEntityID || w.entities.Has(id) {
			return nil, fmt.Errorf("snapshot: bad or duplicate entity id %d", es.ID)
		}
		if id >= w.nextEntityID {
			return nil, fmt.Errorf("snapshot: entity %d not below next_entity_id %d", es.ID, s.NextEntityID)
		}
		kind, err := ParseEntityKind(es.Kind)
		if err != nil {
			return nil, fmt.Errorf("snapshot entity %d: %w", es.ID, err)
		}
		state, err := ParseEntityState(es.State)
		if err != nil {
			return nil, fmt.Errorf("snapshot entity %d: %w", es.ID, err)
		}
		e := &Entity{
			ID:        id,
			Kind:      kind,
			State:     state,
			Position:  WorldPos{Zone: ZoneID(es.Zone), Pos: Position{X: es.Pos[0], Y: es.Pos[1], Z: es.Pos[2]}},
			CreatedAt: es.CreatedAt,
			Properties: Properties{
				Name:   es.Name,
				Amount: es.Amount,
				Health: es.Health,
			}.clone(),
		}
		// Zone membership order comes from the snapshot, not from insertion here.
		w.entities.Set(id, e)
	}
	return w, nil
}

func metaToSnapshot(m Meta) snapshot.MetaV2 {
	return snapshot.MetaV2{
		WorldID:       m.WorldID,
		Name:          m.Name,
		Seed:          m.Seed,
		CurrentTick:   m.CurrentTick,
		SimTime:       m.SimTime,
		CreatedTick:   m.CreatedTick,
		SnapshotTick:  m.SnapshotTick,
		LastEventID:   m.LastEventID,
		FormatVersion: m.FormatVersion,
	}
}

func metaFromSnapshot(m snapshot.MetaV2) Meta {
	return Meta{
		WorldID:       m.WorldID,
		Name:          m.Name,
		Seed:          m.Seed,
		CurrentTick:   m.CurrentTick,
		SimTime:       m.SimTime,
		CreatedTick:   m.CreatedTick,
		SnapshotTick:  m.SnapshotTick,
		LastEventID:   m.LastEventID,
		FormatVersion: FormatVersion,
	}
}

// MetaFromSnapshot exposes the conversion for read-only tooling.
func MetaFromSnapshot(m snapshot.MetaV2) Meta { return metaFromSnapshot(m) }

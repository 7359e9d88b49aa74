package world

import (
	"fmt"
)

// FormatVersion is the current on-disk world format.
const FormatVersion = 2

// Meta identifies a world and carries its recovery cursor.
type Meta struct {
	WorldID       string `json:"world_id"`
	Name          string `json:"name"`
	Seed          uint64 `json:"seed"`
	CurrentTick   uint64 `json:"current_tick"`
	SimTime       uint64 `json:"sim_time"`
	CreatedTick   uint64 `json:"created_tick"`
	SnapshotTick  uint64 `json:"snapshot_tick"`
	LastEventID   uint64 `json:"last_event_id"`
	FormatVersion int    `json:"format_version"`
}

// IDForSeed derives the world identifier from its seed.
func IDForSeed(seed uint64) string { return fmt.Sprintf("world_%d", seed) }

// World is a single-threaded authoritative simulation state.
// All mutation goes through Apply; it must be accessed only from the goroutine
// that owns it.
type World struct {
	meta Meta

	tick         uint64
	simTime      uint64
	rngState     uint64
	nextEntityID EntityID

	entities orderedMap[EntityID, *Entity]
	zones    orderedMap[ZoneID, *Zone]
}

// NewEmpty returns a world with no identity. Applying WorldCreated gives it one.
func NewEmpty() *World {
	return &World{
		nextEntityID: 1,
		entities:     newOrderedMap[EntityID, *Entity](),
		zones:        newOrderedMap[ZoneID, *Zone](),
		meta:         Meta{FormatVersion: FormatVersion},
	}
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.meta.WorldID
}

// Meta returns the world's metadata with the live tick filled in.
func (w *World) Meta() Meta {
	m := w.meta
	m.CurrentTick = w.tick
	m.SimTime = w.simTime
	return m
}

func (w *World) Seed() uint64           { return w.meta.Seed }
func (w *World) CurrentTick() uint64    { return w.tick }
func (w *World) SimTime() uint64        { return w.simTime }
func (w *World) RNGState() uint64       { return w.rngState }
func (w *World) NextEntityID() EntityID { return w.nextEntityID }
func (w *World) EntityCount() int       { return w.entities.Len() }
func (w *World) ZoneCount() int         { return w.zones.Len() }

// SetCursor records the snapshot cursor after a successful save or load.
func (w *World) SetCursor(snapshotTick, lastEventID uint64) {
	w.meta.SnapshotTick = snapshotTick
	w.meta.LastEventID = lastEventID
}

func (w *World) Entity(id EntityID) (Entity, bool) {
	e, ok := w.entities.Get(id)
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

func (w *World) HasEntity(id EntityID) bool { return w.entities.Has(id) }
func (w *World) HasZone(id ZoneID) bool     { return w.zones.Has(id) }

// Entities returns copies of all entities in ascending id order.
func (w *World) Entities() []Entity {
	out := make([]Entity, 0, w.entities.Len())
	w.entities.Each(func(_ EntityID, e *Entity) { out = append(out, e.Clone()) })
	return out
}

func (w *World) Zone(id ZoneID) (Zone, bool) {
	z, ok := w.zones.Get(id)
	if !ok {
		return Zone{}, false
	}
	return z.Clone(), true
}

// Zones returns copies of all zones in ascending id order.
func (w *World) Zones() []Zone {
	out := make([]Zone, 0, w.zones.Len())
	w.zones.Each(func(_ ZoneID, z *Zone) { out = append(out, z.Clone()) })
	return out
}

func (w *World) setTick(tick, simTime uint64) {
	w.tick = tick
	w.simTime = simTime
}

func (w *World) addEntity(e *Entity) {
	w.entities.Set(e.ID, e)
	if z, ok := w.zones.Get(e.Position.Zone); ok {
		z.addMember(e.ID)
	}
}

func (w *World) removeEntity(id EntityID) (*Entity, bool) {
	e, ok := w.entities.Delete(id)
	if !ok {
		return nil, false
	}
	if z, ok := w.zones.Get(e.Position.Zone); ok {
		z.removeMember(id)
	}
	return e, true
}

package world

import (
	"encoding/json"
	"fmt"
)

// EventKind tags an EventData variant on the wire.
type EventKind string

const (
	EventWorldCreated          EventKind = "world_created"
	EventTickProcessed         EventKind = "tick_processed"
	EventZoneCreated           EventKind = "zone_created"
	EventZoneLoaded            EventKind = "zone_loaded"
	EventZoneUnloaded          EventKind = "zone_unloaded"
	EventEntitySpawned         EventKind = "entity_spawned"
	EventEntityDespawned       EventKind = "entity_despawned"
	EventEntityMoved           EventKind = "entity_moved"
	EventEntityStateChanged    EventKind = "entity_state_changed"
	EventEntityPropertyChanged EventKind = "entity_property_changed"
	EventResourceDepleted      EventKind = "resource_depleted"
	EventEntityDegraded        EventKind = "entity_degraded"
)

// EventData is the closed set of state transitions. Only types in this
// package implement it.
type EventData interface {
	EventKind() EventKind
	isEventData()
}

// Event is one state transition plus its log position.
// ID is zero until the event log assigns one.
type Event struct {
	ID   uint64
	Tick uint64
	Data EventData
}

type WorldCreated struct {
	WorldID string `json:"world_id"`
	Name    string `json:"name"`
	Seed    uint64 `json:"seed"`
}

// TickProcessed closes a tick. RNGState is the generator state after the
// tick's rules ran, so replay restores randomness exactly.
type TickProcessed struct {
	Tick              uint64 `json:"tick"`
	SimTime           uint64 `json:"sim_time"`
	EntitiesProcessed uint32 `json:"entities_processed"`
	RNGState          uint64 `json:"rng_state"`
}

type ZoneCreated struct {
	ZoneID ZoneID  `json:"zone_id"`
	Name   *string `json:"name,omitempty"`
}

type ZoneLoaded struct {
	ZoneID ZoneID `json:"zone_id"`
}

type ZoneUnloaded struct {
	ZoneID ZoneID `json:"zone_id"`
}

type EntitySpawned struct {
	EntityID   EntityID   `json:"entity_id"`
	Kind       EntityKind `json:"kind"`
	Position   WorldPos   `json:"position"`
	Properties Properties `json:"properties"`
}

type DespawnReason string

const (
	DespawnCommand  DespawnReason = "command"
	DespawnDeath    DespawnReason = "death"
	DespawnDepleted DespawnReason = "depleted"
	DespawnExpired  DespawnReason = "expired"
)

type EntityDespawned struct {
	EntityID EntityID      `json:"entity_id"`
	Reason   DespawnReason `json:"reason"`
}

type EntityMoved struct {
	EntityID EntityID `json:"entity_id"`
	From     WorldPos `json:"from"`
	To       WorldPos `json:"to"`
}

type EntityStateChanged struct {
	EntityID EntityID    `json:"entity_id"`
	OldState EntityState `json:"old_state"`
	NewState EntityState `json:"new_state"`
}

// PropertyValue holds either a string or an unsigned value.
type PropertyValue struct {
	Str  *string `json:"str,omitempty"`
	UInt *uint64 `json:"uint,omitempty"`
}

type EntityPropertyChanged struct {
	EntityID EntityID      `json:"entity_id"`
	Property string        `json:"property"`
	OldValue PropertyValue `json:"old_value"`
	NewValue PropertyValue `json:"new_value"`
}

type ResourceDepleted struct {
	EntityID  EntityID `json:"entity_id"`
	Amount    uint32   `json:"amount"`
	Remaining uint32   `json:"remaining"`
}

type EntityDegraded struct {
	EntityID  EntityID `json:"entity_id"`
	OldHealth uint32   `json:"old_health"`
	NewHealth uint32   `json:"new_health"`
}

func (WorldCreated) EventKind() EventKind          { return EventWorldCreated }
func (TickProcessed) EventKind() EventKind         { return EventTickProcessed }
func (ZoneCreated) EventKind() EventKind           { return EventZoneCreated }
func (ZoneLoaded) EventKind() EventKind            { return EventZoneLoaded }
func (ZoneUnloaded) EventKind() EventKind          { return EventZoneUnloaded }
func (EntitySpawned) EventKind() EventKind         { return EventEntitySpawned }
func (EntityDespawned) EventKind() EventKind       { return EventEntityDespawned }
func (EntityMoved) EventKind() EventKind           { return EventEntityMoved }
func (EntityStateChanged) EventKind() EventKind    { return EventEntityStateChanged }
func (EntityPropertyChanged) EventKind() EventKind { return EventEntityPropertyChanged }
func (ResourceDepleted) EventKind() EventKind      { return EventResourceDepleted }
func (EntityDegraded) EventKind() EventKind        { return EventEntityDegraded }

func (WorldCreated) isEventData()          {}
func (TickProcessed) isEventData()         {}
func (ZoneCreated) isEventData()           {}
func (ZoneLoaded) isEventData()            {}
func (ZoneUnloaded) isEventData()          {}
func (EntitySpawned) isEventData()         {}
func (EntityDespawned) isEventData()       {}
func (EntityMoved) isEventData()           {}
func (EntityStateChanged) isEventData()    {}
func (EntityPropertyChanged) isEventData() {}
func (ResourceDepleted) isEventData()      {}
func (EntityDegraded) isEventData()        {}

// EventEntityID returns the entity an event is about, if any.
func EventEntityID(d EventData) (EntityID, bool) {
	switch d := d.(type) {
	case EntitySpawned:
		return d.EntityID, true
	case EntityDespawned:
		return d.EntityID, true
	case EntityMoved:
		return d.EntityID, true
	case EntityStateChanged:
		return d.EntityID, true
	case EntityPropertyChanged:
		return d.EntityID, true
	case ResourceDepleted:
		return d.EntityID, true
	case EntityDegraded:
		return d.EntityID, true
	}
	return InvalidEntityID, false
}

type eventEnvelope struct {
	Type EventKind       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeEventData produces the tagged JSON payload stored in WAL records.
func EncodeEventData(d EventData) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("encode event: nil data")
	}
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", d.EventKind(), err)
	}
	return json.Marshal(eventEnvelope{Type: d.EventKind(), Data: body})
}

// DecodeEventData is the inverse of EncodeEventData.
func DecodeEventData(b []byte) (EventData, error) {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	return decodeEvent(env.Type, env.Data)
}

func decodeEvent(kind EventKind, data json.RawMessage) (EventData, error) {
	switch kind {
	case EventWorldCreated:
		return decodeAs[WorldCreated](kind, data)
	case EventTickProcessed:
		return decodeAs[TickProcessed](kind, data)
	case EventZoneCreated:
		return decodeAs[ZoneCreated](kind, data)
	case EventZoneLoaded:
		return decodeAs[ZoneLoaded](kind, data)
	case EventZoneUnloaded:
		return decodeAs[ZoneUnloaded](kind, data)
	case EventEntitySpawned:
		return decodeAs[EntitySpawned](kind, data)
	case EventEntityDespawned:
		return decodeAs[EntityDespawned](kind, data)
	case EventEntityMoved:
		return decodeAs[EntityMoved](kind, data)
	case EventEntityStateChanged:
		return decodeAs[EntityStateChanged](kind, data)
	case EventEntityPropertyChanged:
		return decodeAs[EntityPropertyChanged](kind, data)
	case EventResourceDepleted:
		return decodeAs[ResourceDepleted](kind, data)
	case EventEntityDegraded:
		return decodeAs[EntityDegraded](kind, data)
	default:
		return nil, fmt.Errorf("decode event: unknown type %q", kind)
	}
}

func decodeAs[T EventData](kind EventKind, data json.RawMessage) (EventData, error) {
	var v T
	if len(data) == 0 {
		return nil, fmt.Errorf("decode %s: missing data", kind)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return v, nil
}

type eventJSON struct {
	EventID uint64          `json:"event_id"`
	Tick    uint64          `json:"tick"`
	Type    EventKind       `json:"type"`
	Data    json.RawMessage `json:"data"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.Data == nil {
		return nil, fmt.Errorf("marshal event %d: nil data", e.ID)
	}
	body, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventJSON{EventID: e.ID, Tick: e.Tick, Type: e.Data.EventKind(), Data: body})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := decodeEvent(raw.Type, raw.Data)
	if err != nil {
		return err
	}
	*e = Event{ID: raw.EventID, Tick: raw.Tick, Data: data}
	return nil
}

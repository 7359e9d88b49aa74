package world

import (
	"fmt"

	"seeyuj.sim/internal/sim/clock"
	"seeyuj.sim/internal/sim/rng"
)

// Apply folds one event into the world. It is the only function that mutates
// World, and both the live tick loop and recovery call it, so an event has
// the same effect whether it is produced now or replayed later.
//
// Events whose target no longer exists are no-ops. An error means the payload
// itself is malformed and the caller must stop.
func Apply(w *World, ev Event) error {
	if ev.Data == nil {
		return fmt.Errorf("apply event %d: nil data", ev.ID)
	}
	if ev.Tick > w.tick {
		w.setTick(ev.Tick, clock.SimTime(ev.Tick))
	}

	switch d := ev.Data.(type) {
	case WorldCreated:
		if w.meta.WorldID != "" {
			if w.meta.WorldID != d.WorldID || w.meta.Seed != d.Seed {
				return fmt.Errorf("apply world_created: world %s already initialised", w.meta.WorldID)
			}
			return nil
		}
		w.meta.WorldID = d.WorldID
		w.meta.Name = d.Name
		w.meta.Seed = d.Seed
		w.meta.CreatedTick = ev.Tick
		w.meta.FormatVersion = FormatVersion
		w.rngState = rng.SeedState(d.Seed)

	case TickProcessed:
		if d.Tick != ev.Tick {
			return fmt.Errorf("apply tick_processed: payload tick %d != event tick %d", d.Tick, ev.Tick)
		}
		if d.Tick >= w.tick {
			w.setTick(d.Tick, d.SimTime)
		}
		w.rngState = d.RNGState

	case ZoneCreated:
		if !w.zones.Has(d.ZoneID) {
			z := &Zone{ID: d.ZoneID, Entities: []EntityID{}}
			if d.Name != nil {
				z.Name = strPtr(*d.Name)
			}
			w.zones.Set(d.ZoneID, z)
		}

	case ZoneLoaded:
		if z, ok := w.zones.Get(d.ZoneID); ok {
			z.Loaded = true
		}

	case ZoneUnloaded:
		if z, ok := w.zones.Get(d.ZoneID); ok {
			z.Loaded = false
		}

	case EntitySpawned:
		if d.EntityID == InvalidEntityID {
			return fmt.Errorf("apply entity_spawned: entity id 0")
		}
		if !d.Kind.Valid() {
			return fmt.Errorf("apply entity_spawned: invalid kind %d", uint8(d.Kind))
		}
		if w.entities.Has(d.EntityID) {
			return nil
		}
		if d.EntityID >= w.nextEntityID {
			w.nextEntityID = d.EntityID + 1
		}
		w.addEntity(&Entity{
			ID:         d.EntityID,
			Kind:       d.Kind,
			State:      StateActive,
			Position:   d.Position,
			CreatedAt:  ev.Tick,
			Properties: d.Properties.clone(),
		})

	case EntityDespawned:
		w.removeEntity(d.EntityID)

	case EntityMoved:
		if e, ok := w.entities.Get(d.EntityID); ok {
			if e.Position.Zone != d.To.Zone {
				if z, ok := w.zones.Get(e.Position.Zone); ok {
					z.removeMember(d.EntityID)
				}
				if z, ok := w.zones.Get(d.To.Zone); ok {
					z.addMember(d.EntityID)
				}
			}
			e.Position = d.To
		}

	case EntityStateChanged:
		if !d.NewState.Valid() {
			return fmt.Errorf("apply entity_state_changed: invalid state %d", uint8(d.NewState))
		}
		if e, ok := w.entities.Get(d.EntityID); ok {
			e.State = d.NewState
		}

	case EntityPropertyChanged:
		if e, ok := w.entities.Get(d.EntityID); ok {
			if err := setProperty(e, d.Property, d.NewValue); err != nil {
				return fmt.Errorf("apply entity_property_changed: %w", err)
			}
		}

	case ResourceDepleted:
		if e, ok := w.entities.Get(d.EntityID); ok {
			e.Properties.Amount = u32Ptr(d.Remaining)
			if d.Remaining == 0 {
				e.State = StateDead
			}
		}

	case EntityDegraded:
		if e, ok := w.entities.Get(d.EntityID); ok {
			e.Properties.Health = u32Ptr(d.NewHealth)
			if d.NewHealth == 0 {
				e.State = StateDead
			}
		}

	default:
		return fmt.Errorf("apply event %d: unsupported data %T", ev.ID, ev.Data)
	}
	return nil
}

func setProperty(e *Entity, name string, v PropertyValue) error {
	switch name {
	case "name":
		if v.Str == nil {
			e.Properties.Name = nil
			return nil
		}
		e.Properties.Name = strPtr(*v.Str)
	case "amount", "health":
		var p *uint32
		if v.UInt != nil {
			if *v.UInt > uint64(^uint32(0)) {
				return fmt.Errorf("%s value %d overflows uint32", name, *v.UInt)
			}
			p = u32Ptr(uint32(*v.UInt))
		}
		if name == "amount" {
			e.Properties.Amount = p
		} else {
			e.Properties.Health = p
		}
	default:
		return fmt.Errorf("unknown property %q", name)
	}
	return nil
}

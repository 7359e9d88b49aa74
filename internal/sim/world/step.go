package world

import (
	"fmt"

	"seeyuj.sim/internal/protocol"
	"seeyuj.sim/internal/sim/clock"
	"seeyuj.sim/internal/sim/rng"
)

// Rule constants. They participate in determinism; changing them changes
// every digest.
const (
	ResourceDecayChance float32 = 0.01
	CreatureDecayChance float32 = 0.005
	CleanupEveryTicks   uint64  = 100
)

// Rejection records a command that failed validation for a tick.
type Rejection struct {
	Index int
	Cmd   Command
	Err   *CommandError
}

// StepResult is everything one tick produced. Events carry their tick but no
// id; the event log assigns ids.
type StepResult struct {
	Tick              uint64
	Events            []Event
	Rejected          []Rejection
	EntitiesProcessed uint32
}

// Processor turns (World, tick, commands) into events. It performs no I/O and
// draws randomness only from the injected source.
type Processor struct {
	rng rng.Source
}

func NewProcessor(src rng.Source) *Processor { return &Processor{rng: src} }

// ProcessorFor builds a processor whose generator continues from the world's
// persisted RNG state.
func ProcessorFor(w *World) *Processor {
	return NewProcessor(rng.Restore(w.Seed(), w.RNGState()))
}

type emitter struct {
	w      *World
	tick   uint64
	events []Event
}

func (em *emitter) emit(d EventData) error {
	ev := Event{Tick: em.tick, Data: d}
	if err := Apply(em.w, ev); err != nil {
		return err
	}
	em.events = append(em.events, ev)
	return nil
}

// Step advances the world by exactly one tick. tick must be CurrentTick()+1.
// Commands run first in the given order, then the systemic rules. Each event
// is applied as soon as it is emitted.
//
// A non-nil error means an internal invariant broke; rejected commands are
// reported in StepResult instead.
func (p *Processor) Step(w *World, tick uint64, cmds []Command) (StepResult, error) {
	if w.ID() == "" {
		return StepResult{}, reject(protocol.ErrNoWorld, "world has no identity")
	}
	if tick != w.CurrentTick()+1 {
		return StepResult{}, fmt.Errorf("step: tick %d out of order (world at %d)", tick, w.CurrentTick())
	}
	em := &emitter{w: w, tick: tick}
	res := StepResult{Tick: tick}

	for i, c := range cmds {
		ce, err := p.command(em, c)
		if err != nil {
			return res, err
		}
		if ce != nil {
			res.Rejected = append(res.Rejected, Rejection{Index: i, Cmd: c, Err: ce})
		}
	}

	processed, err := p.rules(em)
	if err != nil {
		return res, err
	}
	if tick%CleanupEveryTicks == 0 {
		if err := p.cleanup(em); err != nil {
			return res, err
		}
	}
	if err := em.emit(TickProcessed{
		Tick:              tick,
		SimTime:           clock.SimTime(tick),
		EntitiesProcessed: processed,
		RNGState:          p.rng.State(),
	}); err != nil {
		return res, err
	}

	res.Events = em.events
	res.EntitiesProcessed = processed
	return res, nil
}

func (p *Processor) command(em *emitter, c Command) (*CommandError, error) {
	if c == nil {
		return reject(protocol.ErrInvalid, "nil command"), nil
	}
	if ce := c.Validate(); ce != nil {
		return ce, nil
	}
	w := em.w
	switch c := c.(type) {
	case CreateZoneCmd:
		if w.HasZone(c.ZoneID) {
			return reject(protocol.ErrZoneExists, "zone %d already exists", c.ZoneID), nil
		}
		return nil, em.emit(ZoneCreated{ZoneID: c.ZoneID, Name: c.Name})

	case LoadZoneCmd:
		z, ok := w.zones.Get(c.ZoneID)
		if !ok {
			return reject(protocol.ErrZoneNotFound, "zone %d not found", c.ZoneID), nil
		}
		if z.Loaded {
			return reject(protocol.ErrConflict, "zone %d already loaded", c.ZoneID), nil
		}
		return nil, em.emit(ZoneLoaded{ZoneID: c.ZoneID})

	case UnloadZoneCmd:
		z, ok := w.zones.Get(c.ZoneID)
		if !ok {
			return reject(protocol.ErrZoneNotFound, "zone %d not found", c.ZoneID), nil
		}
		if !z.Loaded {
			return reject(protocol.ErrConflict, "zone %d not loaded", c.ZoneID), nil
		}
		return nil, em.emit(ZoneUnloaded{ZoneID: c.ZoneID})

	case SpawnEntityCmd:
		if !w.HasZone(c.Position.Zone) {
			return reject(protocol.ErrZoneNotFound, "zone %d not found", c.Position.Zone), nil
		}
		return nil, em.emit(EntitySpawned{
			EntityID:   w.nextEntityID,
			Kind:       c.Kind,
			Position:   c.Position,
			Properties: c.Properties.clone(),
		})

	case DespawnEntityCmd:
		if !w.HasEntity(c.EntityID) {
			return reject(protocol.ErrEntityNotFound, "entity %d not found", c.EntityID), nil
		}
		return nil, em.emit(EntityDespawned{EntityID: c.EntityID, Reason: DespawnCommand})

	case MoveEntityCmd:
		e, ok := w.entities.Get(c.EntityID)
		if !ok {
			return reject(protocol.ErrEntityNotFound, "entity %d not found", c.EntityID), nil
		}
		if !w.HasZone(c.To.Zone) {
			return reject(protocol.ErrZoneNotFound, "zone %d not found", c.To.Zone), nil
		}
		return nil, em.emit(EntityMoved{EntityID: c.EntityID, From: e.Position, To: c.To})

	case SetEntityStateCmd:
		e, ok := w.entities.Get(c.EntityID)
		if !ok {
			return reject(protocol.ErrEntityNotFound, "entity %d not found", c.EntityID), nil
		}
		if e.State == c.State {
			return reject(protocol.ErrConflict, "entity %d already %s", c.EntityID, c.State), nil
		}
		return nil, em.emit(EntityStateChanged{EntityID: c.EntityID, OldState: e.State, NewState: c.State})

	default:
		return reject(protocol.ErrInvalid, "unsupported command %T", c), nil
	}
}

// rules runs decay over every active entity in ascending id order.
func (p *Processor) rules(em *emitter) (uint32, error) {
	var processed uint32
	for _, id := range em.w.entities.Keys() {
		e, ok := em.w.entities.Get(id)
		if !ok || !e.IsActive() {
			continue
		}
		switch e.Kind {
		case KindResource:
			if amt := e.Properties.Amount; amt != nil && *amt > 0 && p.rng.Chance(ResourceDecayChance) {
				remaining := *amt - 1
				if err := em.emit(ResourceDepleted{EntityID: id, Amount: 1, Remaining: remaining}); err != nil {
					return processed, err
				}
				if remaining == 0 {
					if err := em.emit(EntityStateChanged{EntityID: id, OldState: StateActive, NewState: StateDead}); err != nil {
						return processed, err
					}
				}
			}
		case KindCreature:
			if hp := e.Properties.Health; hp != nil && *hp > 0 && p.rng.Chance(CreatureDecayChance) {
				old := *hp
				if err := em.emit(EntityDegraded{EntityID: id, OldHealth: old, NewHealth: old - 1}); err != nil {
					return processed, err
				}
				if old-1 == 0 {
					if err := em.emit(EntityStateChanged{EntityID: id, OldState: StateActive, NewState: StateDead}); err != nil {
						return processed, err
					}
				}
			}
		}
		processed++
	}
	return processed, nil
}

func (p *Processor) cleanup(em *emitter) error {
	for _, id := range em.w.entities.Keys() {
		e, ok := em.w.entities.Get(id)
		if !ok || !e.IsDead() {
			continue
		}
		if err := em.emit(EntityDespawned{EntityID: id, Reason: DespawnDeath}); err != nil {
			return err
		}
	}
	return nil
}

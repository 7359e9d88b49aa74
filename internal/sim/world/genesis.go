package world

import (
	"fmt"

	"seeyuj.sim/internal/protocol"
	"seeyuj.sim/internal/sim/clock"
	"seeyuj.sim/internal/sim/rng"
)

// OriginZoneName is the name given to zone 0 at genesis.
const OriginZoneName = "Origin"

// placementSalt separates the genesis placement stream from the rule stream,
// so placement never shifts the rule RNG.
const placementSalt uint64 = 0x9e3779b97f4a7c15

type GenesisConfig struct {
	Resources      int
	Creatures      int
	ResourceAmount uint32
	CreatureHealth uint32
	// SpawnRadius bounds |x| and |y| of genesis entities. 0 puts everything at the origin.
	SpawnRadius int32
}

func DefaultGenesis() GenesisConfig {
	return GenesisConfig{
		ResourceAmount: 100,
		CreatureHealth: 20,
		SpawnRadius:    32,
	}
}

// Genesis builds a world at tick 0 and returns the events that produced it.
// Replaying those events onto NewEmpty() yields the same world.
func Genesis(name string, seed uint64, cfg GenesisConfig) (*World, []Event, error) {
	if ce := ValidateWorldName(name); ce != nil {
		return nil, nil, ce
	}
	if cfg.Resources < 0 || cfg.Creatures < 0 {
		return nil, nil, reject(protocol.ErrInvalid, "negative genesis entity count")
	}
	if cfg.SpawnRadius < 0 {
		return nil, nil, reject(protocol.ErrInvalid, "negative spawn radius")
	}

	w := NewEmpty()
	em := &emitter{w: w, tick: 0}
	origin := OriginZoneName
	if err := em.emit(WorldCreated{WorldID: IDForSeed(seed), Name: name, Seed: seed}); err != nil {
		return nil, nil, err
	}
	if err := em.emit(ZoneCreated{ZoneID: OriginZone, Name: &origin}); err != nil {
		return nil, nil, err
	}

	place := rng.New(seed ^ placementSalt)
	spawn := func(kind EntityKind, props Properties) error {
		pos := WorldPos{Zone: OriginZone}
		if r := cfg.SpawnRadius; r > 0 {
			span := int(r)*2 + 1
			pos.Pos.X = int32(place.Intn(span)) - r
			pos.Pos.Y = int32(place.Intn(span)) - r
		}
		return em.emit(EntitySpawned{EntityID: w.nextEntityID, Kind: kind, Position: pos, Properties: props})
	}
	for i := 0; i < cfg.Resources; i++ {
		amt := cfg.ResourceAmount
		name := fmt.Sprintf("resource-%d", i+1)
		if err := spawn(KindResource, Properties{Name: &name, Amount: &amt}); err != nil {
			return nil, nil, err
		}
	}
	for i := 0; i < cfg.Creatures; i++ {
		hp := cfg.CreatureHealth
		name := fmt.Sprintf("creature-%d", i+1)
		if err := spawn(KindCreature, Properties{Name: &name, Health: &hp}); err != nil {
			return nil, nil, err
		}
	}

	if err := em.emit(TickProcessed{
		Tick:     0,
		SimTime:  clock.SimTime(0),
		RNGState: w.rngState,
	}); err != nil {
		return nil, nil, err
	}
	return w, em.events, nil
}

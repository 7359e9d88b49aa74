package worldtest

import "seeyuj.sim/internal/sim/world"

func smallGenesis() world.GenesisConfig {
	return world.GenesisConfig{Resources: 4, Creatures: 3, ResourceAmount: 6, CreatureHealth: 9, SpawnRadius: 10}
}

func strp(s string) *string { return &s }

// scenario exercises every command kind, including rejected ones.
func scenario() []world.ScheduledCommand {
	at := func(z world.ZoneID, x, y int32) world.WorldPos {
		return world.WorldPos{Zone: z, Pos: world.Position{X: x, Y: y}}
	}
	return []world.ScheduledCommand{
		{Tick: 3, Cmd: world.CreateZoneCmd{ZoneID: 2, Name: strp("east")}},
		{Tick: 4, Cmd: world.LoadZoneCmd{ZoneID: 2}},
		{Tick: 5, Cmd: world.SpawnEntityCmd{Position: at(2, 1, 1), Kind: world.KindCreature}},
		{Tick: 5, Cmd: world.SpawnEntityCmd{Position: at(2, -4, 2), Kind: world.KindItem}},
		{Tick: 8, Cmd: world.MoveEntityCmd{EntityID: 1, To: at(2, 0, 0)}},
		{Tick: 9, Cmd: world.MoveEntityCmd{EntityID: 4242, To: at(2, 0, 0)}},
		{Tick: 12, Cmd: world.SetEntityStateCmd{EntityID: 2, State: world.StateDormant}},
		{Tick: 15, Cmd: world.DespawnEntityCmd{EntityID: 3}},
		{Tick: 18, Cmd: world.UnloadZoneCmd{ZoneID: 2}},
		{Tick: 21, Cmd: world.CreateZoneCmd{ZoneID: 2}},
		{Tick: 30, Cmd: world.SetEntityStateCmd{EntityID: 2, State: world.StateActive}},
	}
}

package world

import (
	"fmt"
	"strings"

	"seeyuj.sim/internal/protocol"
)

// Command is an intent submitted for a tick. The set is closed.
type Command interface {
	// Validate checks the command without looking at world state.
	Validate() *CommandError
	isCommand()
}

type CreateZoneCmd struct {
	ZoneID ZoneID
	Name   *string
}

type LoadZoneCmd struct{ ZoneID ZoneID }

type UnloadZoneCmd struct{ ZoneID ZoneID }

type SpawnEntityCmd struct {
	Position   WorldPos
	Kind       EntityKind
	Properties Properties
}

type DespawnEntityCmd struct{ EntityID EntityID }

type MoveEntityCmd struct {
	EntityID EntityID
	To       WorldPos
}

type SetEntityStateCmd struct {
	EntityID EntityID
	State    EntityState
}

func (CreateZoneCmd) isCommand()     {}
func (LoadZoneCmd) isCommand()       {}
func (UnloadZoneCmd) isCommand()     {}
func (SpawnEntityCmd) isCommand()    {}
func (DespawnEntityCmd) isCommand()  {}
func (MoveEntityCmd) isCommand()     {}
func (SetEntityStateCmd) isCommand() {}

func (c CreateZoneCmd) Validate() *CommandError {
	if c.Name != nil && len(*c.Name) > MaxZoneNameLen {
		return reject(protocol.ErrInvalid, "zone name longer than %d", MaxZoneNameLen)
	}
	return nil
}

func (LoadZoneCmd) Validate() *CommandError   { return nil }
func (UnloadZoneCmd) Validate() *CommandError { return nil }

func (c SpawnEntityCmd) Validate() *CommandError {
	if !c.Kind.Valid() {
		return reject(protocol.ErrInvalid, "invalid entity kind %d", uint8(c.Kind))
	}
	if c.Properties.Name != nil && len(*c.Properties.Name) > MaxWorldNameLen {
		return reject(protocol.ErrInvalid, "entity name longer than %d", MaxWorldNameLen)
	}
	return nil
}

func (c DespawnEntityCmd) Validate() *CommandError {
	if c.EntityID == InvalidEntityID {
		return reject(protocol.ErrInvalid, "entity id 0 is invalid")
	}
	return nil
}

func (c MoveEntityCmd) Validate() *CommandError {
	if c.EntityID == InvalidEntityID {
		return reject(protocol.ErrInvalid, "entity id 0 is invalid")
	}
	return nil
}

func (c SetEntityStateCmd) Validate() *CommandError {
	if c.EntityID == InvalidEntityID {
		return reject(protocol.ErrInvalid, "entity id 0 is invalid")
	}
	if !c.State.Valid() {
		return reject(protocol.ErrInvalid, "invalid entity state %d", uint8(c.State))
	}
	return nil
}

// ValidateWorldName applies the genesis naming rules.
func ValidateWorldName(name string) *CommandError {
	if strings.TrimSpace(name) == "" {
		return reject(protocol.ErrInvalid, "world name is empty")
	}
	if len(name) > MaxWorldNameLen {
		return reject(protocol.ErrInvalid, "world name longer than %d", MaxWorldNameLen)
	}
	return nil
}

// ScheduledCommand pins a command to the tick it runs on.
type ScheduledCommand struct {
	Tick uint64
	Cmd  Command
}

// CommandFromMsg converts the wire form into a Command.
func CommandFromMsg(m protocol.CommandMsg) (Command, error) {
	switch m.Type {
	case protocol.CmdCreateZone:
		if m.ZoneID == nil {
			return nil, fmt.Errorf("%s: missing zone_id", m.Type)
		}
		return CreateZoneCmd{ZoneID: ZoneID(*m.ZoneID), Name: m.Name}, nil
	case protocol.CmdLoadZone:
		if m.ZoneID == nil {
			return nil, fmt.Errorf("%s: missing zone_id", m.Type)
		}
		return LoadZoneCmd{ZoneID: ZoneID(*m.ZoneID)}, nil
	case protocol.CmdUnloadZone:
		if m.ZoneID == nil {
			return nil, fmt.Errorf("%s: missing zone_id", m.Type)
		}
		return UnloadZoneCmd{ZoneID: ZoneID(*m.ZoneID)}, nil
	case protocol.CmdSpawnEntity:
		if m.Pos == nil {
			return nil, fmt.Errorf("%s: missing pos", m.Type)
		}
		kind, err := ParseEntityKind(m.Kind)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Type, err)
		}
		c := SpawnEntityCmd{Position: posFromMsg(*m.Pos), Kind: kind}
		if m.Props != nil {
			c.Properties = Properties{Name: m.Props.Name, Amount: m.Props.Amount, Health: m.Props.Health}.clone()
		}
		return c, nil
	case protocol.CmdDespawnEntity:
		return DespawnEntityCmd{EntityID: EntityID(m.EntityID)}, nil
	case protocol.CmdMoveEntity:
		if m.Pos == nil {
			return nil, fmt.Errorf("%s: missing pos", m.Type)
		}
		return MoveEntityCmd{EntityID: EntityID(m.EntityID), To: posFromMsg(*m.Pos)}, nil
	case protocol.CmdSetEntityState:
		st, err := ParseEntityState(m.State)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Type, err)
		}
		return SetEntityStateCmd{EntityID: EntityID(m.EntityID), State: st}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", m.Type)
	}
}

// CommandToMsg is the inverse of CommandFromMsg. Tick is left to the caller.
func CommandToMsg(c Command) protocol.CommandMsg {
	switch c := c.(type) {
	case CreateZoneCmd:
		id := uint32(c.ZoneID)
		return protocol.CommandMsg{Type: protocol.CmdCreateZone, ZoneID: &id, Name: c.Name}
	case LoadZoneCmd:
		id := uint32(c.ZoneID)
		return protocol.CommandMsg{Type: protocol.CmdLoadZone, ZoneID: &id}
	case UnloadZoneCmd:
		id := uint32(c.ZoneID)
		return protocol.CommandMsg{Type: protocol.CmdUnloadZone, ZoneID: &id}
	case SpawnEntityCmd:
		p := posToMsg(c.Position)
		props := c.Properties.clone()
		return protocol.CommandMsg{
			Type:  protocol.CmdSpawnEntity,
			Kind:  c.Kind.String(),
			Pos:   &p,
			Props: &protocol.PropsMsg{Name: props.Name, Amount: props.Amount, Health: props.Health},
		}
	case DespawnEntityCmd:
		return protocol.CommandMsg{Type: protocol.CmdDespawnEntity, EntityID: uint64(c.EntityID)}
	case MoveEntityCmd:
		p := posToMsg(c.To)
		return protocol.CommandMsg{Type: protocol.CmdMoveEntity, EntityID: uint64(c.EntityID), Pos: &p}
	case SetEntityStateCmd:
		return protocol.CommandMsg{Type: protocol.CmdSetEntityState, EntityID: uint64(c.EntityID), State: c.State.String()}
	default:
		return protocol.CommandMsg{}
	}
}

// ScheduleFromMsg converts a decoded schedule, preserving its order.
func ScheduleFromMsg(msg protocol.ScheduleMsg) ([]ScheduledCommand, error) {
	out := make([]ScheduledCommand, 0, len(msg.Commands))
	for i, m := range msg.Commands {
		c, err := CommandFromMsg(m)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		out = append(out, ScheduledCommand{Tick: m.Tick, Cmd: c})
	}
	return out, nil
}

func posFromMsg(p protocol.PosMsg) WorldPos {
	return WorldPos{Zone: ZoneID(p.Zone), Pos: Position{X: p.X, Y: p.Y, Z: p.Z}}
}

func posToMsg(p WorldPos) protocol.PosMsg {
	return protocol.PosMsg{Zone: uint32(p.Zone), X: p.Pos.X, Y: p.Pos.Y, Z: p.Pos.Z}
}

package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeSchedule = "SCHEDULE"
	TypeHello    = "HELLO"
	TypeWelcome  = "WELCOME"
	TypeSubmit   = "SUBMIT"
	TypeAck      = "ACK"
)

// Command types carried by CommandMsg.Type.
const (
	CmdCreateZone     = "CREATE_ZONE"
	CmdLoadZone       = "LOAD_ZONE"
	CmdUnloadZone     = "UNLOAD_ZONE"
	CmdSpawnEntity    = "SPAWN_ENTITY"
	CmdDespawnEntity  = "DESPAWN_ENTITY"
	CmdMoveEntity     = "MOVE_ENTITY"
	CmdSetEntityState = "SET_ENTITY_STATE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// ScheduleMsg is a batch of commands keyed by the tick they should run on.
type ScheduleMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	WorldID         string       `json:"world_id,omitempty"`
	Commands        []CommandMsg `json:"commands"`
}

// CommandMsg is the wire form of one simulation command. Only the fields
// relevant to Type are set.
type CommandMsg struct {
	Tick uint64 `json:"tick"`
	Type string `json:"type"`

	ZoneID   *uint32   `json:"zone_id,omitempty"`
	Name     *string   `json:"name,omitempty"`
	EntityID uint64    `json:"entity_id,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	State    string    `json:"state,omitempty"`
	Pos      *PosMsg   `json:"pos,omitempty"`
	Props    *PropsMsg `json:"properties,omitempty"`
}

type PosMsg struct {
	Zone uint32 `json:"zone"`
	X    int32  `json:"x"`
	Y    int32  `json:"y"`
	Z    int32  `json:"z"`
}

type PropsMsg struct {
	Name   *string `json:"name,omitempty"`
	Amount *uint32 `json:"amount,omitempty"`
	Health *uint32 `json:"health,omitempty"`
}

// HelloMsg opens a command session on a running world.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Client          string `json:"client,omitempty"`
}

type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	Tick            uint64 `json:"tick"`
}

// SubmitMsg queues one command for the next tick. Command.Tick is ignored.
type SubmitMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Seq             uint64     `json:"seq"`
	Command         CommandMsg `json:"command"`
}

// AckMsg answers a SubmitMsg. Accepted only means queued; whether the command
// was applied or rejected shows up in the committed tick.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

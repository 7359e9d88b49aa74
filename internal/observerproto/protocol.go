// Package observerproto is the read-only observer stream protocol. It is
// separate from the command schedule format.
package observerproto

import "encoding/json"

const Version = "1"

// Client -> Server. First message on the observer WS connection; can be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Events selects whether TICK messages carry event payloads.
	Events bool `json:"events"`
	// Kinds restricts events to these types; empty means all.
	Kinds []string `json:"kinds,omitempty"`
	// EntityID restricts events to one entity when non-zero.
	EntityID uint64 `json:"entity_id,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap, and the payload of the
// WELCOME message.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	WorldID         string `json:"world_id"`
	Name            string `json:"name"`
	Seed            uint64 `json:"seed"`
	Tick            uint64 `json:"tick"`
	Entities        int    `json:"entities"`
	Zones           int    `json:"zones"`
	Digest          string `json:"digest"`
}

// Server -> Client, once after a valid SUBSCRIBE.
type WelcomeMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	SessionID       string            `json:"session_id"`
	World           BootstrapResponse `json:"world"`
}

// Server -> Client. Sent for every committed tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Digest          string `json:"digest"`

	Commands   int        `json:"commands"`
	Rejected   []Rejected `json:"rejected,omitempty"`
	EventCount int        `json:"event_count"`
	Events     []EventMsg `json:"events,omitempty"`
	// Dropped counts TICK messages this client missed because it fell behind.
	Dropped uint64 `json:"dropped,omitempty"`
}

type Rejected struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type EventMsg struct {
	EventID  uint64          `json:"event_id"`
	Type     string          `json:"type"`
	EntityID uint64          `json:"entity_id,omitempty"`
	Data     json.RawMessage `json:"data"`
}

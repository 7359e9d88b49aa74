package world

import "seeyuj.sim/internal/protocol"

// Logger is the only output the simulation core may produce. *log.Logger
// satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}

// TickLogEntry is what a committed tick looks like to sinks outside the core:
// the digest journal, the index db and the observer stream.
type TickLogEntry struct {
	Tick     uint64                `json:"tick"`
	Commands []protocol.CommandMsg `json:"commands,omitempty"`
	Rejected []RejectedCommand     `json:"rejected,omitempty"`
	Events   []Event               `json:"events"`
	Digest   string                `json:"digest"`
}

// RejectedCommand is the serialisable form of a Rejection.
type RejectedCommand struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// NewTickLogEntry builds the sink view of a committed tick. events must carry
// their log ids.
func NewTickLogEntry(res StepResult, cmds []Command, events []Event, digest string) TickLogEntry {
	entry := TickLogEntry{Tick: res.Tick, Events: events, Digest: digest}
	for _, c := range cmds {
		m := CommandToMsg(c)
		m.Tick = res.Tick
		entry.Commands = append(entry.Commands, m)
	}
	for _, r := range res.Rejected {
		entry.Rejected = append(entry.Rejected, RejectedCommand{Index: r.Index, Code: r.Err.Code, Message: r.Err.Message})
	}
	return entry
}

// AuditEntry is an operator-visible incident outside the event stream.
type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "WAL_TAIL_DISCARDED"
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

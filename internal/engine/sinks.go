package engine

import "seeyuj.sim/internal/sim/world"

// multiTickLogger fans a committed tick out to every sink. Sinks are
// best-effort; the event log is the source of truth.
type multiTickLogger []world.TickLogger

func (m multiTickLogger) WriteTick(entry world.TickLogEntry) error {
	for _, t := range m {
		if t != nil {
			_ = t.WriteTick(entry)
		}
	}
	return nil
}

type multiAuditLogger []world.AuditLogger

func (m multiAuditLogger) WriteAudit(entry world.AuditEntry) error {
	for _, a := range m {
		if a != nil {
			_ = a.WriteAudit(entry)
		}
	}
	return nil
}

// The helpers below return untyped nil for a disabled sink so the nil checks
// above hold.

func (s *Session) journalSink() world.TickLogger {
	if s.journal == nil {
		return nil
	}
	return s.journal
}

func (s *Session) indexSink() world.TickLogger {
	if s.idx == nil {
		return nil
	}
	return s.idx
}

func (s *Session) indexAuditSink() world.AuditLogger {
	if s.idx == nil {
		return nil
	}
	return s.idx
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"seeyuj.sim/internal/persistence/archive"
	"seeyuj.sim/internal/persistence/indexdb"
	"seeyuj.sim/internal/persistence/lock"
	persistlog "seeyuj.sim/internal/persistence/log"
	"seeyuj.sim/internal/persistence/snapshot"
	"seeyuj.sim/internal/persistence/wal"
	"seeyuj.sim/internal/recovery"
	"seeyuj.sim/internal/sim/clock"
	"seeyuj.sim/internal/sim/world"
)

// ErrSessionFailed wraps the cause that stopped a session. Once a tick could
// not be made durable the in-memory world is ahead of the log and nothing
// more may be committed or saved.
var ErrSessionFailed = errors.New("session failed")

var ErrSessionClosed = errors.New("session closed")

// Session is one world open for writing. Methods are safe for concurrent use;
// ticks are serialised.
type Session struct {
	mu sync.Mutex

	eng *Engine
	id  string
	dir string

	w     *world.World
	proc  *world.Processor
	clock *clock.Clock

	log      *wal.Log
	store    *snapshot.Store
	lock     *lock.Lock
	archiver *archive.Archiver
	journal  *persistlog.TickLogger
	audit    *persistlog.AuditLogger
	idx      *indexdb.SQLiteIndex
	sinks    multiTickLogger
	audits   multiAuditLogger
	extra    []world.TickLogger

	inbox     chan world.Command
	inboxOnce sync.Once

	recovered recovery.Result
	saveTick  uint64
	lastStep  time.Duration
	failed    error
	closed    bool
}

func (s *Session) ID() string { return s.id }

func (s *Session) Dir() string { return s.dir }

// Recovered describes how the session's world was rebuilt.
func (s *Session) Recovered() recovery.Result { return s.recovered }

// AddTickSink registers an extra consumer of committed ticks, such as the
// observer hub. Sink errors never fail a tick.
func (s *Session) AddTickSink(t world.TickLogger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = append(s.extra, t)
}

// Index returns the session's sqlite index, or nil when disabled.
func (s *Session) Index() *indexdb.SQLiteIndex { return s.idx }

func (s *Session) usable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.failed != nil {
		return fmt.Errorf("%w: %v", ErrSessionFailed, s.failed)
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.failed = err
	s.eng.logger.Printf("%s: session failed at tick %d: %v", s.id, s.w.CurrentTick(), err)
	_ = s.audits.WriteAudit(world.AuditEntry{
		Tick:   s.w.CurrentTick(),
		Actor:  "engine",
		Action: "SESSION_FAILED",
		Reason: err.Error(),
	})
	return fmt.Errorf("%w: %v", ErrSessionFailed, err)
}

// Step processes exactly one tick and makes its events durable under the
// configured sync policy before returning.
func (s *Session) Step(cmds []world.Command) (world.StepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(cmds)
}

func (s *Session) stepLocked(cmds []world.Command) (world.StepResult, error) {
	if err := s.usable(); err != nil {
		return world.StepResult{}, err
	}
	start := time.Now()
	tick := s.clock.Next()
	res, err := s.proc.Step(s.w, tick, cmds)
	if err != nil {
		return res, s.fail(fmt.Errorf("step tick %d: %w", tick, err))
	}
	if err := appendEvents(s.log, res.Events); err != nil {
		return res, s.fail(fmt.Errorf("log tick %d: %w", tick, err))
	}
	if err := s.log.Sync(); err != nil {
		return res, s.fail(fmt.Errorf("sync tick %d: %w", tick, err))
	}
	s.clock.Advance()
	s.lastStep = time.Since(start)

	digest := s.w.StateDigest()
	entry := world.NewTickLogEntry(res, cmds, res.Events, digest)
	_ = s.sinks.WriteTick(entry)
	for _, t := range s.extra {
		_ = t.WriteTick(entry)
	}
	if s.eng.cfg.Debug {
		s.eng.logger.Printf("%s: tick=%d events=%d rejected=%d digest=%s",
			s.id, tick, len(res.Events), len(res.Rejected), digest)
	}
	for _, r := range res.Rejected {
		s.eng.logger.Printf("%s: tick=%d command %d rejected: %v", s.id, tick, r.Index, r.Err)
	}
	return res, nil
}

type SaveResult struct {
	Tick        uint64
	LastEventID uint64
	Path        string
	ArchivePath string
}

// Save writes a snapshot whose cursor is the last logged event. The log is
// never compacted; records before the cursor stay available to queries.
func (s *Session) Save() (SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Session) saveLocked() (SaveResult, error) {
	if err := s.usable(); err != nil {
		return SaveResult{}, err
	}
	if err := s.log.Sync(); err != nil {
		return SaveResult{}, s.fail(err)
	}
	cursor := s.log.LastEventID()
	snap := s.w.ExportSnapshot(cursor)
	if err := s.store.Save(snap); err != nil {
		// The previous snapshot is intact; the session can keep running.
		return SaveResult{}, fmt.Errorf("save snapshot: %w", err)
	}
	s.w.SetCursor(snap.Tick, cursor)
	s.saveTick = snap.Tick
	out := SaveResult{Tick: snap.Tick, LastEventID: cursor, Path: s.store.SnapshotPath()}

	if s.archiver != nil {
		p, err := s.archiver.Archive(snap)
		if err != nil {
			s.eng.logger.Printf("%s: archive snapshot: %v", s.id, err)
		}
		out.ArchivePath = p
		if p != "" && s.eng.cfg.Mirror != nil {
			s.eng.cfg.Mirror.Enqueue(p)
		}
	}
	s.idx.RecordSnapshot(out.Path, out.ArchivePath, snap)
	s.eng.logger.Printf("%s: saved tick=%d cursor=%d", s.id, snap.Tick, cursor)
	return out, nil
}

// Close releases the session. With FinalSave a snapshot is written first;
// a failed session skips it.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	var errs []error
	if s.eng.cfg.FinalSave && s.failed == nil {
		if _, err := s.saveLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closed = true
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	errs = append(errs, s.audit.Close())
	if s.idx != nil {
		errs = append(errs, s.idx.Close())
	}
	errs = append(errs, s.log.Close())
	errs = append(errs, s.lock.Release())
	return errors.Join(errs...)
}

type Status struct {
	WorldID      string `json:"world_id"`
	Name         string `json:"name"`
	Seed         uint64 `json:"seed"`
	CurrentTick  uint64 `json:"current_tick"`
	SimTime      uint64 `json:"sim_time"`
	LastEventID  uint64 `json:"last_event_id"`
	SnapshotTick uint64 `json:"snapshot_tick"`
	Entities     int    `json:"entities"`
	Zones        int    `json:"zones"`
	// Digest is only known for an open world.
	Digest string `json:"digest,omitempty"`
	Open   bool   `json:"open"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.w.Meta()
	return Status{
		WorldID:      m.WorldID,
		Name:         m.Name,
		Seed:         m.Seed,
		CurrentTick:  m.CurrentTick,
		SimTime:      m.SimTime,
		LastEventID:  s.log.LastEventID(),
		SnapshotTick: s.saveTick,
		Entities:     s.w.EntityCount(),
		Zones:        s.w.ZoneCount(),
		Digest:       s.w.StateDigest(),
		Open:         true,
	}
}

type Metrics struct {
	Tick           uint64
	Entities       int
	Zones          int
	LastEventID    uint64
	LogBytes       int64
	StepMS         float64
	TicksSinceSave uint64
	Index          indexdb.Stats
}

func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Metrics{
		Tick:           s.w.CurrentTick(),
		Entities:       s.w.EntityCount(),
		Zones:          s.w.ZoneCount(),
		LastEventID:    s.log.LastEventID(),
		LogBytes:       s.log.Size(),
		StepMS:         float64(s.lastStep.Microseconds()) / 1000,
		TicksSinceSave: s.w.CurrentTick() - s.saveTick,
		Index:          s.idx.Stats(),
	}
}

// View runs fn with the live world under the session lock. fn must not keep
// the pointer.
func (s *Session) View(fn func(w *world.World)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.w)
}

// Digest is the canonical hash of the live world.
func (s *Session) Digest() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.StateDigest()
}

// CurrentTick is the last committed tick.
func (s *Session) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now()
}

// waitTick blocks on the pacing ticker, if any.
func waitTick(ctx context.Context, c <-chan time.Time) error {
	if c == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c:
		return nil
	}
}

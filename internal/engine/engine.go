// Package engine is the host-facing API over the simulation core: it creates
// worlds, opens them for writing through recovery, drives the tick loop and
// answers read-only queries over persisted state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"seeyuj.sim/internal/persistence/archive"
	"seeyuj.sim/internal/persistence/indexdb"
	"seeyuj.sim/internal/persistence/lock"
	persistlog "seeyuj.sim/internal/persistence/log"
	"seeyuj.sim/internal/persistence/snapshot"
	"seeyuj.sim/internal/persistence/wal"
	"seeyuj.sim/internal/recovery"
	"seeyuj.sim/internal/sim/clock"
	"seeyuj.sim/internal/sim/tuning"
	"seeyuj.sim/internal/sim/world"
)

// WALFile is the event log file name inside a world directory.
const WALFile = "events"

var (
	ErrWorldNotFound = errors.New("world not found")
	ErrWorldExists   = errors.New("world already exists")
)

type Config struct {
	DataDir string
	Tuning  tuning.Tuning
	Logger  world.Logger
	// Debug logs one line per committed tick.
	Debug bool
	// FinalSave makes Session.Close write a snapshot first. Hosts set it for
	// graceful shutdown; leaving it off models a crash.
	FinalSave bool
	// Mirror, when set, receives the path of every snapshot archive written.
	Mirror ArchiveMirror
}

type ArchiveMirror interface {
	Enqueue(localPath string)
}

type Engine struct {
	cfg    Config
	logger world.Logger
}

// Open prepares the data directory. It does not open any world.
func Open(cfg Config) (*Engine, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("engine: empty data dir")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "worlds"), 0o755); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = world.NopLogger
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

func (e *Engine) Tuning() tuning.Tuning { return e.cfg.Tuning }

func (e *Engine) WorldDir(id string) string {
	return filepath.Join(e.cfg.DataDir, "worlds", id)
}

func WALPath(worldDir string) string { return filepath.Join(worldDir, WALFile) }

// known reports whether id names a world directory with a snapshot.
func (e *Engine) known(id string) bool {
	return snapshot.NewStore(e.WorldDir(id)).Exists()
}

type CreateParams struct {
	Name string
	Seed uint64
	// Genesis defaults to the tuning's genesis section.
	Genesis *world.GenesisConfig
}

func (e *Engine) genesisConfig() world.GenesisConfig {
	g := e.cfg.Tuning.Genesis
	return world.GenesisConfig{
		Resources:      g.Resources,
		Creatures:      g.Creatures,
		ResourceAmount: g.ResourceAmount,
		CreatureHealth: g.CreatureHealth,
		SpawnRadius:    g.SpawnRadius,
	}
}

// CreateWorld runs genesis, logs its events and writes the first snapshot.
// The world id is derived from the seed.
func (e *Engine) CreateWorld(ctx context.Context, p CreateParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := world.IDForSeed(p.Seed)
	if e.known(id) {
		return "", fmt.Errorf("%w: %s", ErrWorldExists, id)
	}
	cfg := e.genesisConfig()
	if p.Genesis != nil {
		cfg = *p.Genesis
	}
	w, events, err := world.Genesis(p.Name, p.Seed, cfg)
	if err != nil {
		return "", err
	}

	dir := e.WorldDir(id)
	lk, err := lock.Acquire(dir)
	if err != nil {
		return "", fmt.Errorf("lock %s: %w", id, err)
	}
	defer lk.Release()

	policy, err := wal.ParseSyncPolicy(e.cfg.Tuning.WAL.Sync)
	if err != nil {
		return "", err
	}
	l, _, err := wal.Open(WALPath(dir), wal.Options{Sync: policy})
	if err != nil {
		return "", fmt.Errorf("open event log: %w", err)
	}
	defer l.Close()
	if l.LastEventID() > 0 {
		// Left behind by a create that died before its first snapshot.
		e.logger.Printf("create %s: discarding %d orphaned log records", id, l.Len())
		if _, err := l.TruncateAfter(0); err != nil {
			return "", fmt.Errorf("reset event log: %w", err)
		}
	}
	if err := appendEvents(l, events); err != nil {
		return "", err
	}
	if err := l.Sync(); err != nil {
		return "", err
	}

	store := snapshot.NewStore(dir)
	snap := w.ExportSnapshot(l.LastEventID())
	if err := store.Save(snap); err != nil {
		return "", fmt.Errorf("save genesis snapshot: %w", err)
	}

	entry := world.NewTickLogEntry(world.StepResult{Tick: 0}, nil, events, w.StateDigest())
	if e.cfg.Tuning.Journal.Enabled {
		j := persistlog.NewTickLogger(dir)
		if err := j.WriteTick(entry); err != nil {
			e.logger.Printf("create %s: journal: %v", id, err)
		}
		_ = j.Close()
	}
	if e.cfg.Tuning.IndexBackend == "sqlite" {
		idx, err := indexdb.OpenSQLite(indexdb.Path(dir))
		if err != nil {
			e.logger.Printf("create %s: index: %v", id, err)
		} else {
			_ = idx.WriteTick(entry)
			idx.RecordSnapshot(store.SnapshotPath(), "", snap)
			_ = idx.Close()
		}
	}
	audit := persistlog.NewAuditLogger(dir)
	_ = audit.WriteAudit(world.AuditEntry{
		Tick:    0,
		Actor:   "engine",
		Action:  "WORLD_CREATED",
		Details: map[string]any{"name": p.Name, "seed": p.Seed, "entities": w.EntityCount()},
	})
	_ = audit.Close()

	e.logger.Printf("created %s name=%q entities=%d digest=%s", id, p.Name, w.EntityCount(), w.StateDigest())
	return id, nil
}

// appendEvents writes events as one batch and stamps the assigned ids back.
func appendEvents(l *wal.Log, events []world.Event) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]wal.Entry, 0, len(events))
	for _, ev := range events {
		b, err := world.EncodeEventData(ev.Data)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		entries = append(entries, wal.Entry{Tick: ev.Tick, Payload: b})
	}
	ids, err := l.AppendBatch(entries)
	if err != nil {
		return err
	}
	for i := range events {
		events[i].ID = ids[i]
	}
	return nil
}

// LoadWorld takes the world's lock and recovers it from snapshot plus log.
// The session owns every open file until Close.
func (e *Engine) LoadWorld(ctx context.Context, id string) (*Session, error) {
	dir := e.WorldDir(id)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrWorldNotFound, id)
	}
	lk, err := lock.Acquire(dir)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", id, err)
	}
	s, err := e.openSession(ctx, id, dir, lk)
	if err != nil {
		_ = lk.Release()
		return nil, err
	}
	return s, nil
}

func (e *Engine) openSession(ctx context.Context, id, dir string, lk *lock.Lock) (*Session, error) {
	policy, err := wal.ParseSyncPolicy(e.cfg.Tuning.WAL.Sync)
	if err != nil {
		return nil, err
	}
	l, info, err := wal.Open(WALPath(dir), wal.Options{Sync: policy})
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	store := snapshot.NewStore(dir)
	res, err := recovery.Recover(ctx, store, l, e.logger)
	if err != nil {
		l.Close()
		return nil, err
	}
	if res.World.ID() != id {
		l.Close()
		return nil, fmt.Errorf("snapshot world id %q does not match %q", res.World.ID(), id)
	}
	l.EnsureAfter(res.LastEventID())

	// The clock starts at the snapshot and is moved over the replayed ticks.
	clk := clock.New(res.SnapshotTick)
	if !clk.Set(res.World.CurrentTick()) {
		l.Close()
		return nil, fmt.Errorf("recovered tick %d is before snapshot tick %d", res.World.CurrentTick(), res.SnapshotTick)
	}

	s := &Session{
		eng:       e,
		id:        id,
		dir:       dir,
		w:         res.World,
		proc:      world.ProcessorFor(res.World),
		clock:     clk,
		log:       l,
		store:     store,
		lock:      lk,
		audit:     persistlog.NewAuditLogger(dir),
		recovered: res,
		saveTick:  res.SnapshotTick,
	}
	if e.cfg.Tuning.ArchiveKeep > 0 {
		s.archiver = archive.New(dir, e.cfg.Tuning.ArchiveKeep, uint64(e.cfg.Tuning.MilestoneEveryTicks))
	}
	if e.cfg.Tuning.Journal.Enabled {
		s.journal = persistlog.NewTickLogger(dir)
	}
	if e.cfg.Tuning.IndexBackend == "sqlite" {
		idx, err := indexdb.OpenSQLite(indexdb.Path(dir))
		if err != nil {
			e.logger.Printf("%s: index disabled: %v", id, err)
		} else {
			s.idx = idx
			// The log may have been cut back since the index last saw it.
			idx.DeleteEventsAfter(res.LastEventID())
		}
	}
	s.sinks = multiTickLogger{s.journalSink(), s.indexSink()}
	s.audits = multiAuditLogger{s.audit, s.indexAuditSink()}

	if info.Discarded > 0 {
		e.logger.Printf("%s: discarded %d bytes of torn log tail (%v)", id, info.Discarded, info.Stop)
		_ = s.audits.WriteAudit(world.AuditEntry{
			Tick:   s.w.CurrentTick(),
			Actor:  "engine",
			Action: "WAL_TAIL_DISCARDED",
			Reason: errString(info.Stop),
			Details: map[string]any{
				"bytes":         info.Discarded,
				"last_event_id": info.LastEventID,
			},
		})
	}
	_ = s.audits.WriteAudit(world.AuditEntry{
		Tick:   s.w.CurrentTick(),
		Actor:  "engine",
		Action: "WORLD_RECOVERED",
		Details: map[string]any{
			"snapshot_tick": res.SnapshotTick,
			"cursor":        res.SnapshotEventID,
			"replayed":      res.Replayed,
		},
	})
	return s, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ListWorlds returns the ids of every world with a snapshot, sorted.
func (e *Engine) ListWorlds() ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(e.cfg.DataDir, "worlds"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, ent := range ents {
		if ent.IsDir() && e.known(ent.Name()) {
			out = append(out, ent.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// TruncateLog cuts the world's event log back to keepThrough. Records keep
// their ids. The world must not be open.
func (e *Engine) TruncateLog(id string, keepThrough uint64) (int, error) {
	dir := e.WorldDir(id)
	if !e.known(id) {
		return 0, fmt.Errorf("%w: %s", ErrWorldNotFound, id)
	}
	lk, err := lock.Acquire(dir)
	if err != nil {
		return 0, fmt.Errorf("lock %s: %w", id, err)
	}
	defer lk.Release()

	l, _, err := wal.Open(WALPath(dir), wal.Options{})
	if err != nil {
		return 0, fmt.Errorf("open event log: %w", err)
	}
	defer l.Close()
	before := l.LastEventID()
	kept, err := l.TruncateAfter(keepThrough)
	if err != nil {
		return 0, err
	}
	if meta, err := snapshot.NewStore(dir).LoadMeta(); err == nil && keepThrough < meta.LastEventID {
		e.logger.Printf("%s: log cut to %d, behind snapshot cursor %d; ids resume after %d",
			id, keepThrough, meta.LastEventID, meta.LastEventID)
	}
	audit := persistlog.NewAuditLogger(dir)
	_ = audit.WriteAudit(world.AuditEntry{
		Actor:   "admin",
		Action:  "WAL_TRUNCATED",
		Details: map[string]any{"keep_through": keepThrough, "previous_last_event_id": before, "kept": kept},
	})
	_ = audit.Close()
	return kept, nil
}

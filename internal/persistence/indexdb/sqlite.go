package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"seeyuj.sim/internal/persistence/snapshot"
	"seeyuj.sim/internal/sim/world"
)

// Path is where a world keeps its index.
func Path(worldDir string) string { return filepath.Join(worldDir, "index", "world.sqlite") }

// SQLiteIndex is a secondary read model fed asynchronously from the tick
// loop. The WAL stays the source of truth; requests are dropped rather than
// stall a tick when the writer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropTruncate atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqTruncate
	reqBarrier
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
	afterID  uint64
	done     chan struct{}
}

type snapshotRow struct {
	Tick        uint64
	Path        string
	ArchivePath string
	Seed        uint64
	LastEventID uint64
	Entities    int
	Zones       int
	RecordedAt  string
}

// Stats reports queue pressure.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	DropTruncateTotal uint64 `json:"drop_truncate_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Room for a few thousand busy ticks before anything drops.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			commands INTEGER NOT NULL,
			rejected INTEGER NOT NULL,
			events INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			type TEXT NOT NULL,
			entity_id INTEGER,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity_tick ON events(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			archive_path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			last_event_id INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			zones INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropTruncateTotal: s.dropTruncate.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the WAL and journal remain the source of truth.
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry}, &s.dropTick)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

// RecordSnapshot indexes a saved snapshot. archivePath may be empty.
func (s *SQLiteIndex) RecordSnapshot(path, archivePath string, snap snapshot.SnapshotV2) {
	if s == nil {
		return
	}
	r := snapshotRow{
		Tick:        snap.Tick,
		Path:        path,
		ArchivePath: archivePath,
		Seed:        snap.Meta.Seed,
		LastEventID: snap.Meta.LastEventID,
		Entities:    len(snap.Entities),
		Zones:       len(snap.Zones),
		RecordedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// DeleteEventsAfter removes rows for events past eventID, mirroring a WAL
// truncation.
func (s *SQLiteIndex) DeleteEventsAfter(eventID uint64) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqTruncate, afterID: eventID}, &s.dropTruncate)
}

// Flush blocks until every request queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqBarrier, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,commands,rejected,events,raw_json) VALUES(?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(event_id,tick,type,entity_id,raw_json) VALUES(?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,reason,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,archive_path,seed,last_event_id,entities,zones,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	deleteEvents, _ := s.db.Prepare(`DELETE FROM events WHERE event_id > ?`)
	deleteTicks, _ := s.db.Prepare(`DELETE FROM ticks WHERE tick > ?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, insertAudit, insertSnapshot, deleteEvents, deleteTicks} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqBarrier {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			b, _ := json.Marshal(r.tick)
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					int64(r.tick.Tick),
					r.tick.Digest,
					len(r.tick.Commands),
					len(r.tick.Rejected),
					len(r.tick.Events),
					string(b),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for _, ev := range r.tick.Events {
				if insertEvent == nil {
					break
				}
				raw, _ := json.Marshal(ev)
				var entity any
				if id, ok := world.EventEntityID(ev.Data); ok {
					entity = int64(id)
				}
				if _, err := tx.Stmt(insertEvent).Exec(int64(ev.ID), int64(ev.Tick), string(ev.Data.EventKind()), entity, string(raw)); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			if insertAudit != nil {
				if _, err := tx.Stmt(insertAudit).Exec(int64(a.Tick), seq, a.Actor, a.Action, a.Reason, string(raw)); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Tick),
					sn.Path,
					sn.ArchivePath,
					int64(sn.Seed),
					int64(sn.LastEventID),
					sn.Entities,
					sn.Zones,
					sn.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqTruncate:
			if deleteEvents == nil || deleteTicks == nil {
				break
			}
			var maxTick sql.NullInt64
			if err := tx.QueryRow(`SELECT MAX(tick) FROM events WHERE event_id <= ?`, int64(r.afterID)).Scan(&maxTick); err != nil {
				rollback()
				continue
			}
			if _, err := tx.Stmt(deleteEvents).Exec(int64(r.afterID)); err != nil {
				rollback()
				continue
			}
			if maxTick.Valid {
				if _, err := tx.Stmt(deleteTicks).Exec(maxTick.Int64); err != nil {
					rollback()
					continue
				}
			}
			// Destructive changes are committed straight away.
			commit()
			continue
		}
		flushIfNeeded()
	}

	commit()
}

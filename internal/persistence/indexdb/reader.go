package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
)

type EventRow struct {
	EventID  uint64  `db:"event_id" json:"event_id"`
	Tick     uint64  `db:"tick" json:"tick"`
	Type     string  `db:"type" json:"type"`
	EntityID *uint64 `db:"entity_id" json:"entity_id,omitempty"`
	RawJSON  string  `db:"raw_json" json:"raw_json"`
}

type TickRow struct {
	Tick     uint64 `db:"tick" json:"tick"`
	Digest   string `db:"digest" json:"digest"`
	Commands int    `db:"commands" json:"commands"`
	Rejected int    `db:"rejected" json:"rejected"`
	Events   int    `db:"events" json:"events"`
}

type SnapshotRow struct {
	Tick        uint64 `db:"tick" json:"tick"`
	Path        string `db:"path" json:"path"`
	ArchivePath string `db:"archive_path" json:"archive_path,omitempty"`
	Seed        uint64 `db:"seed" json:"seed"`
	LastEventID uint64 `db:"last_event_id" json:"last_event_id"`
	Entities    int    `db:"entities" json:"entities"`
	Zones       int    `db:"zones" json:"zones"`
	RecordedAt  string `db:"recorded_at" json:"recorded_at"`
}

type AuditRow struct {
	Tick    uint64 `db:"tick" json:"tick"`
	Seq     int    `db:"seq" json:"seq"`
	Actor   string `db:"actor" json:"actor"`
	Action  string `db:"action" json:"action"`
	Reason  string `db:"reason" json:"reason,omitempty"`
	RawJSON string `db:"raw_json" json:"raw_json"`
}

// Reader queries an index database. It may be opened while a writer is
// running in another process.
type Reader struct {
	db *sqlx.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// Events returns up to limit events with tick >= fromTick in id order.
func (r *Reader) Events(ctx context.Context, fromTick uint64, limit int) ([]EventRow, error) {
	var out []EventRow
	err := r.db.SelectContext(ctx, &out,
		`SELECT event_id,tick,type,entity_id,raw_json FROM events WHERE tick >= ? ORDER BY event_id LIMIT ?`,
		int64(fromTick), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return out, nil
}

// EntityEvents returns the history of one entity, oldest first.
func (r *Reader) EntityEvents(ctx context.Context, entityID uint64, limit int) ([]EventRow, error) {
	var out []EventRow
	err := r.db.SelectContext(ctx, &out,
		`SELECT event_id,tick,type,entity_id,raw_json FROM events WHERE entity_id = ? ORDER BY event_id LIMIT ?`,
		int64(entityID), limit)
	if err != nil {
		return nil, fmt.Errorf("query entity events: %w", err)
	}
	return out, nil
}

func (r *Reader) Ticks(ctx context.Context, fromTick uint64, limit int) ([]TickRow, error) {
	var out []TickRow
	err := r.db.SelectContext(ctx, &out,
		`SELECT tick,digest,commands,rejected,events FROM ticks WHERE tick >= ? ORDER BY tick LIMIT ?`,
		int64(fromTick), limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	return out, nil
}

// Snapshots returns the newest snapshots first.
func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	var out []SnapshotRow
	err := r.db.SelectContext(ctx, &out,
		`SELECT tick,path,archive_path,seed,last_event_id,entities,zones,recorded_at FROM snapshots ORDER BY tick DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	return out, nil
}

func (r *Reader) Audits(ctx context.Context, limit int) ([]AuditRow, error) {
	var out []AuditRow
	err := r.db.SelectContext(ctx, &out,
		`SELECT tick,seq,actor,action,COALESCE(reason,'') AS reason,raw_json FROM audits ORDER BY tick DESC, seq DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query audits: %w", err)
	}
	return out, nil
}

// LastEventID is the highest indexed event id, 0 when empty.
func (r *Reader) LastEventID(ctx context.Context) (uint64, error) {
	var v sql.NullInt64
	if err := r.db.GetContext(ctx, &v, `SELECT MAX(event_id) FROM events`); err != nil {
		return 0, err
	}
	if !v.Valid {
		return 0, nil
	}
	return uint64(v.Int64), nil
}

package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"seeyuj.sim/internal/persistence/snapshot"
	"seeyuj.sim/internal/sim/world"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: world.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(world.AuditEntry{Tick: 2})
	s.RecordSnapshot("/tmp/snapshot.json", "", snapshot.SnapshotV2{})
	s.DeleteEventsAfter(1)

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.DropTruncateTotal != 1 {
		t.Fatalf("DropTruncateTotal=%d want=1", st.DropTruncateTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func tickEntry(tick uint64, firstID uint64, entity world.EntityID) world.TickLogEntry {
	return world.TickLogEntry{
		Tick:   tick,
		Digest: "d",
		Events: []world.Event{
			{ID: firstID, Tick: tick, Data: world.EntityDegraded{EntityID: entity, OldHealth: 2, NewHealth: 1}},
			{ID: firstID + 1, Tick: tick, Data: world.TickProcessed{Tick: tick, SimTime: tick}},
		},
	}
}

func TestSQLiteIndex_WriteThenQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := uint64(1); i <= 5; i++ {
		if err := idx.WriteTick(tickEntry(i, i*2-1, world.EntityID(i%2+1))); err != nil {
			t.Fatalf("write tick: %v", err)
		}
	}
	_ = idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "admin", Action: "WAL_TRUNCATE"})
	idx.RecordSnapshot("/w/snapshot.json", "/w/archives/4.snap.zst", snapshot.SnapshotV2{
		Tick: 4,
		Meta: snapshot.MetaV2{Seed: 42, LastEventID: 8},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	idx.DeleteEventsAfter(6)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()

	evs, err := r.Events(ctx, 0, 100)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evs) != 6 || evs[5].EventID != 6 {
		t.Fatalf("events=%d want 6 after truncation", len(evs))
	}
	if evs[0].Type != "entity_degraded" || evs[0].EntityID == nil || *evs[0].EntityID != 2 {
		t.Fatalf("first event=%+v", evs[0])
	}
	if evs[1].EntityID != nil {
		t.Fatalf("tick_processed should have no entity: %+v", evs[1])
	}

	ticks, err := r.Ticks(ctx, 0, 100)
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(ticks) != 3 || ticks[2].Tick != 3 || ticks[2].Events != 2 {
		t.Fatalf("ticks=%+v", ticks)
	}

	hist, err := r.EntityEvents(ctx, 2, 10)
	if err != nil {
		t.Fatalf("entity events: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("entity 2 history=%d want 2", len(hist))
	}

	snaps, err := r.Snapshots(ctx, 10)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Tick != 4 || snaps[0].LastEventID != 8 || snaps[0].Seed != 42 {
		t.Fatalf("snapshots=%+v", snaps)
	}

	audits, err := r.Audits(ctx, 10)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if len(audits) != 1 || audits[0].Action != "WAL_TRUNCATE" {
		t.Fatalf("audits=%+v", audits)
	}

	last, err := r.LastEventID(ctx)
	if err != nil || last != 6 {
		t.Fatalf("last event id=%d err=%v want 6", last, err)
	}
}

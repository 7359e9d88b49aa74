package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"seeyuj.sim/internal/sim/world"
)

func TestTickLogger_WriteReadAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	hour := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	l.w.now = func() time.Time { return hour }

	for tick := uint64(1); tick <= 3; tick++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: tick, Digest: "d"}); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	hour = hour.Add(time.Hour)
	for tick := uint64(4); tick <= 5; tick++ {
		if err := l.WriteTick(world.TickLogEntry{Tick: tick, Digest: "d"}); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, JournalDir), JournalPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%d want 2", len(files))
	}
	var got []uint64
	if err := ReadTicks(dir, func(e world.TickLogEntry) error {
		got = append(got, e.Tick)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 5 || got[0] != 1 || got[4] != 5 {
		t.Fatalf("ticks=%v", got)
	}
}

func TestReadTicks_MissingDir(t *testing.T) {
	n := 0
	if err := ReadTicks(filepath.Join(t.TempDir(), "nope"), func(world.TickLogEntry) error { n++; return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 0 {
		t.Fatalf("entries=%d want 0", n)
	}
}

func TestAuditLogger_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := NewAuditLogger(dir)
	if err := a.WriteAudit(world.AuditEntry{Tick: 75, Actor: "recovery", Action: "WAL_TAIL_DISCARDED", Details: map[string]any{"bytes": 12}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, AuditDir)); err != nil {
		t.Fatalf("audit dir: %v", err)
	}
	var got []world.AuditEntry
	if err := ReadAudit(dir, func(e world.AuditEntry) error { got = append(got, e); return nil }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 1 || got[0].Action != "WAL_TAIL_DISCARDED" || got[0].Tick != 75 {
		t.Fatalf("entries=%+v", got)
	}
}

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"seeyuj.sim/internal/persistence/indexdb"
	"seeyuj.sim/internal/persistence/lock"
	persistlog "seeyuj.sim/internal/persistence/log"
	"seeyuj.sim/internal/persistence/wal"
	"seeyuj.sim/internal/sim/tuning"
	"seeyuj.sim/internal/sim/world"
)

func newEngine(t *testing.T, dataDir string, finalSave bool) *Engine {
	t.Helper()
	tu := tuning.Defaults()
	tu.IndexBackend = "none"
	tu.ArchiveKeep = 2
	e, err := Open(Config{DataDir: dataDir, Tuning: tu, FinalSave: finalSave})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	return e
}

func createAndLoad(t *testing.T, e *Engine, seed uint64) *Session {
	t.Helper()
	id, err := e.CreateWorld(context.Background(), CreateParams{Name: "test", Seed: seed})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s, err := e.LoadWorld(context.Background(), id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func testSchedule() []world.ScheduledCommand {
	name := "north"
	return []world.ScheduledCommand{
		{Tick: 10, Cmd: world.CreateZoneCmd{ZoneID: 1, Name: &name}},
		{Tick: 12, Cmd: world.LoadZoneCmd{ZoneID: 1}},
		{Tick: 20, Cmd: world.SpawnEntityCmd{
			Position: world.WorldPos{Zone: 1, Pos: world.Position{X: 3, Y: 0, Z: -2}},
			Kind:     world.KindCreature,
		}},
		{Tick: 30, Cmd: world.MoveEntityCmd{EntityID: 1, To: world.WorldPos{Zone: 1, Pos: world.Position{X: 1, Y: 1, Z: 1}}}},
		{Tick: 40, Cmd: world.DespawnEntityCmd{EntityID: 999}},
		{Tick: 60, Cmd: world.SetEntityStateCmd{EntityID: 2, State: world.StateDormant}},
	}
}

func runFresh(t *testing.T, ticks uint64) string {
	t.Helper()
	e := newEngine(t, t.TempDir(), true)
	s := createAndLoad(t, e, 42)
	defer s.Close()
	res, err := s.Run(context.Background(), RunParams{Schedule: testSchedule(), TickBudget: ticks, SaveInterval: 50})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.EndTick != ticks || res.Ticks != ticks {
		t.Fatalf("run result=%+v", res)
	}
	return res.Digest
}

func TestCreateWorld_IDFromSeedAndNoOverwrite(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	id, err := e.CreateWorld(context.Background(), CreateParams{Name: "alpha", Seed: 42})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != "world_42" {
		t.Fatalf("id=%s", id)
	}
	if _, err := e.CreateWorld(context.Background(), CreateParams{Name: "alpha", Seed: 42}); !errors.Is(err, ErrWorldExists) {
		t.Fatalf("expected ErrWorldExists, got %v", err)
	}
	st, err := e.Status(id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.CurrentTick != 0 || st.SnapshotTick != 0 || st.Entities != 15 || st.Zones != 1 || st.LastEventID != 18 {
		t.Fatalf("status=%+v", st)
	}
	ids, err := e.ListWorlds()
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Fatalf("worlds=%v err=%v", ids, err)
	}
}

func TestCreateWorld_InvalidName(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	if _, err := e.CreateWorld(context.Background(), CreateParams{Name: "  ", Seed: 1}); err == nil {
		t.Fatalf("expected invalid name error")
	}
	if ids, _ := e.ListWorlds(); len(ids) != 0 {
		t.Fatalf("worlds=%v", ids)
	}
}

func TestLoadWorld_Unknown(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	if _, err := e.LoadWorld(context.Background(), "world_404"); !errors.Is(err, ErrWorldNotFound) {
		t.Fatalf("expected ErrWorldNotFound, got %v", err)
	}
}

func TestLoadWorld_SingleWriter(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	s := createAndLoad(t, e, 5)
	if _, err := e.LoadWorld(context.Background(), s.ID()); !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s2, err := e.LoadWorld(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("reload after close: %v", err)
	}
	s2.Close()
}

func TestEndToEnd_TwoRunsAgree(t *testing.T) {
	a := runFresh(t, 100)
	b := runFresh(t, 100)
	if a != b {
		t.Fatalf("digest a=%s b=%s", a, b)
	}
}

func TestEndToEnd_SaveReloadContinues(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, dir, true)
	s := createAndLoad(t, e, 42)
	if _, err := s.Run(context.Background(), RunParams{Schedule: testSchedule(), TickBudget: 100, SaveInterval: 50}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	st, err := e.Status("world_42")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.CurrentTick != 100 || st.SnapshotTick != 100 {
		t.Fatalf("status=%+v", st)
	}

	s, err = e.LoadWorld(context.Background(), "world_42")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer s.Close()
	if s.Recovered().Replayed != 0 || s.CurrentTick() != 100 {
		t.Fatalf("recovered=%+v tick=%d", s.Recovered(), s.CurrentTick())
	}
	if _, err := s.Run(context.Background(), RunParams{TickBudget: 20}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.CurrentTick() != 120 {
		t.Fatalf("tick=%d", s.CurrentTick())
	}
}

// lastOffsetThrough returns the byte offset just past the last record with
// tick <= tick.
func lastOffsetThrough(t *testing.T, path string, tick uint64) int64 {
	t.Helper()
	scan, err := wal.ScanFile(path)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	var off int64
	for _, r := range scan.Records {
		if r.Tick > tick {
			break
		}
		off += r.Size()
	}
	return off
}

func TestEndToEnd_CrashTruncateRecover(t *testing.T) {
	reference := runFresh(t, 75)

	dir := t.TempDir()
	e := newEngine(t, dir, false)
	s := createAndLoad(t, e, 42)
	res, err := s.Run(context.Background(), RunParams{Schedule: testSchedule(), TickBudget: 80, SaveInterval: 50})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Saves != 1 {
		t.Fatalf("saves=%d", res.Saves)
	}
	// No final save: the snapshot stays at tick 50.
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := WALPath(e.WorldDir("world_42"))
	off := lastOffsetThrough(t, path, 75)
	// Leave a few bytes of the next record behind, like a torn write.
	if err := os.Truncate(path, off+7); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	s, err = e.LoadWorld(context.Background(), "world_42")
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	defer s.Close()
	if s.CurrentTick() != 75 {
		t.Fatalf("recovered tick=%d want 75", s.CurrentTick())
	}
	if got := s.Digest(); got != reference {
		t.Fatalf("recovered digest=%s reference=%s", got, reference)
	}
	rec := s.Recovered()
	if rec.SnapshotTick != 50 || rec.Replayed == 0 {
		t.Fatalf("recovered=%+v", rec)
	}

	var discarded bool
	_ = persistlog.ReadAudit(e.WorldDir("world_42"), func(a world.AuditEntry) error {
		if a.Action == "WAL_TAIL_DISCARDED" {
			discarded = true
		}
		return nil
	})
	if !discarded {
		t.Fatalf("expected WAL_TAIL_DISCARDED audit entry")
	}

	// The recovered world keeps going exactly like an uninterrupted one.
	if _, err := s.Run(context.Background(), RunParams{Schedule: testSchedule(), TickBudget: 25}); err != nil {
		t.Fatalf("run after recovery: %v", err)
	}
	if got, want := s.Digest(), runFresh(t, 100); got != want {
		t.Fatalf("digest after resume=%s want %s", got, want)
	}
}

func TestSession_RejectionsDoNotStopRun(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	s := createAndLoad(t, e, 9)
	defer s.Close()
	sched := []world.ScheduledCommand{
		{Tick: 1, Cmd: world.LoadZoneCmd{ZoneID: 77}},
		{Tick: 2, Cmd: world.CreateZoneCmd{ZoneID: 0}},
	}
	res, err := s.Run(context.Background(), RunParams{Schedule: sched, TickBudget: 5})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Rejected != 2 || res.EndTick != 5 {
		t.Fatalf("result=%+v", res)
	}
}

func TestSession_SubmitRunsNextTick(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	s := createAndLoad(t, e, 11)
	defer s.Close()
	before := s.Status().Entities
	if err := s.Submit(world.SpawnEntityCmd{Position: world.WorldPos{Zone: 0}, Kind: world.KindItem}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Run(context.Background(), RunParams{TickBudget: 1}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := s.Status().Entities; got != before+1 {
		t.Fatalf("entities=%d want %d", got, before+1)
	}
}

func TestSession_SkipsPastSchedule(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	s := createAndLoad(t, e, 12)
	defer s.Close()
	res, err := s.Run(context.Background(), RunParams{
		Schedule:   []world.ScheduledCommand{{Tick: 0, Cmd: world.LoadZoneCmd{ZoneID: 0}}},
		TickBudget: 1,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Skipped != 1 {
		t.Fatalf("skipped=%d", res.Skipped)
	}
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	s := createAndLoad(t, e, 13)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx, RunParams{TickBudget: 10})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Interrupted || res.Ticks != 0 {
		t.Fatalf("result=%+v", res)
	}
}

func TestSession_FailedLogPoisonsSession(t *testing.T) {
	e := newEngine(t, t.TempDir(), true)
	s := createAndLoad(t, e, 14)
	if _, err := s.Step(nil); err != nil {
		t.Fatalf("step: %v", err)
	}
	_ = s.log.Close()
	if _, err := s.Step(nil); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
	if _, err := s.Save(); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("save after failure: %v", err)
	}
	if err := s.Submit(world.LoadZoneCmd{ZoneID: 0}); !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("submit after failure: %v", err)
	}
	// Close skips the final save and still releases the lock.
	_ = s.Close()
	st, err := e.Status(s.ID())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.SnapshotTick != 0 {
		t.Fatalf("snapshot tick=%d", st.SnapshotTick)
	}
}

func TestSession_SubmitAfterCloseRefused(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	s := createAndLoad(t, e, 15)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Submit(world.LoadZoneCmd{ZoneID: 0}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("submit after close: %v", err)
	}
}

func TestSession_ClockResumesAfterReplay(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, dir, false)
	s := createAndLoad(t, e, 16)
	if _, err := s.Run(context.Background(), RunParams{TickBudget: 7, SaveInterval: 5}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err := e.LoadWorld(context.Background(), "world_16")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer s.Close()
	if r := s.Recovered(); r.SnapshotTick != 5 || r.Replayed == 0 {
		t.Fatalf("recovered=%+v", r)
	}
	if s.CurrentTick() != 7 {
		t.Fatalf("clock at %d want 7", s.CurrentTick())
	}
	res, err := s.Step(nil)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Tick != 8 || s.CurrentTick() != 8 {
		t.Fatalf("stepped tick=%d clock=%d want 8", res.Tick, s.CurrentTick())
	}
}

func TestListEvents(t *testing.T) {
	e := newEngine(t, t.TempDir(), true)
	s := createAndLoad(t, e, 15)
	if _, err := s.Run(context.Background(), RunParams{TickBudget: 10}); err != nil {
		t.Fatalf("run: %v", err)
	}
	s.Close()

	all, err := e.ListEvents(s.ID(), 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) < 18+10 {
		t.Fatalf("events=%d", len(all))
	}
	if _, ok := all[0].Data.(world.WorldCreated); !ok || all[0].ID != 1 {
		t.Fatalf("first event=%+v", all[0])
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatalf("ids not increasing at %d", i)
		}
	}

	from5, err := e.ListEvents(s.ID(), 5, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(from5) != 3 || from5[0].Tick != 5 {
		t.Fatalf("from5=%+v", from5)
	}
}

func TestVerifyJournal(t *testing.T) {
	e := newEngine(t, t.TempDir(), true)
	s := createAndLoad(t, e, 16)
	if _, err := s.Run(context.Background(), RunParams{Schedule: testSchedule(), TickBudget: 40}); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := s.Digest()
	s.Close()

	res, err := e.VerifyJournal(context.Background(), s.ID())
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Ticks != 40 || res.LastTick != 40 || res.Digest != want {
		t.Fatalf("verify=%+v want digest %s", res, want)
	}

	entries := map[uint64]world.TickLogEntry{}
	if err := persistlog.ReadTicks(e.WorldDir(s.ID()), func(en world.TickLogEntry) error {
		entries[en.Tick] = en
		return nil
	}); err != nil {
		t.Fatalf("read journal: %v", err)
	}
	orig := entries[7]
	bad := orig
	bad.Digest = "0000000000000000"
	entries[7] = bad
	_, err = VerifyEntries(context.Background(), s.ID(), entries, 40)
	var de *DeterminismError
	if !errors.As(err, &de) || de.Tick != 7 {
		t.Fatalf("expected DeterminismError at tick 7, got %v", err)
	}

	entries[7] = orig
	delete(entries, 8)
	if _, err := VerifyEntries(context.Background(), s.ID(), entries, 40); err == nil {
		t.Fatalf("expected gap error")
	}
}

func TestTruncateLog_KeepsIDs(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	s := createAndLoad(t, e, 17)
	if _, err := s.Run(context.Background(), RunParams{TickBudget: 5}); err != nil {
		t.Fatalf("run: %v", err)
	}
	s.Close()

	kept, err := e.TruncateLog(s.ID(), 20)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if kept != 20 {
		t.Fatalf("kept=%d", kept)
	}
	evs, err := e.ListEvents(s.ID(), 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 20 || evs[19].ID != 20 {
		t.Fatalf("events=%d last=%d", len(evs), evs[len(evs)-1].ID)
	}
}

func TestIndexReceivesCommittedTicks(t *testing.T) {
	dir := t.TempDir()
	tu := tuning.Defaults()
	tu.IndexBackend = "sqlite"
	e, err := Open(Config{DataDir: dir, Tuning: tu, FinalSave: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := createAndLoad(t, e, 18)
	if _, err := s.Run(context.Background(), RunParams{TickBudget: 10}); err != nil {
		t.Fatalf("run: %v", err)
	}
	last := s.Status().LastEventID
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := indexdb.OpenReader(indexdb.Path(e.WorldDir(s.ID())))
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()
	got, err := r.LastEventID(context.Background())
	if err != nil {
		t.Fatalf("last event id: %v", err)
	}
	if got != last {
		t.Fatalf("indexed last=%d want %d", got, last)
	}
	ticks, err := r.Ticks(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(ticks) != 11 {
		t.Fatalf("indexed ticks=%d", len(ticks))
	}
	snaps, err := r.Snapshots(context.Background(), 10)
	if err != nil || len(snaps) == 0 {
		t.Fatalf("snapshots=%v err=%v", snaps, err)
	}
}

func TestArchivesWrittenOnSave(t *testing.T) {
	e := newEngine(t, t.TempDir(), false)
	s := createAndLoad(t, e, 19)
	defer s.Close()
	if _, err := s.Run(context.Background(), RunParams{TickBudget: 30, SaveInterval: 10}); err != nil {
		t.Fatalf("run: %v", err)
	}
	ents, err := os.ReadDir(filepath.Join(e.WorldDir(s.ID()), "archives"))
	if err != nil {
		t.Fatalf("read archives: %v", err)
	}
	var files int
	for _, ent := range ents {
		if !ent.IsDir() {
			files++
		}
	}
	if files != 2 {
		t.Fatalf("archives=%d want 2 (keep)", files)
	}
}

type recordingMirror struct{ paths []string }

func (m *recordingMirror) Enqueue(p string) { m.paths = append(m.paths, p) }

func TestSaveHandsArchivesToMirror(t *testing.T) {
	mir := &recordingMirror{}
	tu := tuning.Defaults()
	tu.IndexBackend = "none"
	e, err := Open(Config{DataDir: t.TempDir(), Tuning: tu, Mirror: mir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := createAndLoad(t, e, 23)
	defer s.Close()
	if _, err := s.Run(context.Background(), RunParams{TickBudget: 20, SaveInterval: 10}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mir.paths) != 2 {
		t.Fatalf("mirrored=%d want 2", len(mir.paths))
	}
	if filepath.Base(mir.paths[1]) != "20.snap.zst" {
		t.Fatalf("mirrored %s", mir.paths[1])
	}
}

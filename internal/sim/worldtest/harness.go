package worldtest

import (
	"context"
	"testing"

	"seeyuj.sim/internal/persistence/snapshot"
	"seeyuj.sim/internal/persistence/wal"
	"seeyuj.sim/internal/recovery"
	"seeyuj.sim/internal/sim/world"
)

// Harness drives a world through its exported API the way the engine does,
// without any files: events get ids in emission order and are kept as
// encoded log records, so recovery can be exercised against them.
type Harness struct {
	T *testing.T
	W *world.World
	P *world.Processor

	records []wal.Record
	nextID  uint64
}

func NewHarness(t *testing.T, name string, seed uint64, cfg world.GenesisConfig) *Harness {
	t.Helper()
	w, events, err := world.Genesis(name, seed, cfg)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	h := &Harness{T: t, W: w, P: world.ProcessorFor(w), nextID: 1}
	h.log(events)
	return h
}

// Resume wraps a recovered world; new events continue after lastEventID.
func Resume(t *testing.T, w *world.World, lastEventID uint64) *Harness {
	return &Harness{T: t, W: w, P: world.ProcessorFor(w), nextID: lastEventID + 1}
}

func (h *Harness) log(events []world.Event) {
	h.T.Helper()
	for _, ev := range events {
		b, err := world.EncodeEventData(ev.Data)
		if err != nil {
			h.T.Fatalf("encode event: %v", err)
		}
		h.records = append(h.records, wal.Record{EventID: h.nextID, Tick: ev.Tick, Payload: b})
		h.nextID++
	}
}

// Step runs the next tick with cmds and logs its events.
func (h *Harness) Step(cmds ...world.Command) world.StepResult {
	h.T.Helper()
	res, err := h.P.Step(h.W, h.W.CurrentTick()+1, cmds)
	if err != nil {
		h.T.Fatalf("step %d: %v", h.W.CurrentTick()+1, err)
	}
	h.log(res.Events)
	return res
}

// Run steps through tick `to`, feeding scheduled commands on their tick.
// It returns the digest after every tick, indexed by tick.
func (h *Harness) Run(to uint64, sched []world.ScheduledCommand) map[uint64]string {
	h.T.Helper()
	byTick := map[uint64][]world.Command{}
	for _, sc := range sched {
		byTick[sc.Tick] = append(byTick[sc.Tick], sc.Cmd)
	}
	digests := map[uint64]string{h.W.CurrentTick(): h.W.StateDigest()}
	for h.W.CurrentTick() < to {
		t := h.W.CurrentTick() + 1
		h.Step(byTick[t]...)
		digests[t] = h.W.StateDigest()
	}
	return digests
}

func (h *Harness) LastEventID() uint64 { return h.nextID - 1 }

func (h *Harness) Records() []wal.Record { return h.records }

// ReadFrom serves the logged records after afterID.
func (h *Harness) ReadFrom(afterID uint64) ([]wal.Record, error) {
	var out []wal.Record
	for _, r := range h.records {
		if r.EventID > afterID {
			out = append(out, r)
		}
	}
	return out, nil
}

// CursorAt is the id of the last event committed at or before tick.
func (h *Harness) CursorAt(tick uint64) uint64 {
	var id uint64
	for _, r := range h.records {
		if r.Tick > tick {
			break
		}
		id = r.EventID
	}
	return id
}

// SnapshotAt rebuilds the state as of cursor from the log and saves it into
// dir, as if the engine had checkpointed there.
func (h *Harness) SnapshotAt(dir string, cursor uint64) *snapshot.Store {
	h.T.Helper()
	recs, _ := h.ReadFrom(0)
	events, err := recovery.EventsFromRecords(recs)
	if err != nil {
		h.T.Fatalf("decode: %v", err)
	}
	var head []world.Event
	for _, ev := range events {
		if ev.ID <= cursor {
			head = append(head, ev)
		}
	}
	w := world.NewEmpty()
	if err := recovery.Replay(context.Background(), w, 0, head); err != nil {
		h.T.Fatalf("rebuild to %d: %v", cursor, err)
	}
	store := snapshot.NewStore(dir)
	if err := store.Save(w.ExportSnapshot(cursor)); err != nil {
		h.T.Fatalf("save snapshot: %v", err)
	}
	return store
}

// Recover runs the recovery coordinator against store and this harness's log.
func (h *Harness) Recover(store *snapshot.Store) recovery.Result {
	h.T.Helper()
	res, err := recovery.Recover(context.Background(), store, h, nil)
	if err != nil {
		h.T.Fatalf("recover: %v", err)
	}
	return res
}

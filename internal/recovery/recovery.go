// Package recovery rebuilds a world from its last snapshot plus the event log
// tail written after it.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"seeyuj.sim/internal/persistence/snapshot"
	"seeyuj.sim/internal/persistence/wal"
	"seeyuj.sim/internal/sim/world"
)

// ErrMissingSnapshot means a world that should exist has no snapshot and
// cannot be reconstructed.
var ErrMissingSnapshot = errors.New("missing snapshot")

type Phase int

const (
	Cold Phase = iota
	Loading
	Replaying
	Ready
)

func (p Phase) String() string {
	switch p {
	case Cold:
		return "cold"
	case Loading:
		return "loading"
	case Replaying:
		return "replaying"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// RecordSource yields log records with EventID > afterID in append order.
// *wal.Log satisfies it.
type RecordSource interface {
	ReadFrom(afterID uint64) ([]wal.Record, error)
}

// FileSource reads a log file without opening it for writing. Used by
// read-only tooling.
type FileSource string

func (p FileSource) ReadFrom(afterID uint64) ([]wal.Record, error) {
	return wal.ReadFile(string(p), afterID)
}

type Result struct {
	World *world.World

	SnapshotTick    uint64
	SnapshotEventID uint64

	// Replayed is the number of log records applied on top of the snapshot.
	Replayed int
	// FirstID and LastID bound the replayed range; both are 0 when nothing
	// was replayed.
	FirstID uint64
	LastID  uint64
}

// LastEventID is the cursor of the recovered world.
func (r Result) LastEventID() uint64 {
	if r.Replayed > 0 {
		return r.LastID
	}
	return r.SnapshotEventID
}

type Coordinator struct {
	Store  *snapshot.Store
	Source RecordSource
	Logger world.Logger

	// OnPhase, when set, observes every phase transition.
	OnPhase func(Phase)

	phase Phase
}

func (c *Coordinator) Phase() Phase { return c.phase }

func (c *Coordinator) enter(p Phase) {
	c.phase = p
	if c.OnPhase != nil {
		c.OnPhase(p)
	}
}

// Recover loads the snapshot, then applies every record whose id is past the
// snapshot cursor, strictly in id order.
func (c *Coordinator) Recover(ctx context.Context) (Result, error) {
	logger := c.Logger
	if logger == nil {
		logger = world.NopLogger
	}
	c.enter(Loading)
	snap, err := c.Store.Load()
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return Result{}, fmt.Errorf("%w in %s", ErrMissingSnapshot, c.Store.Dir())
	}
	if err != nil {
		return Result{}, fmt.Errorf("load snapshot: %w", err)
	}
	w, err := world.FromSnapshot(snap)
	if err != nil {
		return Result{}, fmt.Errorf("restore snapshot: %w", err)
	}
	res := Result{
		World:           w,
		SnapshotTick:    snap.Meta.SnapshotTick,
		SnapshotEventID: snap.Meta.LastEventID,
	}

	c.enter(Replaying)
	recs, err := c.Source.ReadFrom(res.SnapshotEventID)
	if err != nil {
		return Result{}, fmt.Errorf("read event log: %w", err)
	}
	events, err := EventsFromRecords(recs)
	if err != nil {
		return Result{}, err
	}
	if err := Replay(ctx, w, res.SnapshotEventID, events); err != nil {
		return Result{}, err
	}
	if n := len(events); n > 0 {
		res.Replayed = n
		res.FirstID = events[0].ID
		res.LastID = events[n-1].ID
	}
	w.SetCursor(res.SnapshotTick, res.LastEventID())

	c.enter(Ready)
	logger.Printf("recovered %s: snapshot tick=%d cursor=%d replayed=%d now tick=%d",
		w.ID(), res.SnapshotTick, res.SnapshotEventID, res.Replayed, w.CurrentTick())
	return res, nil
}

// Recover is Coordinator.Recover without phase observation.
func Recover(ctx context.Context, store *snapshot.Store, src RecordSource, logger world.Logger) (Result, error) {
	c := &Coordinator{Store: store, Source: src, Logger: logger}
	return c.Recover(ctx)
}

// EventsFromRecords decodes log records into events. A payload that does not
// decode is corruption the integrity check could not see, and is fatal.
func EventsFromRecords(recs []wal.Record) ([]world.Event, error) {
	out := make([]world.Event, 0, len(recs))
	for _, r := range recs {
		d, err := world.DecodeEventData(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode event %d (tick %d): %w", r.EventID, r.Tick, err)
		}
		out = append(out, world.Event{ID: r.EventID, Tick: r.Tick, Data: d})
	}
	return out, nil
}

// Replay applies events with ids strictly above cursor. Ids must increase;
// a repeated or out-of-order id stops the replay.
func Replay(ctx context.Context, w *world.World, cursor uint64, events []world.Event) error {
	prev := cursor
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ev.ID <= prev {
			return fmt.Errorf("replay: event %d not after %d", ev.ID, prev)
		}
		if err := world.Apply(w, ev); err != nil {
			return fmt.Errorf("replay event %d: %w", ev.ID, err)
		}
		prev = ev.ID
	}
	return nil
}

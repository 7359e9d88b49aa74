package engine

import (
	"context"
	"fmt"

	"seeyuj.sim/internal/persistence/snapshot"
	"seeyuj.sim/internal/persistence/wal"
	"seeyuj.sim/internal/recovery"
	"seeyuj.sim/internal/sim/world"
)

// Status reads a world's position from disk without opening it: the snapshot
// meta plus a scan of the event log. It works while another process holds the
// world open, and then reflects what that process has made durable.
func (e *Engine) Status(id string) (Status, error) {
	if !e.known(id) {
		return Status{}, fmt.Errorf("%w: %s", ErrWorldNotFound, id)
	}
	dir := e.WorldDir(id)
	store := snapshot.NewStore(dir)
	meta, err := store.LoadMeta()
	if err != nil {
		return Status{}, err
	}
	st := Status{
		WorldID:      meta.WorldID,
		Name:         meta.Name,
		Seed:         meta.Seed,
		CurrentTick:  meta.CurrentTick,
		SimTime:      meta.SimTime,
		LastEventID:  meta.LastEventID,
		SnapshotTick: meta.SnapshotTick,
	}
	if snap, err := store.Load(); err == nil {
		st.Entities = len(snap.Entities)
		st.Zones = len(snap.Zones)
	}
	scan, err := wal.ScanFile(WALPath(dir))
	if err != nil {
		return Status{}, err
	}
	if n := len(scan.Records); n > 0 {
		last := scan.Records[n-1]
		if last.EventID > st.LastEventID {
			st.LastEventID = last.EventID
		}
		if last.Tick > st.CurrentTick {
			st.CurrentTick = last.Tick
			st.SimTime = last.Tick
		}
	}
	return st, nil
}

// ListEvents returns up to count logged events with tick >= fromTick, in log
// order. count <= 0 means no limit. The log is never compacted, so history
// from genesis is available.
func (e *Engine) ListEvents(id string, fromTick uint64, count int) ([]world.Event, error) {
	if !e.known(id) {
		return nil, fmt.Errorf("%w: %s", ErrWorldNotFound, id)
	}
	recs, err := wal.ReadFile(WALPath(e.WorldDir(id)), 0)
	if err != nil {
		return nil, err
	}
	sel := recs[:0]
	for _, r := range recs {
		if r.Tick < fromTick {
			continue
		}
		sel = append(sel, r)
		if count > 0 && len(sel) == count {
			break
		}
	}
	return recovery.EventsFromRecords(sel)
}

// Inspect rebuilds a world read-only from snapshot and log, without taking
// its lock or touching any file.
func (e *Engine) Inspect(ctx context.Context, id string) (*world.World, recovery.Result, error) {
	if !e.known(id) {
		return nil, recovery.Result{}, fmt.Errorf("%w: %s", ErrWorldNotFound, id)
	}
	dir := e.WorldDir(id)
	res, err := recovery.Recover(ctx, snapshot.NewStore(dir), recovery.FileSource(WALPath(dir)), nil)
	if err != nil {
		return nil, res, err
	}
	return res.World, res, nil
}

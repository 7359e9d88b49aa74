package engine

import (
	"context"
	"fmt"

	persistlog "seeyuj.sim/internal/persistence/log"
	"seeyuj.sim/internal/recovery"
	"seeyuj.sim/internal/sim/clock"
	"seeyuj.sim/internal/sim/world"
)

// DeterminismError reports a tick whose recomputed digest differs from the
// recorded one. It is always a defect.
type DeterminismError struct {
	WorldID string
	Tick    uint64
	Want    string
	Got     string
}

func (e *DeterminismError) Error() string {
	return fmt.Sprintf("determinism violation in %s at tick %d: recorded %s, recomputed %s", e.WorldID, e.Tick, e.Want, e.Got)
}

type VerifyResult struct {
	Ticks     uint64
	FirstTick uint64
	LastTick  uint64
	Digest    string
}

// VerifyJournal re-executes a world from its journaled genesis, feeding each
// tick the recorded commands, and compares digests tick by tick. When a tick
// was journaled twice (re-run after a crash) the later entry wins.
func (e *Engine) VerifyJournal(ctx context.Context, id string) (VerifyResult, error) {
	if !e.known(id) {
		return VerifyResult{}, fmt.Errorf("%w: %s", ErrWorldNotFound, id)
	}
	entries := map[uint64]world.TickLogEntry{}
	var maxTick uint64
	err := persistlog.ReadTicks(e.WorldDir(id), func(entry world.TickLogEntry) error {
		entries[entry.Tick] = entry
		if entry.Tick > maxTick {
			maxTick = entry.Tick
		}
		return nil
	})
	if err != nil {
		return VerifyResult{}, fmt.Errorf("read journal: %w", err)
	}
	return VerifyEntries(ctx, id, entries, maxTick)
}

// VerifyEntries checks journal entries 0..maxTick. Entry 0 must hold the
// genesis events.
func VerifyEntries(ctx context.Context, id string, entries map[uint64]world.TickLogEntry, maxTick uint64) (VerifyResult, error) {
	genesis, ok := entries[0]
	if !ok {
		return VerifyResult{}, fmt.Errorf("journal of %s has no genesis entry", id)
	}
	w := world.NewEmpty()
	if err := recovery.Replay(ctx, w, 0, genesis.Events); err != nil {
		return VerifyResult{}, fmt.Errorf("genesis: %w", err)
	}
	if got := w.StateDigest(); got != genesis.Digest {
		return VerifyResult{}, &DeterminismError{WorldID: id, Tick: 0, Want: genesis.Digest, Got: got}
	}

	res := VerifyResult{LastTick: 0, Digest: w.StateDigest()}
	p := world.ProcessorFor(w)
	clk := clock.New(0)
	for clk.Now() < maxTick {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		t := clk.Next()
		entry, ok := entries[t]
		if !ok {
			return res, fmt.Errorf("journal of %s has no entry for tick %d", id, t)
		}
		cmds := make([]world.Command, 0, len(entry.Commands))
		for i, m := range entry.Commands {
			c, err := world.CommandFromMsg(m)
			if err != nil {
				return res, fmt.Errorf("tick %d command %d: %w", t, i, err)
			}
			cmds = append(cmds, c)
		}
		if _, err := p.Step(w, t, cmds); err != nil {
			return res, fmt.Errorf("tick %d: %w", t, err)
		}
		clk.Advance()
		got := w.StateDigest()
		if got != entry.Digest {
			return res, &DeterminismError{WorldID: id, Tick: t, Want: entry.Digest, Got: got}
		}
		if res.Ticks == 0 {
			res.FirstTick = t
		}
		res.Ticks++
		res.LastTick = t
		res.Digest = got
	}
	return res, nil
}

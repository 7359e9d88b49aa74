package engine

import (
	"context"
	"errors"
	"slices"
	"time"

	"seeyuj.sim/internal/sim/world"
)

// InboxSize bounds commands submitted between ticks.
const InboxSize = 1024

var ErrInboxFull = errors.New("command inbox full")

type RunParams struct {
	// Schedule pins commands to absolute ticks. Within a tick they run in
	// slice order. Entries for ticks already processed are skipped.
	Schedule []world.ScheduledCommand
	// TickBudget is the number of ticks to process; 0 runs until ctx ends.
	TickBudget uint64
	// SaveInterval snapshots every n ticks (on tick % n == 0); 0 disables.
	SaveInterval uint64
	// TPS paces the loop with a wall-clock ticker; 0 runs unpaced.
	TPS int
}

type RunResult struct {
	StartTick   uint64
	EndTick     uint64
	Ticks       uint64
	Rejected    int
	Skipped     int
	Saves       int
	Digest      string
	Interrupted bool
}

// Submit queues a command for the next tick Run processes. Submitted commands
// run after that tick's scheduled ones and are journaled like them. A closed
// or failed session refuses new commands.
func (s *Session) Submit(c world.Command) error {
	s.mu.Lock()
	err := s.usable()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.inboxOnce.Do(s.initInbox)
	select {
	case s.inbox <- c:
		return nil
	default:
		return ErrInboxFull
	}
}

func (s *Session) initInbox() { s.inbox = make(chan world.Command, InboxSize) }

func (s *Session) drainInbox(dst []world.Command) []world.Command {
	for {
		select {
		case c := <-s.inbox:
			dst = append(dst, c)
		default:
			return dst
		}
	}
}

// Run drives the tick loop. Cancelling ctx stops it between ticks and is not
// an error; the caller decides whether to save on the way out.
func (s *Session) Run(ctx context.Context, p RunParams) (RunResult, error) {
	s.inboxOnce.Do(s.initInbox)
	start := s.CurrentTick()
	res := RunResult{StartTick: start, EndTick: start}

	byTick := make(map[uint64][]world.Command)
	for _, sc := range p.Schedule {
		if sc.Tick <= start {
			res.Skipped++
			continue
		}
		byTick[sc.Tick] = append(byTick[sc.Tick], sc.Cmd)
	}
	if res.Skipped > 0 {
		s.eng.logger.Printf("%s: skipped %d scheduled commands at or before tick %d", s.id, res.Skipped, start)
	}

	var tickC <-chan time.Time
	if p.TPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(p.TPS))
		defer ticker.Stop()
		tickC = ticker.C
	}

	for p.TickBudget == 0 || res.Ticks < p.TickBudget {
		if err := waitTick(ctx, tickC); err != nil {
			res.Interrupted = true
			break
		}
		next := s.CurrentTick() + 1
		cmds := s.drainInbox(slices.Clone(byTick[next]))
		delete(byTick, next)

		sr, err := s.Step(cmds)
		if err != nil {
			return res, err
		}
		res.Ticks++
		res.EndTick = sr.Tick
		res.Rejected += len(sr.Rejected)

		if p.SaveInterval > 0 && sr.Tick%p.SaveInterval == 0 {
			if _, err := s.Save(); err != nil {
				return res, err
			}
			res.Saves++
		}
	}
	res.Digest = s.Digest()
	return res, nil
}

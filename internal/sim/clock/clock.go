// Package clock holds the simulation's notion of time. Ticks are the only time
// the simulation trusts; nothing here reads the wall clock.
package clock

// SecondsPerTick is the simulated duration of one tick.
const SecondsPerTick = 1

// SimTime returns the simulated seconds elapsed at the given tick.
func SimTime(tick uint64) uint64 { return tick * SecondsPerTick }

// Clock is a monotonic tick counter owned by a single world session. The
// session asks it for the tick to process and advances it only once that
// tick is durable.
type Clock struct {
	tick uint64
}

func New(start uint64) *Clock { return &Clock{tick: start} }

func (c *Clock) Now() uint64 { return c.tick }

// Next returns the tick that the next step will process, without advancing.
func (c *Clock) Next() uint64 { return c.tick + 1 }

// Advance moves the clock one tick forward and returns the new tick.
func (c *Clock) Advance() uint64 {
	c.tick++
	return c.tick
}

// Set repositions the clock, e.g. after recovery. It refuses to move backwards.
func (c *Clock) Set(tick uint64) bool {
	if tick < c.tick {
		return false
	}
	c.tick = tick
	return true
}

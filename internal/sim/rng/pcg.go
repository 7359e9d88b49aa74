// Package rng provides the seeded pseudo-random generator used by world rules.
//
// The generator is PCG32 (XSH-RR). Its whole state is one uint64 plus the
// stream increment derived from the world seed, so it can be persisted inside
// snapshots and events and restored exactly.
package rng

const multiplier uint64 = 6364136223846793005

// Source is the randomness port the rule engine draws from.
type Source interface {
	Uint32() uint32
	Float32() float32
	Chance(p float32) bool
	Intn(n int) int
	State() uint64
}

type PCG32 struct {
	state uint64
	inc   uint64
}

// New seeds a generator: the state starts at the seed and is advanced once.
func New(seed uint64) *PCG32 {
	p := &PCG32{state: seed, inc: seed<<1 | 1}
	p.step()
	return p
}

// Restore rebuilds a generator from a persisted state. The seed only selects
// the stream; it must be the world's original seed.
func Restore(seed, state uint64) *PCG32 {
	return &PCG32{state: state, inc: seed<<1 | 1}
}

// SeedState returns the state a freshly seeded generator starts from.
func SeedState(seed uint64) uint64 { return New(seed).state }

func (p *PCG32) step() { p.state = p.state*multiplier + p.inc }

func (p *PCG32) State() uint64 { return p.state }

func (p *PCG32) Uint32() uint32 {
	old := p.state
	p.step()
	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return (xorshifted >> rot) | (xorshifted << ((-rot) & 31))
}

// Float32 returns a value in [0, 1) built from the top 24 bits.
func (p *PCG32) Float32() float32 {
	return float32(p.Uint32()>>8) / float32(1<<24)
}

func (p *PCG32) Chance(prob float32) bool { return p.Float32() < prob }

// Intn returns a value in [0, n). n <= 0 returns 0 without consuming state.
func (p *PCG32) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(p.Uint32() % uint32(n))
}

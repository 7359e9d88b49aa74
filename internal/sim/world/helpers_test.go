package world

import "testing"

func testGenesis() GenesisConfig {
	return GenesisConfig{Resources: 10, Creatures: 5, ResourceAmount: 100, CreatureHealth: 20, SpawnRadius: 32}
}

func newTestWorld(t *testing.T, seed uint64) (*World, *Processor) {
	t.Helper()
	w, _, err := Genesis("test", seed, testGenesis())
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return w, ProcessorFor(w)
}

// runTicks advances n ticks with no commands and returns the digest after each.
func runTicks(t *testing.T, w *World, p *Processor, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if _, err := p.Step(w, w.CurrentTick()+1, nil); err != nil {
			t.Fatalf("step %d: %v", w.CurrentTick()+1, err)
		}
		out = append(out, w.StateDigest())
	}
	return out
}

func mustStep(t *testing.T, w *World, p *Processor, cmds ...Command) StepResult {
	t.Helper()
	res, err := p.Step(w, w.CurrentTick()+1, cmds)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	return res
}

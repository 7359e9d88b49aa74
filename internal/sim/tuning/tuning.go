package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning is the per-deployment simulation and persistence configuration.
// Rule constants that affect determinism are not tunable here.
type Tuning struct {
	// TickRateHz paces the host loop. 0 runs as fast as possible.
	TickRateHz         int `yaml:"tick_rate_hz"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	ArchiveKeep        int `yaml:"archive_keep"`
	// MilestoneEveryTicks marks archives that are never pruned. 0 disables.
	MilestoneEveryTicks int `yaml:"milestone_every_ticks"`

	WAL     WAL     `yaml:"wal"`
	Genesis Genesis `yaml:"genesis"`
	Journal Journal `yaml:"journal"`

	// IndexBackend is "sqlite" or "none".
	IndexBackend string `yaml:"index_backend"`
}

type WAL struct {
	// Sync is "always" or "batch".
	Sync string `yaml:"sync"`
}

type Genesis struct {
	Resources      int    `yaml:"resources"`
	Creatures      int    `yaml:"creatures"`
	ResourceAmount uint32 `yaml:"resource_amount"`
	CreatureHealth uint32 `yaml:"creature_health"`
	SpawnRadius    int32  `yaml:"spawn_radius"`
}

type Journal struct {
	Enabled bool `yaml:"enabled"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:          0,
		SnapshotEveryTicks:  100,
		ArchiveKeep:         5,
		MilestoneEveryTicks: 10000,
		WAL:                 WAL{Sync: "always"},
		Genesis: Genesis{
			Resources:      10,
			Creatures:      5,
			ResourceAmount: 100,
			CreatureHealth: 20,
			SpawnRadius:    32,
		},
		Journal:      Journal{Enabled: true},
		IndexBackend: "sqlite",
	}
}

// Load reads a yaml file over Defaults; keys absent from the file keep
// their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// LoadOrDefault is Load, but an empty path yields Defaults.
func LoadOrDefault(path string) (Tuning, error) {
	if path == "" {
		return Defaults(), nil
	}
	return Load(path)
}

func (t Tuning) Validate() error {
	if t.TickRateHz < 0 {
		return fmt.Errorf("tick_rate_hz must be >= 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.ArchiveKeep < 0 {
		return fmt.Errorf("archive_keep must be >= 0")
	}
	switch t.WAL.Sync {
	case "always", "batch":
	default:
		return fmt.Errorf("wal.sync must be always or batch, got %q", t.WAL.Sync)
	}
	switch t.IndexBackend {
	case "sqlite", "none":
	default:
		return fmt.Errorf("index_backend must be sqlite or none, got %q", t.IndexBackend)
	}
	g := t.Genesis
	if g.Resources < 0 || g.Creatures < 0 || g.SpawnRadius < 0 {
		return fmt.Errorf("genesis counts and spawn_radius must be >= 0")
	}
	return nil
}

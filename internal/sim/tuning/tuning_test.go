package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := "snapshot_every_ticks: 50\nwal:\n  sync: batch\ngenesis:\n  resources: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.SnapshotEveryTicks != 50 || tu.WAL.Sync != "batch" || tu.Genesis.Resources != 3 {
		t.Fatalf("loaded=%+v", tu)
	}
	if tu.Genesis.Creatures != 5 || tu.Genesis.ResourceAmount != 100 || tu.IndexBackend != "sqlite" {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoad_RejectsBadSyncPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("wal:\n  sync: sometimes\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "wal.sync") {
		t.Fatalf("expected wal.sync error, got %v", err)
	}
}

func TestLoadOrDefault_Empty(t *testing.T) {
	tu, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu != Defaults() {
		t.Fatalf("got %+v want defaults", tu)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SEEYUJ_DATA_DIR", "/srv/sim")
	t.Setenv("SEEYUJ_TPS", "20")
	t.Setenv("SEEYUJ_INDEX_BACKEND", "none")
	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if e.DataDir != "/srv/sim" || e.LogLevel != "info" || e.AutosaveTicks != 100 {
		t.Fatalf("env=%+v", e)
	}
	tu := e.Apply(Defaults())
	if tu.TickRateHz != 20 || tu.IndexBackend != "none" || tu.SnapshotEveryTicks != 100 {
		t.Fatalf("applied=%+v", tu)
	}
}

func TestLoadEnv_BadLevel(t *testing.T) {
	t.Setenv("SEEYUJ_LOG_LEVEL", "loud")
	if _, err := LoadEnv(); err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestLoadEnv_Mirror(t *testing.T) {
	e, err := LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if e.Mirror.Enabled() {
		t.Fatalf("mirror enabled without endpoint")
	}

	t.Setenv("SEEYUJ_MIRROR_ENDPOINT", "https://r2.example")
	t.Setenv("SEEYUJ_MIRROR_BUCKET", "sims")
	t.Setenv("SEEYUJ_MIRROR_PREFIX", "prod")
	e, err = LoadEnv()
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	if !e.Mirror.Enabled() || e.Mirror.Bucket != "sims" || e.Mirror.Region != "auto" || e.Mirror.Queue != 64 {
		t.Fatalf("mirror=%+v", e.Mirror)
	}
}

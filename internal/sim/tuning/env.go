package tuning

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds the SEEYUJ_* process environment.
type Env struct {
	DataDir         string `env:"SEEYUJ_DATA_DIR" envDefault:"./data"`
	LogLevel        string `env:"SEEYUJ_LOG_LEVEL" envDefault:"info"`
	TPS             int    `env:"SEEYUJ_TPS" envDefault:"0"`
	AutosaveTicks   int    `env:"SEEYUJ_AUTOSAVE_TICKS" envDefault:"100"`
	IndexBackend    string `env:"SEEYUJ_INDEX_BACKEND"`
	EnableAdminHTTP bool   `env:"SEEYUJ_ENABLE_ADMIN_HTTP" envDefault:"false"`

	Mirror MirrorEnv `envPrefix:"SEEYUJ_MIRROR_"`
}

// MirrorEnv configures the off-site archive mirror. It is off unless an
// endpoint is set.
type MirrorEnv struct {
	Endpoint        string `env:"ENDPOINT"`
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION" envDefault:"auto"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Prefix          string `env:"PREFIX"`
	Queue           int    `env:"QUEUE" envDefault:"64"`
}

func (m MirrorEnv) Enabled() bool { return m.Endpoint != "" }

// LoadEnv loads configuration from environment variables.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	switch e.LogLevel {
	case "info", "debug", "quiet":
	default:
		return e, fmt.Errorf("parse env: SEEYUJ_LOG_LEVEL must be info, debug or quiet, got %q", e.LogLevel)
	}
	if e.TPS < 0 || e.AutosaveTicks < 0 {
		return e, fmt.Errorf("parse env: SEEYUJ_TPS and SEEYUJ_AUTOSAVE_TICKS must be >= 0")
	}
	return e, nil
}

// Apply overlays environment settings that have a tuning counterpart.
func (e Env) Apply(t Tuning) Tuning {
	if e.TPS > 0 {
		t.TickRateHz = e.TPS
	}
	if e.AutosaveTicks > 0 {
		t.SnapshotEveryTicks = e.AutosaveTicks
	}
	if e.IndexBackend != "" {
		t.IndexBackend = e.IndexBackend
	}
	return t
}

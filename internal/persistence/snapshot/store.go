package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"seeyuj.sim/internal/persistence/fsutil"
)

const (
	SnapshotFile = "snapshot.json"
	MetaFile     = "meta.json"
)

// ErrNoSnapshot is returned by Load for a world that was never saved.
var ErrNoSnapshot = errors.New("no snapshot")

// Store persists the snapshot and meta of one world directory.
type Store struct {
	dir string
}

func NewStore(worldDir string) *Store { return &Store{dir: worldDir} }

func (s *Store) Dir() string          { return s.dir }
func (s *Store) SnapshotPath() string { return filepath.Join(s.dir, SnapshotFile) }
func (s *Store) MetaPath() string     { return filepath.Join(s.dir, MetaFile) }

func (s *Store) Exists() bool { return fsutil.Exists(s.SnapshotPath()) }

// Save writes snapshot.json then meta.json, each atomically. The cursor in
// snapshot.json is authoritative, so a crash between the two writes loses
// nothing.
func (s *Store) Save(snap SnapshotV2) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	if snap.Meta.WorldID == "" {
		return fmt.Errorf("snapshot save: empty world id")
	}
	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot save: encode: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.SnapshotPath(), body, 0o644); err != nil {
		return err
	}
	mb, err := json.MarshalIndent(snap.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot save: encode meta: %w", err)
	}
	return fsutil.WriteFileAtomic(s.MetaPath(), mb, 0o644)
}

// Load returns the last durably saved snapshot with its meta migrated to the
// current format.
func (s *Store) Load() (SnapshotV2, error) {
	var snap SnapshotV2
	b, err := os.ReadFile(s.SnapshotPath())
	if errors.Is(err, os.ErrNotExist) {
		return snap, ErrNoSnapshot
	}
	if err != nil {
		return snap, &fsutil.IOError{Op: "read", Path: s.SnapshotPath(), Err: err}
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("decode %s: %w", s.SnapshotPath(), err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version: %d", snap.Header.Version)
	}
	snap.Meta = MigrateMeta(snap.Meta)
	if snap.Meta.WorldID == "" {
		snap.Meta.WorldID = snap.Header.WorldID
	}
	return snap, nil
}

// LoadMeta reads meta.json without parsing the full snapshot. It falls back
// to the snapshot when meta.json is missing or unreadable.
func (s *Store) LoadMeta() (MetaV2, error) {
	b, err := os.ReadFile(s.MetaPath())
	if err == nil {
		var m MetaV2
		if jerr := json.Unmarshal(b, &m); jerr == nil && m.WorldID != "" {
			return MigrateMeta(m), nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return MetaV2{}, &fsutil.IOError{Op: "read", Path: s.MetaPath(), Err: err}
	}
	snap, err := s.Load()
	if err != nil {
		return MetaV2{}, err
	}
	return snap.Meta, nil
}

// MigrateMeta upgrades meta written before format 2, which lacked
// created_tick and sim_time.
func MigrateMeta(m MetaV2) MetaV2 {
	if m.FormatVersion >= Version {
		return m
	}
	if m.SimTime == 0 {
		m.SimTime = m.CurrentTick
	}
	if m.SnapshotTick == 0 {
		m.SnapshotTick = m.CurrentTick
	}
	m.FormatVersion = Version
	return m
}

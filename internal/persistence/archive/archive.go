package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"seeyuj.sim/internal/persistence/fsutil"
	"seeyuj.sim/internal/persistence/snapshot"
)

const (
	Dir    = "archives"
	suffix = ".snap.zst"
)

// MilestoneMeta sits next to a milestone copy.
type MilestoneMeta struct {
	Milestone   int    `json:"milestone"`
	Tick        uint64 `json:"tick"`
	WorldID     string `json:"world_id"`
	Seed        uint64 `json:"seed"`
	LastEventID uint64 `json:"last_event_id"`
	Snapshot    string `json:"snapshot"`
	CreatedAt   string `json:"created_at"`
}

// Entry is one rolling archive file.
type Entry struct {
	Tick uint64
	Path string
}

// Archiver writes compressed copies of periodic snapshots under
// worldDir/archives. The newest Keep files are retained; snapshots on a
// milestone tick are also copied into archives/milestone_<NNN>/ and never
// pruned.
type Archiver struct {
	worldDir       string
	keep           int
	milestoneEvery uint64
	now            func() time.Time
}

func New(worldDir string, keep int, milestoneEvery uint64) *Archiver {
	return &Archiver{worldDir: worldDir, keep: keep, milestoneEvery: milestoneEvery, now: time.Now}
}

func Path(worldDir string, tick uint64) string {
	return filepath.Join(worldDir, Dir, fmt.Sprintf("%d%s", tick, suffix))
}

// Archive writes snap and applies retention. It returns the rolling archive path.
func (a *Archiver) Archive(snap snapshot.SnapshotV2) (string, error) {
	dst := Path(a.worldDir, snap.Tick)
	if err := snapshot.WriteArchive(dst, snap); err != nil {
		return "", err
	}
	if a.milestoneEvery > 0 && snap.Tick > 0 && snap.Tick%a.milestoneEvery == 0 {
		if _, err := a.milestone(dst, snap); err != nil {
			return dst, err
		}
	}
	if _, err := a.Prune(); err != nil {
		return dst, err
	}
	return dst, nil
}

func (a *Archiver) milestone(src string, snap snapshot.SnapshotV2) (string, error) {
	n := int(snap.Tick / a.milestoneEvery)
	dir := filepath.Join(a.worldDir, Dir, fmt.Sprintf("milestone_%03d", n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	meta := MilestoneMeta{
		Milestone:   n,
		Tick:        snap.Tick,
		WorldID:     snap.Meta.WorldID,
		Seed:        snap.Meta.Seed,
		LastEventID: snap.Meta.LastEventID,
		Snapshot:    filepath.Base(dst),
		CreatedAt:   a.now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = fsutil.WriteFileAtomic(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// Prune removes the oldest rolling archives beyond Keep. Keep <= 0 keeps all.
func (a *Archiver) Prune() (int, error) {
	if a.keep <= 0 {
		return 0, nil
	}
	entries, err := List(a.worldDir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for len(entries) > a.keep {
		if err := os.Remove(entries[0].Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, err
		}
		entries = entries[1:]
		removed++
	}
	return removed, nil
}

// List returns rolling archives ordered by tick.
func List(worldDir string) ([]Entry, error) {
	ents, err := os.ReadDir(filepath.Join(worldDir, Dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, suffix), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Entry{Tick: tick, Path: filepath.Join(worldDir, Dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}

// Latest returns the newest archive at or below maxTick.
func Latest(worldDir string, maxTick uint64) (Entry, bool, error) {
	entries, err := List(worldDir)
	if err != nil {
		return Entry{}, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Tick <= maxTick {
			return entries[i], true, nil
		}
	}
	return Entry{}, false, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	if err := out.Sync(); err != nil {
		return err
	}
	return out.Close()
}

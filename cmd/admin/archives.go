package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"seeyuj.sim/internal/persistence/archive"
	"seeyuj.sim/internal/persistence/snapshot"
	"seeyuj.sim/internal/sim/world"
)

type archiveRow struct {
	Tick    uint64 `json:"tick"`
	Path    string `json:"path"`
	WorldID string `json:"world_id"`
	Version int    `json:"version"`
	Bytes   int64  `json:"bytes"`
}

func archivesCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("archives", flag.ContinueOnError)
	wf := addWorldFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := wf.require()
	if err != nil {
		return err
	}
	eng, err := wf.engine()
	if err != nil {
		return err
	}
	entries, err := archive.List(eng.WorldDir(id))
	if err != nil {
		return err
	}
	rows := make([]archiveRow, 0, len(entries))
	for _, e := range entries {
		h, err := snapshot.ReadArchiveHeader(e.Path)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Path, err)
		}
		row := archiveRow{Tick: e.Tick, Path: e.Path, WorldID: h.WorldID, Version: h.Version}
		if fi, err := os.Stat(e.Path); err == nil {
			row.Bytes = fi.Size()
		}
		rows = append(rows, row)
	}
	return writeJSONLines(out, rows)
}

func dumpCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	wf := addWorldFlags(fs)
	from := fs.String("archive", "", "dump an archive instead of the live state: a tick (newest archive at or before it) or a file path")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := wf.require()
	if err != nil {
		return err
	}
	eng, err := wf.engine()
	if err != nil {
		return err
	}

	var w *world.World
	if *from == "" {
		w, _, err = eng.Inspect(context.Background(), id)
	} else {
		w, err = loadArchive(eng.WorldDir(id), id, strings.TrimSpace(*from))
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(dump{Meta: w.Meta(), Digest: w.StateDigest(), Zones: w.Zones(), Entities: w.Entities()})
}

// loadArchive resolves ref as a tick or a path and rebuilds the archived world.
func loadArchive(worldDir, id, ref string) (*world.World, error) {
	path := ref
	if tick, err := strconv.ParseUint(ref, 10, 64); err == nil {
		e, ok, err := archive.Latest(worldDir, tick)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("no archive of %s at or before tick %d", id, tick)
		}
		path = e.Path
	}
	snap, err := snapshot.ReadArchive(path)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", path, err)
	}
	if snap.Header.WorldID != id {
		return nil, fmt.Errorf("archive %s belongs to %q, not %q", path, snap.Header.WorldID, id)
	}
	return world.FromSnapshot(snap)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"seeyuj.sim/internal/persistence/indexdb"
)

// dbCmd queries the sqlite read model. It may lag the event log.
func dbCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("db", flag.ContinueOnError)
	wf := addWorldFlags(fs)
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	fromTick := fs.Uint64("from_tick", 0, "first tick (events, ticks)")
	entity := fs.Uint64("entity", 0, "entity id (entity)")
	limit := fs.Int("limit", 20, "result limit")
	if err := parse(fs, args); err != nil {
		return err
	}

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		id, err := wf.require()
		if err != nil {
			return fmt.Errorf("%w (or -db)", err)
		}
		path = indexdb.Path(filepath.Join(*wf.dataDir, "worlds", id))
	}
	r, err := indexdb.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer r.Close()

	ctx := context.Background()
	switch q {
	case "snapshots":
		rows, err := r.Snapshots(ctx, *limit)
		if err != nil {
			return err
		}
		return writeJSONLines(out, rows)
	case "ticks":
		rows, err := r.Ticks(ctx, *fromTick, *limit)
		if err != nil {
			return err
		}
		return writeJSONLines(out, rows)
	case "events":
		rows, err := r.Events(ctx, *fromTick, *limit)
		if err != nil {
			return err
		}
		return writeJSONLines(out, rows)
	case "entity":
		if *entity == 0 {
			return fmt.Errorf("%w: missing -entity", errUsage)
		}
		rows, err := r.EntityEvents(ctx, *entity, *limit)
		if err != nil {
			return err
		}
		return writeJSONLines(out, rows)
	case "audits":
		rows, err := r.Audits(ctx, *limit)
		if err != nil {
			return err
		}
		return writeJSONLines(out, rows)
	case "last_event_id":
		id, err := r.LastEventID(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id)
		return nil
	default:
		return fmt.Errorf("%w: unknown query %q (snapshots|ticks|events|entity|audits|last_event_id)", errUsage, q)
	}
}

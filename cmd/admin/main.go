package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"seeyuj.sim/internal/engine"
	persistlog "seeyuj.sim/internal/persistence/log"
	"seeyuj.sim/internal/sim/tuning"
	"seeyuj.sim/internal/sim/world"
)

// errUsage marks flag problems; main exits 2 for them.
var errUsage = errors.New("usage")

type command func(args []string, out io.Writer) error

var commands = map[string]command{
	"list":     listCmd,
	"status":   statusCmd,
	"events":   eventsCmd,
	"entities": entitiesCmd,
	"entity":   entityCmd,
	"zones":    zonesCmd,
	"dump":     dumpCmd,
	"archives": archivesCmd,
	"audit":    auditCmd,
	"truncate": truncateCmd,
	"db":       dbCmd,
	"state":    stateCmd,
	"snapshot": snapshotCmd,
}

func main() {
	name := "list"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintln(os.Stderr, "usage: admin list|status|events|entities|entity|zones|dump|archives|audit|truncate|db|state|snapshot [flags]")
		os.Exit(2)
	}
	if err := cmd(args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type worldFlags struct {
	dataDir *string
	worldID *string
}

func addWorldFlags(fs *flag.FlagSet) worldFlags {
	def := "./data"
	if env, err := tuning.LoadEnv(); err == nil {
		def = env.DataDir
	}
	return worldFlags{
		dataDir: fs.String("data", def, "runtime data directory"),
		worldID: fs.String("world", "", "world id"),
	}
}

func (f worldFlags) require() (string, error) {
	id := strings.TrimSpace(*f.worldID)
	if id == "" {
		return "", fmt.Errorf("%w: missing -world", errUsage)
	}
	return id, nil
}

// engine opens the data dir for offline inspection. The index is never
// written from here.
func (f worldFlags) engine() (*engine.Engine, error) {
	tu := tuning.Defaults()
	tu.IndexBackend = "none"
	return engine.Open(engine.Config{
		DataDir: *f.dataDir,
		Tuning:  tu,
		Logger:  log.New(os.Stderr, "[admin] ", log.LstdFlags),
	})
}

func parse(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func writeJSONLines[T any](out io.Writer, rows []T) error {
	enc := json.NewEncoder(out)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func listCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	wf := addWorldFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	eng, err := wf.engine()
	if err != nil {
		return err
	}
	ids, err := eng.ListWorlds()
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}

func statusCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
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
	st, err := eng.Status(id)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}

func eventsCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	wf := addWorldFlags(fs)
	fromTick := fs.Uint64("from_tick", 0, "first tick (inclusive)")
	count := fs.Int("count", 100, "max events (0 = all)")
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
	evs, err := eng.ListEvents(id, *fromTick, *count)
	if err != nil {
		return err
	}
	return writeJSONLines(out, evs)
}

func inspect(args []string, name string, extra func(fs *flag.FlagSet)) (*world.World, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	wf := addWorldFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	id, err := wf.require()
	if err != nil {
		return nil, err
	}
	eng, err := wf.engine()
	if err != nil {
		return nil, err
	}
	w, _, err := eng.Inspect(context.Background(), id)
	return w, err
}

func entitiesCmd(args []string, out io.Writer) error {
	var kind *string
	w, err := inspect(args, "entities", func(fs *flag.FlagSet) {
		kind = fs.String("kind", "", "filter by kind (creature, resource, ...)")
	})
	if err != nil {
		return err
	}
	var want *world.EntityKind
	if k := strings.TrimSpace(*kind); k != "" {
		pk, err := world.ParseEntityKind(k)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		want = &pk
	}
	var rows []world.Entity
	for _, e := range w.Entities() {
		if want != nil && e.Kind != *want {
			continue
		}
		rows = append(rows, e)
	}
	return writeJSONLines(out, rows)
}

func entityCmd(args []string, out io.Writer) error {
	var idFlag *string
	w, err := inspect(args, "entity", func(fs *flag.FlagSet) {
		idFlag = fs.String("id", "", "entity id")
	})
	if err != nil {
		return err
	}
	n, perr := strconv.ParseUint(strings.TrimSpace(*idFlag), 10, 64)
	if perr != nil {
		return fmt.Errorf("%w: bad -id %q", errUsage, *idFlag)
	}
	e, ok := w.Entity(world.EntityID(n))
	if !ok {
		return fmt.Errorf("entity %d not found at tick %d", n, w.CurrentTick())
	}
	return writeJSONLines(out, []world.Entity{e})
}

func zonesCmd(args []string, out io.Writer) error {
	w, err := inspect(args, "zones", nil)
	if err != nil {
		return err
	}
	return writeJSONLines(out, w.Zones())
}

type dump struct {
	Meta     world.Meta     `json:"meta"`
	Digest   string         `json:"digest"`
	Zones    []world.Zone   `json:"zones"`
	Entities []world.Entity `json:"entities"`
}

func auditCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	wf := addWorldFlags(fs)
	action := fs.String("action", "", "filter by action (e.g. WAL_TAIL_DISCARDED)")
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
	enc := json.NewEncoder(out)
	return persistlog.ReadAudit(eng.WorldDir(id), func(e world.AuditEntry) error {
		if *action != "" && e.Action != *action {
			return nil
		}
		return enc.Encode(e)
	})
}

func truncateCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("truncate", flag.ContinueOnError)
	wf := addWorldFlags(fs)
	keep := fs.Int64("keep_through", -1, "keep events with id <= this value")
	yes := fs.Bool("yes", false, "confirm; records after keep_through are discarded")
	if err := parse(fs, args); err != nil {
		return err
	}
	id, err := wf.require()
	if err != nil {
		return err
	}
	if *keep < 0 {
		return fmt.Errorf("%w: missing -keep_through", errUsage)
	}
	if !*yes {
		return fmt.Errorf("%w: truncation discards history; pass -yes", errUsage)
	}
	eng, err := wf.engine()
	if err != nil {
		return err
	}
	kept, err := eng.TruncateLog(id, uint64(*keep))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "truncate ok: world=%s keep_through=%d kept=%d\n", id, *keep, kept)
	return nil
}

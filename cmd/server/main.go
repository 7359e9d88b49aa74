package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"seeyuj.sim/internal/engine"
	"seeyuj.sim/internal/persistence/r2s3"
	"seeyuj.sim/internal/sim/tuning"
	"seeyuj.sim/internal/sim/world"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "create":
		createCmd(os.Args[2:])
	case "run":
		runCmd(os.Args[2:])
	case "list":
		listCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: server create|run|list [flags]")
}

// common holds the flags every subcommand shares. Defaults come from the
// SEEYUJ_* environment.
type common struct {
	dataDir    *string
	tuningPath *string
	logLevel   *string
	disableDB  *bool
	env        tuning.Env

	mirror *r2s3.Mirror
}

func addCommon(fs *flag.FlagSet) *common {
	env, err := tuning.LoadEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return &common{
		env:        env,
		dataDir:    fs.String("data", env.DataDir, "runtime data directory"),
		tuningPath: fs.String("tuning", "", "path to tuning.yaml (optional; defaults apply)"),
		logLevel:   fs.String("log_level", env.LogLevel, "info, debug or quiet"),
		disableDB:  fs.Bool("disable_db", false, "disable the sqlite index"),
	}
}

func (c *common) logger() *log.Logger {
	var out io.Writer = os.Stdout
	if *c.logLevel == "quiet" {
		out = io.Discard
	}
	return log.New(out, "[server] ", log.LstdFlags|log.Lmicroseconds)
}

func (c *common) open(logger *log.Logger, finalSave bool) *engine.Engine {
	tune, err := tuning.LoadOrDefault(strings.TrimSpace(*c.tuningPath))
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	tune = c.env.Apply(tune)
	tune.IndexBackend = resolveIndexBackend(tune.IndexBackend, *c.disableDB)
	cfg := engine.Config{
		DataDir:   *c.dataDir,
		Tuning:    tune,
		Logger:    logger,
		Debug:     *c.logLevel == "debug",
		FinalSave: finalSave,
	}
	if m := c.env.Mirror; m.Enabled() {
		client, err := r2s3.New(r2s3.ClientConfig{
			Endpoint:        m.Endpoint,
			Bucket:          m.Bucket,
			Region:          m.Region,
			AccessKeyID:     m.AccessKeyID,
			SecretAccessKey: m.SecretAccessKey,
		})
		if err != nil {
			logger.Fatalf("archive mirror: %v", err)
		}
		c.mirror = r2s3.NewMirror(client, *c.dataDir, m.Prefix, m.Queue, logger)
		cfg.Mirror = c.mirror
		logger.Printf("archive mirror enabled: bucket=%s prefix=%q", m.Bucket, m.Prefix)
	}
	eng, err := engine.Open(cfg)
	if err != nil {
		logger.Fatalf("open engine: %v", err)
	}
	return eng
}

func createCmd(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	c := addCommon(fs)
	name := fs.String("name", "world", "world name")
	seed := fs.Uint64("seed", 0, "world seed (required)")
	resources := fs.Int("resources", -1, "resource entities at genesis (default from tuning)")
	creatures := fs.Int("creatures", -1, "creature entities at genesis (default from tuning)")
	_ = fs.Parse(args)

	seen := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	if !seen["seed"] {
		fmt.Fprintln(os.Stderr, "missing -seed")
		os.Exit(2)
	}

	logger := c.logger()
	eng := c.open(logger, false)
	p := engine.CreateParams{Name: *name, Seed: *seed}
	if *resources >= 0 || *creatures >= 0 {
		g := eng.Tuning().Genesis
		cfg := world.GenesisConfig{
			Resources:      g.Resources,
			Creatures:      g.Creatures,
			ResourceAmount: g.ResourceAmount,
			CreatureHealth: g.CreatureHealth,
			SpawnRadius:    g.SpawnRadius,
		}
		if *resources >= 0 {
			cfg.Resources = *resources
		}
		if *creatures >= 0 {
			cfg.Creatures = *creatures
		}
		p.Genesis = &cfg
	}
	id, err := eng.CreateWorld(context.Background(), p)
	if err != nil {
		logger.Fatalf("create: %v", err)
	}
	fmt.Println(id)
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	c := addCommon(fs)
	_ = fs.Parse(args)

	logger := c.logger()
	eng := c.open(logger, false)
	ids, err := eng.ListWorlds()
	if err != nil {
		logger.Fatalf("list: %v", err)
	}
	for _, id := range ids {
		st, err := eng.Status(id)
		if err != nil {
			fmt.Printf("%s\terror=%v\n", id, err)
			continue
		}
		fmt.Printf("%s\tname=%s\ttick=%d\tlast_event_id=%d\tsnapshot_tick=%d\n",
			id, st.Name, st.CurrentTick, st.LastEventID, st.SnapshotTick)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

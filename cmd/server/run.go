package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"seeyuj.sim/internal/engine"
	"seeyuj.sim/internal/protocol"
	"seeyuj.sim/internal/sim/world"
	"seeyuj.sim/internal/transport/observer"
)

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	c := addCommon(fs)
	worldID := fs.String("world", "", "world id (required)")
	ticks := fs.Uint64("ticks", 0, "ticks to run (0 = until SIGINT/SIGTERM)")
	saveEvery := fs.Uint64("save_every", 0, "snapshot every n ticks (0 = tuning snapshot_every_ticks / SEEYUJ_AUTOSAVE_TICKS)")
	tps := fs.Int("tps", 0, "ticks per second (0 = tuning tick_rate_hz / SEEYUJ_TPS; unpaced when all are 0)")
	schedulePath := fs.String("schedule", "", "JSON command schedule (optional)")
	addr := fs.String("addr", "", "http listen address for health, metrics and admin (empty disables)")
	enableAdmin := fs.Bool("admin", c.env.EnableAdminHTTP, "serve loopback-only /admin/v1 endpoints")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	logger := c.logger()
	eng := c.open(logger, true)

	// Reject a bad schedule before touching the world.
	var sched []world.ScheduledCommand
	if p := strings.TrimSpace(*schedulePath); p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			logger.Fatalf("read schedule: %v", err)
		}
		msg, err := protocol.DecodeSchedule(raw)
		if err != nil {
			logger.Fatalf("schedule %s: %v", p, err)
		}
		if msg.WorldID != "" && msg.WorldID != *worldID {
			logger.Fatalf("schedule is for %s, not %s", msg.WorldID, *worldID)
		}
		sched, err = world.ScheduleFromMsg(msg)
		if err != nil {
			logger.Fatalf("schedule %s: %v", p, err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	sess, err := eng.LoadWorld(ctx, *worldID)
	if err != nil {
		logger.Fatalf("load world: %v", err)
	}
	rec := sess.Recovered()
	logger.Printf("loaded %s at tick=%d (snapshot tick=%d, replayed=%d)", *worldID, sess.CurrentTick(), rec.SnapshotTick, rec.Replayed)

	var srv *http.Server
	if strings.TrimSpace(*addr) != "" {
		obs := observer.NewServer(sess, logger)
		sess.AddTickSink(obs)
		srv = &http.Server{
			Addr:              *addr,
			Handler:           newMux(eng, sess, obs, c.mirror, *enableAdmin, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("listening on %s", *addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("ListenAndServe: %v", err)
				cancel()
			}
		}()
	}

	params := engine.RunParams{
		Schedule:     sched,
		TickBudget:   *ticks,
		SaveInterval: *saveEvery,
		TPS:          *tps,
	}
	if params.SaveInterval == 0 {
		params.SaveInterval = uint64(eng.Tuning().SnapshotEveryTicks)
	}
	if params.TPS == 0 {
		params.TPS = eng.Tuning().TickRateHz
	}
	res, runErr := sess.Run(ctx, params)
	if runErr != nil {
		logger.Printf("run stopped: %v", runErr)
	}
	logger.Printf("ran ticks %d..%d (%d ticks, %d rejected, %d saves) digest=%s",
		res.StartTick, res.EndTick, res.Ticks, res.Rejected, res.Saves, res.Digest)

	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}
	// Final save happens here unless the session failed.
	closeErr := sess.Close()
	// After Close so the final snapshot's archive is mirrored too.
	c.mirror.Close()
	if closeErr != nil {
		logger.Fatalf("close: %v", closeErr)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"seeyuj.sim/internal/engine"
	"seeyuj.sim/internal/sim/tuning"
	"seeyuj.sim/internal/sim/world"
)

// seedWorld creates world_5 under a temp data dir and commits a few ticks.
func seedWorld(t *testing.T, backend string) string {
	t.Helper()
	dataDir := t.TempDir()
	tu := tuning.Defaults()
	tu.IndexBackend = backend
	eng, err := engine.Open(engine.Config{DataDir: dataDir, Tuning: tu})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id, err := eng.CreateWorld(context.Background(), engine.CreateParams{Name: "admin", Seed: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s, err := eng.LoadWorld(context.Background(), id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Step(nil); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	if err := s.Index().Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return dataDir
}

func run(t *testing.T, cmd command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := cmd(args, &out)
	return out.String(), err
}

func TestListAndStatus(t *testing.T) {
	data := seedWorld(t, "none")
	out, err := run(t, listCmd, "-data", data)
	if err != nil || strings.TrimSpace(out) != "world_5" {
		t.Fatalf("list: %q err=%v", out, err)
	}
	out, err = run(t, statusCmd, "-data", data, "-world", "world_5")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st engine.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.CurrentTick != 4 || st.Name != "admin" {
		t.Fatalf("status: %+v", st)
	}
}

func TestMissingWorldIsUsage(t *testing.T) {
	data := seedWorld(t, "none")
	if _, err := run(t, statusCmd, "-data", data); !errors.Is(err, errUsage) {
		t.Fatalf("err=%v want usage", err)
	}
	if _, err := run(t, statusCmd, "-data", data, "-world", "world_404"); !errors.Is(err, engine.ErrWorldNotFound) {
		t.Fatalf("err=%v want not found", err)
	}
}

func TestEventsAndInspect(t *testing.T) {
	data := seedWorld(t, "none")
	out, err := run(t, eventsCmd, "-data", data, "-world", "world_5", "-from_tick", "1", "-count", "0")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if n := strings.Count(out, "\n"); n < 4 {
		t.Fatalf("events lines=%d want >= 4", n)
	}

	out, err = run(t, entitiesCmd, "-data", data, "-world", "world_5", "-kind", "creature")
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var e world.Entity
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		if e.Kind != world.KindCreature {
			t.Fatalf("kind filter leaked %v", e.Kind)
		}
	}
	if _, err := run(t, entitiesCmd, "-data", data, "-world", "world_5", "-kind", "dragon"); !errors.Is(err, errUsage) {
		t.Fatalf("bad kind err=%v", err)
	}

	out, err = run(t, dumpCmd, "-data", data, "-world", "world_5")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	var d dump
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode dump: %v", err)
	}
	if d.Meta.CurrentTick != 4 || d.Digest == "" || len(d.Entities) == 0 {
		t.Fatalf("dump: tick=%d digest=%q entities=%d", d.Meta.CurrentTick, d.Digest, len(d.Entities))
	}

	if _, err := run(t, entityCmd, "-data", data, "-world", "world_5", "-id", "99999"); err == nil {
		t.Fatalf("expected missing entity error")
	}
}

func TestTruncateRequiresConfirmation(t *testing.T) {
	data := seedWorld(t, "none")
	if _, err := run(t, truncateCmd, "-data", data, "-world", "world_5", "-keep_through", "3"); !errors.Is(err, errUsage) {
		t.Fatalf("err=%v want usage", err)
	}
	out, err := run(t, truncateCmd, "-data", data, "-world", "world_5", "-keep_through", "3", "-yes")
	if err != nil || !strings.Contains(out, "kept=3") {
		t.Fatalf("truncate: %q err=%v", out, err)
	}
	out, err = run(t, auditCmd, "-data", data, "-world", "world_5", "-action", "WAL_TRUNCATED")
	if err != nil || !strings.Contains(out, "WAL_TRUNCATED") {
		t.Fatalf("audit: %q err=%v", out, err)
	}
}

func TestDBQueries(t *testing.T) {
	data := seedWorld(t, "sqlite")
	out, err := run(t, dbCmd, "-data", data, "-world", "world_5", "ticks")
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 5 {
		t.Fatalf("ticks rows=%d want 5 (genesis + 4)", n)
	}
	out, err = run(t, dbCmd, "-data", data, "-world", "world_5", "snapshots")
	if err != nil || !strings.Contains(out, `"tick":0`) {
		t.Fatalf("snapshots: %q err=%v", out, err)
	}
	if _, err := run(t, dbCmd, "-data", data, "-world", "world_5", "chunks"); !errors.Is(err, errUsage) {
		t.Fatalf("unknown query err=%v", err)
	}
}

func TestStateAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/admin/v1/status" && r.Method == http.MethodGet:
			_, _ = rw.Write([]byte(`{"world_id":"world_5"}`))
		case r.URL.Path == "/admin/v1/snapshot" && r.Method == http.MethodPost:
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte(`{"ok":false}`))
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	out, err := run(t, stateCmd, "-url", srv.URL+"/")
	if err != nil || !strings.Contains(out, "world_5") {
		t.Fatalf("state: %q err=%v", out, err)
	}
	if _, err := run(t, snapshotCmd, "-url", srv.URL); err == nil {
		t.Fatalf("expected snapshot failure on 503")
	}
}

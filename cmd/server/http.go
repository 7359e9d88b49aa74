package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"strconv"

	"seeyuj.sim/internal/engine"
	"seeyuj.sim/internal/persistence/r2s3"
	"seeyuj.sim/internal/transport/observer"
	"seeyuj.sim/internal/transport/ws"
)

func newMux(eng *engine.Engine, sess *engine.Session, obs *observer.Server, mir *r2s3.Mirror, enableAdmin bool, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, sess.ID(), sess.Metrics(), obs.Subscribers(), mir.Stats())
	})

	if !enableAdmin {
		logger.Printf("admin endpoints disabled (SEEYUJ_ENABLE_ADMIN_HTTP=false)")
		return mux
	}
	// Local-only admin endpoints (do not affect simulation determinism).
	mux.HandleFunc("/admin/v1/status", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		writeJSON(rw, http.StatusOK, sess.Status())
	}))
	mux.HandleFunc("/admin/v1/events", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, _ := strconv.ParseUint(q.Get("from_tick"), 10, 64)
		count := 100
		if v, err := strconv.Atoi(q.Get("count")); err == nil && v > 0 {
			count = v
		}
		evs, err := eng.ListEvents(sess.ID(), from, count)
		if err != nil {
			writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, evs)
	}))
	mux.HandleFunc("/admin/v1/snapshot", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		res, err := sess.Save()
		if err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "tick": res.Tick, "last_event_id": res.LastEventID})
	}))
	mux.HandleFunc("/admin/v1/index/flush", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := sess.Index().Flush(r.Context()); err != nil {
			writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
	}))
	mux.HandleFunc("/admin/v1/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obs.WSHandler())
	mux.HandleFunc("/admin/v1/commands/ws", loopbackOnly(ws.NewServer(sess, logger).Handler()))

	mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
	mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
	return mux
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, worldID string, m engine.Metrics, observers int, ms r2s3.Stats) {
	fmt.Fprintf(rw, "# HELP seeyuj_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_world_tick gauge\n")
	fmt.Fprintf(rw, "seeyuj_world_tick{world=%q} %d\n", worldID, m.Tick)

	fmt.Fprintf(rw, "# HELP seeyuj_world_entities Current number of entities.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_world_entities gauge\n")
	fmt.Fprintf(rw, "seeyuj_world_entities{world=%q} %d\n", worldID, m.Entities)

	fmt.Fprintf(rw, "# HELP seeyuj_world_zones Current number of zones.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_world_zones gauge\n")
	fmt.Fprintf(rw, "seeyuj_world_zones{world=%q} %d\n", worldID, m.Zones)

	fmt.Fprintf(rw, "# HELP seeyuj_wal_last_event_id Last event id in the log.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_wal_last_event_id gauge\n")
	fmt.Fprintf(rw, "seeyuj_wal_last_event_id{world=%q} %d\n", worldID, m.LastEventID)

	fmt.Fprintf(rw, "# HELP seeyuj_wal_bytes Event log size in bytes.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_wal_bytes gauge\n")
	fmt.Fprintf(rw, "seeyuj_wal_bytes{world=%q} %d\n", worldID, m.LogBytes)

	fmt.Fprintf(rw, "# HELP seeyuj_world_step_ms Last tick duration in milliseconds, including the log append.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_world_step_ms gauge\n")
	fmt.Fprintf(rw, "seeyuj_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(rw, "# HELP seeyuj_ticks_since_snapshot Ticks committed since the last snapshot.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_ticks_since_snapshot gauge\n")
	fmt.Fprintf(rw, "seeyuj_ticks_since_snapshot{world=%q} %d\n", worldID, m.TicksSinceSave)

	fmt.Fprintf(rw, "# HELP seeyuj_observers Connected observer streams.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_observers gauge\n")
	fmt.Fprintf(rw, "seeyuj_observers{world=%q} %d\n", worldID, observers)

	fmt.Fprintf(rw, "# HELP seeyuj_index_queue_depth Index writer backlog.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "seeyuj_index_queue_depth{world=%q} %d\n", worldID, m.Index.QueueDepth)

	fmt.Fprintf(rw, "# HELP seeyuj_index_dropped_total Index requests dropped because the writer fell behind.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_index_dropped_total counter\n")
	fmt.Fprintf(rw, "seeyuj_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", m.Index.DropTickTotal)
	fmt.Fprintf(rw, "seeyuj_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "audit", m.Index.DropAuditTotal)
	fmt.Fprintf(rw, "seeyuj_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "snapshot", m.Index.DropSnapshotTotal)

	fmt.Fprintf(rw, "# HELP seeyuj_mirror_uploads_total Archive mirror uploads by result.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_mirror_uploads_total counter\n")
	fmt.Fprintf(rw, "seeyuj_mirror_uploads_total{result=%q} %d\n", "ok", ms.UploadedTotal)
	fmt.Fprintf(rw, "seeyuj_mirror_uploads_total{result=%q} %d\n", "failed", ms.FailedTotal)
	fmt.Fprintf(rw, "seeyuj_mirror_uploads_total{result=%q} %d\n", "dropped", ms.DroppedTotal)
	fmt.Fprintf(rw, "# HELP seeyuj_mirror_queue_depth Archive uploads waiting.\n")
	fmt.Fprintf(rw, "# TYPE seeyuj_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "seeyuj_mirror_queue_depth %d\n", ms.QueueDepth)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"chunkstream.ai/internal/persistence/indexdb"
	"chunkstream.ai/internal/sim/grid"
	"chunkstream.ai/internal/sim/world"
	"chunkstream.ai/internal/transport/observer"
)

type muxConfig struct {
	EnableAdmin bool
	Index       runtimeIndex
	Logger      *log.Logger
}

func newMux(w *world.World, cfg muxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		var idx *indexdb.Stats
		if cfg.Index != nil {
			st := cfg.Index.Stats()
			idx = &st
		}
		writeMetrics(rw, w.ID(), w.Metrics(), idx)
	})

	if !cfg.EnableAdmin {
		if cfg.Logger != nil {
			cfg.Logger.Printf("admin endpoints disabled (CS_ENABLE_ADMIN_HTTP=false)")
		}
		return mux
	}

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !observer.IsLoopbackRequest(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			State   world.StateView    `json:"state"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: w.ID(),
			Tick:    w.CurrentTick(),
			State:   w.State(),
			Metrics: w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/observer/move", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !observer.IsLoopbackRequest(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var body struct {
			Pos    []float64 `json:"pos"`
			Detach bool      `json:"detach"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
			http.Error(rw, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if !body.Detach && len(body.Pos) != 3 {
			http.Error(rw, "pos must have 3 components", http.StatusBadRequest)
			return
		}
		req := world.MoveRequest{Detach: body.Detach}
		if !body.Detach {
			req.Pos = mgl64.Vec3{body.Pos[0], body.Pos[1], body.Pos[2]}
			sc := w.Config().Stream
			if err := grid.CheckWorld(req.Pos, sc.EdgeLength, sc.ViewDistance); err != nil {
				http.Error(rw, err.Error(), http.StatusBadRequest)
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		res, err := w.RequestMove(ctx, req)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "result": res})
	})

	obsSrv := observer.NewServer(w, cfg.Logger)
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	return mux
}

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(out io.Writer, worldID string, m world.WorldMetrics, idx *indexdb.Stats) {
	gauge := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s gauge\n", name)
	}
	counter := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s counter\n", name)
	}
	s := m.Stream

	gauge("chunkstream_world_tick", "Current world tick.")
	fmt.Fprintf(out, "chunkstream_world_tick{world=%q} %d\n", worldID, m.Tick)

	gauge("chunkstream_observer_sessions", "Connected observer stream sessions.")
	fmt.Fprintf(out, "chunkstream_observer_sessions{world=%q} %d\n", worldID, m.Observers)

	gauge("chunkstream_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(out, "chunkstream_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	gauge("chunkstream_active_chunks", "Chunks in the active set.")
	fmt.Fprintf(out, "chunkstream_active_chunks{world=%q} %d\n", worldID, s.Active)

	gauge("chunkstream_known_cells", "Cells with recorded metadata.")
	fmt.Fprintf(out, "chunkstream_known_cells{world=%q} %d\n", worldID, s.Known)

	counter("chunkstream_stream_events_total", "Stream manager event counters.")
	for _, kv := range []struct {
		name string
		v    uint64
	}{
		{"crossings", s.Crossings},
		{"activations", s.Activations},
		{"reactivations", s.Reactivations},
		{"first_visits", s.FirstVisits},
		{"evictions", s.Evictions},
		{"locator_misses", s.LocatorMisses},
		{"violations", s.Violations},
	} {
		fmt.Fprintf(out, "chunkstream_stream_events_total{world=%q,event=%q} %d\n", worldID, kv.name, kv.v)
	}

	gauge("chunkstream_pool_free", "Pooled instances waiting for reuse per variant.")
	for _, p := range s.Pools {
		fmt.Fprintf(out, "chunkstream_pool_free{world=%q,variant=%q} %d\n", worldID, p.Name, p.Free)
	}
	counter("chunkstream_pool_created_total", "Instances created per variant.")
	for _, p := range s.Pools {
		fmt.Fprintf(out, "chunkstream_pool_created_total{world=%q,variant=%q} %d\n", worldID, p.Name, p.Created)
	}

	gauge("chunkstream_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(out, "chunkstream_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "move", m.QueueDepths.Move)
	fmt.Fprintf(out, "chunkstream_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "observer_join", m.QueueDepths.ObserverJoin)
	fmt.Fprintf(out, "chunkstream_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "observer_leave", m.QueueDepths.ObserverLeave)

	if idx == nil {
		return
	}
	gauge("chunkstream_index_queue_depth", "Index writer queue depth.")
	fmt.Fprintf(out, "chunkstream_index_queue_depth %d\n", idx.QueueDepth)
	counter("chunkstream_index_dropped_total", "Tick entries dropped because the index writer fell behind.")
	fmt.Fprintf(out, "chunkstream_index_dropped_total %d\n", idx.DropTickTotal)
	counter("chunkstream_index_write_errors_total", "Failed index transactions.")
	fmt.Fprintf(out, "chunkstream_index_write_errors_total %d\n", idx.WriteErrors)
}

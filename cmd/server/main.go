package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "chunkstream.ai/internal/persistence/log"
	"chunkstream.ai/internal/sim/pool"
	"chunkstream.ai/internal/sim/tuning"
	"chunkstream.ai/internal/sim/world"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		worldID     = flag.String("world", "", "world id (default: tuning world_id)")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml or tuning.toml (default: <configs>/tuning.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite chunk event index")
		changedOnly = flag.Bool("log_changed_only", false, "only write ticks with a cell crossing or move to the event log (breaks replay)")
		strict      = flag.Bool("strict", false, "panic on stream invariant violations (overrides tuning)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	if id := strings.TrimSpace(*worldID); id != "" {
		tune.WorldID = id
	}
	if *strict {
		tune.StrictInvariants = true
	}

	worldDir := filepath.Join(*dataDir, "worlds", tune.WorldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune.WorldID, tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	reg, err := pool.NewRegistry(tune.BuildVariants(), pool.WithLogger(logger))
	if err != nil {
		logger.Fatalf("chunk variants: %v", err)
	}

	tickLog := persistlog.NewTickLoggerWithOptions(worldDir, persistlog.TickLoggerOptions{ChangedOnly: *changedOnly})
	defer tickLog.Close()

	var sinks multiTickLogger
	sinks = append(sinks, tickLog)
	if idx != nil {
		sinks = append(sinks, idx)
	}
	w, err := world.New(world.ConfigFromTuning(tune), reg,
		world.WithLogger(logger),
		world.WithTickLogger(sinks),
	)
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	logger.Printf("world %s: edge=%v view_distance=%d variants=%v tick_rate=%dHz",
		tune.WorldID, tune.EdgeLength, tune.ViewDistance, tune.VariantNames(), tune.TickRateHz)

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := newMux(w, muxConfig{
		EnableAdmin: envBool("CS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		Index:       idx,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	cancel()
	<-worldDone
	w.Close()
	st := w.Metrics().Stream
	logger.Printf("world %s closed: known=%d evictions=%d activations=%d digest=%s",
		tune.WorldID, st.Known, st.Evictions, st.Activations, w.State().Digest)
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

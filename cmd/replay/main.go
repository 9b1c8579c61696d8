package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	persistlog "chunkstream.ai/internal/persistence/log"
	"chunkstream.ai/internal/sim/pool"
	"chunkstream.ai/internal/sim/tuning"
	"chunkstream.ai/internal/sim/world"
)

func main() {
	var (
		tuningPath = flag.String("tuning", "", "path to the tuning file the server ran with (default: <configs>/tuning.yaml)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		worldID    = flag.String("world", "", "world id (default: tuning world_id)")
		eventsDir  = flag.String("events", "", "events dir containing events-*.jsonl.zst (default: <data>/worlds/<world>/events)")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	if id := strings.TrimSpace(*worldID); id != "" {
		tune.WorldID = id
	}
	dir := strings.TrimSpace(*eventsDir)
	if dir == "" {
		dir = persistlog.EventsDir(filepath.Join(*dataDir, "worlds", tune.WorldID))
	}

	reg, err := pool.NewRegistry(tune.BuildVariants())
	if err != nil {
		fmt.Fprintln(os.Stderr, "chunk variants:", err)
		os.Exit(1)
	}
	w, err := world.New(world.ConfigFromTuning(tune), reg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	defer w.Close()

	rep, err := replayDir(w, dir, *fromTick, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: world=%s checked=%d ticks (last=%d) evictions=%d activations=%d known=%d digest=%s\n",
		tune.WorldID, rep.Checked, rep.LastTick, rep.Evicted, rep.Activated, rep.Known, rep.Digest)
}

package main

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	persistlog "chunkstream.ai/internal/persistence/log"
	"chunkstream.ai/internal/sim/pool"
	"chunkstream.ai/internal/sim/tuning"
	"chunkstream.ai/internal/sim/world"
)

func testTuning() tuning.Tuning {
	tune := tuning.Defaults()
	tune.ViewDistance = 2
	tune.Variants = []tuning.VariantSpec{{Name: "meadow", Slots: 3, PlacedChance: 40}, {Name: "rocks", Slots: 1, PlacedChance: 90}}
	tune.Walker.Speed = 30
	tune.Walker.Waypoints = [][]float64{{60, 0, 0}, {60, 0, 60}}
	tune.Walker.Loop = true
	return tune
}

func newWorld(t *testing.T, tune tuning.Tuning, opts ...world.Option) *world.World {
	t.Helper()
	reg, err := pool.NewRegistry(tune.BuildVariants())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	w, err := world.New(world.ConfigFromTuning(tune), reg, opts...)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func recordRun(t *testing.T, opts persistlog.TickLoggerOptions) (string, string) {
	t.Helper()
	worldDir := t.TempDir()
	logger := persistlog.NewTickLoggerWithOptions(worldDir, opts)
	w := newWorld(t, testTuning(), world.WithTickLogger(logger))

	var digest string
	for i := 0; i < 120; i++ {
		var moves []world.MoveRequest
		switch i {
		case 30:
			moves = []world.MoveRequest{{Pos: mgl64.Vec3{-40, 0, 25}}}
		case 70:
			moves = []world.MoveRequest{{Detach: true}}
		case 80:
			moves = []world.MoveRequest{{Pos: mgl64.Vec3{7, 0, 7}}}
		}
		_, digest = w.StepOnce(moves)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}
	return persistlog.EventsDir(worldDir), digest
}

func TestReplayMatchesRecordedRun(t *testing.T) {
	dir, want := recordRun(t, persistlog.TickLoggerOptions{})

	w := newWorld(t, testTuning())
	rep, err := replayDir(w, dir, 0, 0)
	if err != nil {
		t.Fatalf("replayDir: %v", err)
	}
	if rep.Checked != 120 || rep.LastTick != 119 || rep.Digest != want {
		t.Fatalf("report = %+v, want digest %s", rep, want)
	}
	if rep.Activated == 0 || rep.Evicted == 0 {
		t.Fatalf("walker never crossed cells: %+v", rep)
	}
}

func TestReplayStopsAtToTick(t *testing.T) {
	dir, _ := recordRun(t, persistlog.TickLoggerOptions{})

	w := newWorld(t, testTuning())
	rep, err := replayDir(w, dir, 10, 49)
	if err != nil {
		t.Fatalf("replayDir: %v", err)
	}
	if rep.LastTick != 49 || rep.Checked != 40 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestReplayDetectsDivergence(t *testing.T) {
	dir, _ := recordRun(t, persistlog.TickLoggerOptions{})

	tune := testTuning()
	tune.Seed++
	w := newWorld(t, tune)
	if _, err := replayDir(w, dir, 0, 0); err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}

func TestReplayRejectsChangedOnlyLog(t *testing.T) {
	dir, _ := recordRun(t, persistlog.TickLoggerOptions{ChangedOnly: true})

	w := newWorld(t, testTuning())
	if _, err := replayDir(w, dir, 0, 0); err == nil || !strings.Contains(err.Error(), "tick mismatch") {
		t.Fatalf("expected tick mismatch, got %v", err)
	}
}

func TestCheckEntry(t *testing.T) {
	prev := &world.TickLogEntry{Tick: 1, Active: 9, Known: 9}
	ok := world.TickLogEntry{Tick: 2, Changed: true, Active: 9, Known: 12,
		Evicted:   make([]world.RecordedChunkEvent, 3),
		Activated: make([]world.RecordedChunkEvent, 3)}
	if err := checkEntry(prev, ok); err != nil {
		t.Fatalf("checkEntry: %v", err)
	}
	bad := ok
	bad.Active = 10
	if err := checkEntry(prev, bad); err == nil {
		t.Fatalf("expected active mismatch")
	}
	quiet := world.TickLogEntry{Tick: 2, Active: 9, Known: 9, Evicted: make([]world.RecordedChunkEvent, 1)}
	if err := checkEntry(prev, quiet); err == nil {
		t.Fatalf("expected quiet tick error")
	}
	if err := checkEntry(nil, ok); err != nil {
		t.Fatalf("first entry: %v", err)
	}
}

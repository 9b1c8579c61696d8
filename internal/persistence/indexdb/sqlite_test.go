package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"chunkstream.ai/internal/sim/tuning"
	"chunkstream.ai/internal/sim/world"
)

func ev(x, z, variant int, slots []bool, first bool) world.RecordedChunkEvent {
	return world.RecordedChunkEvent{Cell: [2]int{x, z}, Variant: variant, Instance: "i", Slots: slots, FirstVisit: first}
}

func TestSQLiteIndexRecordsEventsAndCells(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertTuning("w1", tuning.Defaults()); err != nil {
		t.Fatalf("UpsertTuning: %v", err)
	}

	entries := []world.TickLogEntry{
		{Tick: 0, Changed: true, Active: 2, Known: 2, Digest: "a",
			Activated: []world.RecordedChunkEvent{ev(0, 0, 1, []bool{true, false}, true), ev(1, 0, 0, nil, true)}},
		{Tick: 1, Active: 2, Known: 2, Digest: "a"},
		{Tick: 2, Changed: true, Cell: [2]int{5, 0}, Active: 1, Known: 3, Digest: "b",
			Evicted:   []world.RecordedChunkEvent{ev(0, 0, 1, nil, false), ev(1, 0, 0, nil, false)},
			Activated: []world.RecordedChunkEvent{ev(5, 0, 0, []bool{false}, true)}},
		{Tick: 3, Changed: true, Active: 2, Known: 3, Digest: "b",
			Moves:     []world.RecordedMove{{Pos: [3]float64{0, 0, 0}}},
			Evicted:   []world.RecordedChunkEvent{ev(5, 0, 0, nil, false)},
			Activated: []world.RecordedChunkEvent{ev(0, 0, 1, []bool{true, false}, false)}},
	}
	for _, e := range entries {
		if err := idx.WriteTick(e); err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := idx.WriteTick(entries[0]); err != nil {
		t.Fatalf("WriteTick after close: %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	if v, ok, err := r.Meta(ctx, "world_id"); err != nil || !ok || v != "w1" {
		t.Fatalf("meta world_id = %q %v %v", v, ok, err)
	}
	if _, ok, err := r.Meta(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing meta: ok=%v err=%v", ok, err)
	}

	top, err := r.TopCells(ctx, 10)
	if err != nil {
		t.Fatalf("TopCells: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("cells = %+v", top)
	}
	if top[0].X != 0 || top[0].Z != 0 || top[0].Visits != 2 || top[0].FirstTick != 0 || top[0].LastTick != 3 {
		t.Fatalf("top cell = %+v", top[0])
	}
	if len(top[0].Slots) != 2 || !top[0].Slots[0] {
		t.Fatalf("slots = %v", top[0].Slots)
	}

	evs, err := r.CellEvents(ctx, 0, 0, 0)
	if err != nil {
		t.Fatalf("CellEvents: %v", err)
	}
	if len(evs) != 3 || evs[0].Tick != 3 || evs[0].Kind != "ACTIVATE" || evs[1].Kind != "EVICT" || !evs[2].FirstVisit {
		t.Fatalf("events = %+v", evs)
	}

	ticks, err := r.Ticks(ctx, 0, 0, 0)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if len(ticks) != 3 {
		t.Fatalf("quiet tick should not be indexed: %+v", ticks)
	}
	if ticks[1].Tick != 2 || ticks[1].X != 5 || ticks[1].Evicted != 2 || ticks[1].Activated != 1 {
		t.Fatalf("tick row = %+v", ticks[1])
	}
	if ticks[2].Moves != 1 {
		t.Fatalf("moves not recorded: %+v", ticks[2])
	}
}

func TestSQLiteIndexQueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{tick: world.TickLogEntry{Tick: 1, Changed: true}}

	_ = s.WriteTick(world.TickLogEntry{Tick: 2, Changed: true})
	_ = s.WriteTick(world.TickLogEntry{Tick: 3})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestOpenReaderMissingFile(t *testing.T) {
	if _, err := OpenReader(filepath.Join(t.TempDir(), "nope.sqlite")); err == nil {
		t.Fatalf("expected error for missing index")
	}
	if got := DefaultPath("data", "w"); got != filepath.Join("data", "worlds", "w", "index", "world.sqlite") {
		t.Fatalf("DefaultPath = %s", got)
	}
}

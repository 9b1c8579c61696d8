package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	persistlog "chunkstream.ai/internal/persistence/log"
	"chunkstream.ai/internal/sim/world"
)

// eventsCmd dumps tick log entries that touched a cell, straight from the
// compressed event files. It works without the sqlite index.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	cell := fs.String("cell", "", "cell filter x,z (optional)")
	fromTick := fs.Uint64("from_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, 0 = open)")
	changedOnly := fs.Bool("changed", true, "skip quiet ticks")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	f := tickFilter{From: *fromTick, To: *toTick, ChangedOnly: *changedOnly}
	if *cell != "" {
		c, err := parseCell(*cell)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -cell:", err)
			os.Exit(2)
		}
		f.Cell = &c
	}

	dir := persistlog.EventsDir(filepath.Join(*dataDir, "worlds", *worldID))
	var n int
	err := persistlog.ReadTicks(dir, func(e world.TickLogEntry) error {
		if f.match(e) {
			n++
			printJSON(e)
		}
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", n)
}

type tickFilter struct {
	From, To    uint64
	ChangedOnly bool
	Cell        *[2]int
}

func (f tickFilter) match(e world.TickLogEntry) bool {
	if e.Tick < f.From || (f.To != 0 && e.Tick > f.To) {
		return false
	}
	if f.ChangedOnly && !e.Changed && len(e.Moves) == 0 {
		return false
	}
	if f.Cell == nil {
		return true
	}
	c := *f.Cell
	if e.Cell == c {
		return true
	}
	for _, ev := range e.Evicted {
		if ev.Cell == c {
			return true
		}
	}
	for _, ev := range e.Activated {
		if ev.Cell == c {
			return true
		}
	}
	return false
}

func parseCell(s string) ([2]int, error) {
	var c [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return c, fmt.Errorf("expected x,z")
	}
	for i := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return c, err
		}
		c[i] = n
	}
	return c, nil
}

func parseVec3(s string) ([3]float64, error) {
	var v [3]float64
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := range parts {
		n, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"chunkstream.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	cellX := fs.Int("x", 0, "cell x (cell query)")
	cellZ := fs.Int("z", 0, "cell z (cell query)")
	fromTick := fs.Uint64("from_tick", 0, "first tick (ticks query)")
	toTick := fs.Uint64("to_tick", 0, "last tick (ticks query, 0 = open)")
	_ = fs.Parse(args)

	q := "meta"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = indexdb.DefaultPath(*dataDir, *worldID)
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := runDBQuery(ctx, r, q, dbQuery{
		Limit: *limit,
		X:     *cellX,
		Z:     *cellZ,
		From:  *fromTick,
		To:    *toTick,
	}, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

type dbQuery struct {
	Limit int
	X, Z  int
	From  uint64
	To    uint64
}

func runDBQuery(ctx context.Context, r *indexdb.Reader, name string, q dbQuery, emit func(any)) error {
	switch name {
	case "meta":
		out := map[string]string{}
		for _, key := range []string{"schema_version", "world_id"} {
			v, ok, err := r.Meta(ctx, key)
			if err != nil {
				return err
			}
			if ok {
				out[key] = v
			}
		}
		emit(out)

	case "top":
		cells, err := r.TopCells(ctx, q.Limit)
		if err != nil {
			return err
		}
		for _, c := range cells {
			emit(c)
		}

	case "cell":
		evs, err := r.CellEvents(ctx, q.X, q.Z, q.Limit)
		if err != nil {
			return err
		}
		for _, e := range evs {
			emit(e)
		}

	case "ticks":
		rows, err := r.Ticks(ctx, q.From, q.To, q.Limit)
		if err != nil {
			return err
		}
		for _, t := range rows {
			emit(t)
		}

	default:
		return fmt.Errorf("unknown query (want meta|top|cell|ticks)")
	}
	return nil
}

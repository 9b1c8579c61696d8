package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
)

// Reader runs read-only queries against an index written by SQLiteIndex.
type Reader struct {
	db *sql.DB
}

type CellVisit struct {
	X         int    `json:"x"`
	Z         int    `json:"z"`
	Variant   int    `json:"variant"`
	Slots     []bool `json:"slots,omitempty"`
	FirstTick uint64 `json:"first_tick"`
	LastTick  uint64 `json:"last_tick"`
	Visits    int    `json:"visits"`
}

type ChunkEventRow struct {
	Tick       uint64 `json:"tick"`
	Seq        int    `json:"seq"`
	Kind       string `json:"kind"`
	X          int    `json:"x"`
	Z          int    `json:"z"`
	Variant    int    `json:"variant"`
	Instance   string `json:"instance"`
	FirstVisit bool   `json:"first_visit,omitempty"`
	Slots      []bool `json:"slots,omitempty"`
}

type TickRow struct {
	Tick      uint64 `json:"tick"`
	Digest    string `json:"digest"`
	X         int    `json:"x"`
	Z         int    `json:"z"`
	Active    int    `json:"active"`
	Known     int    `json:"known"`
	Evicted   int    `json:"evicted"`
	Activated int    `json:"activated"`
	Moves     int    `json:"moves"`
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// Meta returns a meta value; ok is false when the key is absent.
func (r *Reader) Meta(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return value, err == nil, err
}

// TopCells lists cells by visit count, most visited first.
func (r *Reader) TopCells(ctx context.Context, limit int) ([]CellVisit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT cell_x,cell_z,variant,slots_json,first_tick,last_tick,visits FROM cells ORDER BY visits DESC, cell_x, cell_z LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CellVisit
	for rows.Next() {
		var (
			c     CellVisit
			slots sql.NullString
			first int64
			last  int64
		)
		if err := rows.Scan(&c.X, &c.Z, &c.Variant, &slots, &first, &last, &c.Visits); err != nil {
			return nil, err
		}
		c.FirstTick, c.LastTick = uint64(first), uint64(last)
		c.Slots = decodeSlots(slots)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CellEvents returns the event history of one cell, newest first.
func (r *Reader) CellEvents(ctx context.Context, x, z, limit int) ([]ChunkEventRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT tick,seq,kind,cell_x,cell_z,variant,instance,first_visit,slots_json FROM chunk_events WHERE cell_x=? AND cell_z=? ORDER BY tick DESC, seq DESC LIMIT ?`, x, z, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChunkEventRow
	for rows.Next() {
		var (
			e     ChunkEventRow
			tick  int64
			fv    int
			slots sql.NullString
		)
		if err := rows.Scan(&tick, &e.Seq, &e.Kind, &e.X, &e.Z, &e.Variant, &e.Instance, &fv, &slots); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		e.FirstVisit = fv != 0
		e.Slots = decodeSlots(slots)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ticks returns indexed ticks in [from, to], oldest first. to == 0 means no upper bound.
func (r *Reader) Ticks(ctx context.Context, from, to uint64, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 100
	}
	upper := int64(to)
	if to == 0 {
		upper = 1<<63 - 1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT tick,digest,cell_x,cell_z,active,known,evicted,activated,moves FROM ticks WHERE tick>=? AND tick<=? ORDER BY tick LIMIT ?`, int64(from), upper, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var (
			t    TickRow
			tick int64
		)
		if err := rows.Scan(&tick, &t.Digest, &t.X, &t.Z, &t.Active, &t.Known, &t.Evicted, &t.Activated, &t.Moves); err != nil {
			return nil, err
		}
		t.Tick = uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}

func decodeSlots(s sql.NullString) []bool {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []bool
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}

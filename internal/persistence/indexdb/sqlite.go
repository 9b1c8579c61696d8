package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"

	"chunkstream.ai/internal/sim/tuning"
	"chunkstream.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick    atomic.Uint64
	writeErrors atomic.Uint64
}

type req struct {
	tick world.TickLogEntry
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTickTotal uint64 `json:"drop_tick_total"`
	WriteErrors   uint64 `json:"write_errors"`
}

// DefaultPath is where a world's index lives under the runtime data directory.
func DefaultPath(dataDir, worldID string) string {
	return filepath.Join(dataDir, "worlds", worldID, "index", "world.sqlite")
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			cell_x INTEGER NOT NULL,
			cell_z INTEGER NOT NULL,
			active INTEGER NOT NULL,
			known INTEGER NOT NULL,
			evicted INTEGER NOT NULL,
			activated INTEGER NOT NULL,
			moves INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			cell_x INTEGER NOT NULL,
			cell_z INTEGER NOT NULL,
			variant INTEGER NOT NULL,
			instance TEXT NOT NULL,
			first_visit INTEGER NOT NULL,
			slots_json TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_events_cell_tick ON chunk_events(cell_x, cell_z, tick);`,
		`CREATE TABLE IF NOT EXISTS cells (
			cell_x INTEGER NOT NULL,
			cell_z INTEGER NOT NULL,
			variant INTEGER NOT NULL,
			slots_json TEXT,
			first_tick INTEGER NOT NULL,
			last_tick INTEGER NOT NULL,
			visits INTEGER NOT NULL,
			PRIMARY KEY (cell_x, cell_z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cells_visits ON cells(visits DESC);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	// Quiet ticks carry nothing worth indexing.
	if !entry.Changed && len(entry.Moves) == 0 {
		return nil
	}
	select {
	case s.ch <- req{tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTickTotal: s.dropTick.Load(),
		WriteErrors:   s.writeErrors.Load(),
	}
}

// UpsertTuning stores the tuning values the server actually applies.
func (s *SQLiteIndex) UpsertTuning(worldID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	digest := fmt.Sprintf("%016x", xxhash.Sum64(b))
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('world_id',?)`, worldID); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES('tuning',?,?,?)`, digest, string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,digest,cell_x,cell_z,active,known,evicted,activated,moves) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO chunk_events(tick,seq,kind,cell_x,cell_z,variant,instance,first_visit,slots_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	upsertCell, _ := s.db.Prepare(`INSERT INTO cells(cell_x,cell_z,variant,slots_json,first_tick,last_tick,visits) VALUES(?,?,?,?,?,?,1)
		ON CONFLICT(cell_x,cell_z) DO UPDATE SET last_tick=excluded.last_tick, visits=cells.visits+1`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertEvent, upsertCell} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
		s.writeErrors.Add(1)
	}

	for r := range s.ch {
		begin()
		if tx == nil || insertTick == nil || insertEvent == nil || upsertCell == nil {
			continue
		}
		if err := s.writeEntry(tx, insertTick, insertEvent, upsertCell, r.tick); err != nil {
			rollback()
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

func (s *SQLiteIndex) writeEntry(tx *sql.Tx, insertTick, insertEvent, upsertCell *sql.Stmt, e world.TickLogEntry) error {
	tick := int64(e.Tick)
	if _, err := tx.Stmt(insertTick).Exec(
		tick, e.Digest, e.Cell[0], e.Cell[1], e.Active, e.Known,
		len(e.Evicted), len(e.Activated), len(e.Moves),
	); err != nil {
		return err
	}
	seq := 0
	write := func(kind string, ev world.RecordedChunkEvent) error {
		var slots any
		if ev.Slots != nil {
			b, _ := json.Marshal(ev.Slots)
			slots = string(b)
		}
		if _, err := tx.Stmt(insertEvent).Exec(
			tick, seq, kind, ev.Cell[0], ev.Cell[1], ev.Variant, ev.Instance, boolInt(ev.FirstVisit), slots,
		); err != nil {
			return err
		}
		seq++
		if kind != "ACTIVATE" {
			return nil
		}
		_, err := tx.Stmt(upsertCell).Exec(ev.Cell[0], ev.Cell[1], ev.Variant, slots, tick, tick)
		return err
	}
	for _, ev := range e.Evicted {
		if err := write("EVICT", ev); err != nil {
			return err
		}
	}
	for _, ev := range e.Activated {
		if err := write("ACTIVATE", ev); err != nil {
			return err
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

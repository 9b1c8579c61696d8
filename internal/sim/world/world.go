package world

import (
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"chunkstream.ai/internal/sim/grid"
	"chunkstream.ai/internal/sim/pool"
	"chunkstream.ai/internal/sim/stream"
)

type MoveRequest struct {
	Pos mgl64.Vec3
	// Detach removes the observer tag from the locator until the next move.
	Detach bool
	// Resp, if set, should be buffered; the world loop never blocks on it.
	Resp chan MoveResult
}

type MoveResult struct {
	Tick     uint64     `json:"tick"`
	Observer [3]float64 `json:"observer"`
	Attached bool       `json:"attached"`

	// Ignored is set when the requested position was outside the cell range.
	Ignored bool `json:"ignored,omitempty"`
}

func (w *World) respondMove(req MoveRequest, res MoveResult) {
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- res:
	default:
	}
}

type RecordedMove struct {
	Pos    [3]float64 `json:"pos"`
	Detach bool       `json:"detach,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	Tick      uint64               `json:"tick"`
	Moves     []RecordedMove       `json:"moves,omitempty"`
	Observer  [3]float64           `json:"observer"`
	Cell      [2]int               `json:"cell"`
	Changed   bool                 `json:"changed"`
	Evicted   []RecordedChunkEvent `json:"evicted,omitempty"`
	Activated []RecordedChunkEvent `json:"activated,omitempty"`
	Active    int                  `json:"active"`
	Known     int                  `json:"known"`
	Digest    string               `json:"digest"`
}

type RecordedChunkEvent struct {
	Cell       [2]int `json:"cell"`
	Variant    int    `json:"variant"`
	Instance   string `json:"instance"`
	Slots      []bool `json:"slots,omitempty"`
	FirstVisit bool   `json:"first_visit,omitempty"`
}

// World hosts one chunk stream manager and the observer it follows.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *log.Logger

	mgr      *stream.Manager
	locator  *TagLocator
	walker   *Walker
	attached bool
	variants []string

	tick   atomic.Uint64
	digest string

	tickLogger TickLogger

	observers     map[string]*observerClient
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	move          chan MoveRequest
	stop          chan struct{}
	stopOnce      sync.Once
	closed        bool

	metrics atomic.Value // WorldMetrics
	state   atomic.Value // StateView
}

type Option func(*World)

func WithLogger(l *log.Logger) Option {
	return func(w *World) {
		if l != nil {
			w.log = l
		}
	}
}

// WithTickLogger records every stepped tick. Write errors are logged, not fatal.
func WithTickLogger(tl TickLogger) Option {
	return func(w *World) { w.tickLogger = tl }
}

func New(cfg WorldConfig, reg *pool.Registry, opts ...Option) (*World, error) {
	cfg.applyDefaults()
	w := &World{
		cfg:           cfg,
		log:           log.New(io.Discard, "", 0),
		locator:       NewTagLocator(),
		walker:        NewWalker(cfg.Walker),
		attached:      true,
		observers:     map[string]*observerClient{},
		observerJoin:  make(chan ObserverJoinRequest, 64),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 64),
		move:          make(chan MoveRequest, 64),
		stop:          make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	mgr, err := stream.New(cfg.Stream, reg, stream.WithLogger(w.log))
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", cfg.ID, err)
	}
	w.mgr = mgr
	w.variants = make([]string, reg.Len())
	for i := range w.variants {
		v, _ := reg.Variant(i)
		w.variants[i] = v.Name
	}
	w.locator.Set(cfg.Stream.ObserverTag, w.walker.Pos())
	w.digest = mgr.Digest()
	w.publish()
	return w, nil
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig {
	if w == nil {
		return WorldConfig{}
	}
	cfg := w.cfg
	cfg.Walker.Waypoints = append([]mgl64.Vec3(nil), cfg.Walker.Waypoints...)
	return cfg
}

func (w *World) TickRateHz() int { return w.cfg.TickRateHz }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// VariantNames lists variant names by id. The slice is shared; do not modify.
func (w *World) VariantNames() []string { return w.variants }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest           { return w.observerJoin }
func (w *World) ObserverSubscribe() chan<- ObserverSubscribeRequest { return w.observerSub }
func (w *World) ObserverLeave() chan<- string                       { return w.observerLeave }
func (w *World) Move() chan<- MoveRequest                           { return w.move }

// Manager exposes the stream manager. Only the world loop goroutine may use
// it while Run is active.
func (w *World) Manager() *stream.Manager { return w.mgr }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
// It is primarily intended for deterministic replays/tests.
func (w *World) StepOnce(moves []MoveRequest) (tick uint64, digest string) {
	entry := w.step(moves)
	return entry.Tick, entry.Digest
}

func (w *World) step(moves []MoveRequest) TickLogEntry {
	stepStart := time.Now()
	nowTick := w.tick.Load()
	tag := w.cfg.Stream.ObserverTag

	recordedMoves := make([]RecordedMove, 0, len(moves))
	for _, req := range moves {
		if !req.Detach {
			if err := grid.CheckWorld(req.Pos, w.cfg.Stream.EdgeLength, w.cfg.Stream.ViewDistance); err != nil {
				w.log.Printf("world %s: move ignored: %v", w.cfg.ID, err)
				w.respondMove(req, MoveResult{Tick: nowTick, Observer: w.walker.Pos(), Attached: w.attached, Ignored: true})
				continue
			}
		}
		if req.Detach {
			w.attached = false
			w.locator.Remove(tag)
		} else {
			w.attached = true
			w.walker.Teleport(req.Pos)
			w.locator.Set(tag, req.Pos)
		}
		recordedMoves = append(recordedMoves, RecordedMove{Pos: req.Pos, Detach: req.Detach})
		w.respondMove(req, MoveResult{Tick: nowTick, Observer: w.walker.Pos(), Attached: w.attached})
	}

	if w.attached {
		w.locator.Set(tag, w.walker.Advance(1/float64(w.cfg.TickRateHz)))
	}

	diff := w.mgr.TickFrom(w.locator)
	if diff.Changed {
		w.digest = w.mgr.Digest()
	}
	stats := w.mgr.Stats()

	entry := TickLogEntry{
		Tick:      nowTick,
		Moves:     recordedMoves,
		Observer:  w.walker.Pos(),
		Cell:      cellPair(diff.Cell),
		Changed:   diff.Changed,
		Evicted:   recordEvents(diff.Evicted),
		Activated: recordEvents(diff.Activated),
		Active:    stats.Active,
		Known:     stats.Known,
		Digest:    w.digest,
	}
	if len(entry.Moves) == 0 {
		entry.Moves = nil
	}

	w.stepObservers(entry)

	if w.tickLogger != nil {
		if err := w.tickLogger.WriteTick(entry); err != nil {
			w.log.Printf("world %s: tick log: %v", w.cfg.ID, err)
		}
	}

	w.tick.Add(1)
	w.publishStats(stats, float64(time.Since(stepStart).Microseconds())/1000.0)
	return entry
}

// Close tears down the chunk pools and drops all observer sessions. Call it
// after Run has returned.
func (w *World) Close() {
	if w == nil || w.closed {
		return
	}
	w.closed = true
	for id := range w.observers {
		w.handleObserverLeave(id)
	}
	w.mgr.Close()
	w.publish()
}

func cellPair(c grid.Coord) [2]int { return [2]int{c.X, c.Z} }

func recordEvents(evs []stream.Event) []RecordedChunkEvent {
	if len(evs) == 0 {
		return nil
	}
	out := make([]RecordedChunkEvent, 0, len(evs))
	for _, ev := range evs {
		out = append(out, RecordedChunkEvent{
			Cell:       cellPair(ev.Cell),
			Variant:    ev.Variant,
			Instance:   ev.Instance.String(),
			Slots:      ev.Slots,
			FirstVisit: ev.FirstVisit,
		})
	}
	return out
}

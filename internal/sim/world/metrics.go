package world

import (
	"chunkstream.ai/internal/sim/stream"
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick      uint64       `json:"tick"`
	Observers int          `json:"observers"`
	StepMS    float64      `json:"step_ms"`
	Stream    stream.Stats `json:"stream"`

	QueueDepths QueueDepths `json:"queue_depths"`
}

type QueueDepths struct {
	Move          int `json:"move"`
	ObserverJoin  int `json:"observer_join"`
	ObserverLeave int `json:"observer_leave"`
}

// StateView is the latest published position and active window.
type StateView struct {
	WorldID  string     `json:"world_id"`
	Tick     uint64     `json:"tick"`
	Primed   bool       `json:"primed"`
	Attached bool       `json:"attached"`
	Observer [3]float64 `json:"observer"`
	Cell     [2]int     `json:"cell"`
	Active   [][2]int   `json:"active"`
	Known    int        `json:"known"`
	Digest   string     `json:"digest"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}

func (w *World) State() StateView {
	if w == nil {
		return StateView{}
	}
	s, _ := w.state.Load().(StateView)
	return s
}

func (w *World) publish() {
	w.publishStats(w.mgr.Stats(), 0)
}

func (w *World) publishStats(stats stream.Stats, stepMS float64) {
	tick := w.tick.Load()
	w.metrics.Store(WorldMetrics{
		Tick:      tick,
		Observers: len(w.observers),
		StepMS:    stepMS,
		Stream:    stats,
		QueueDepths: QueueDepths{
			Move:          len(w.move),
			ObserverJoin:  len(w.observerJoin),
			ObserverLeave: len(w.observerLeave),
		},
	})

	coords := w.mgr.ActiveCoords()
	active := make([][2]int, 0, len(coords))
	for _, c := range coords {
		active = append(active, cellPair(c))
	}
	cell, primed := w.mgr.LastCell()
	w.state.Store(StateView{
		WorldID:  w.cfg.ID,
		Tick:     tick,
		Primed:   primed,
		Attached: w.attached,
		Observer: w.walker.Pos(),
		Cell:     cellPair(cell),
		Active:   active,
		Known:    stats.Known,
		Digest:   w.digest,
	})
}

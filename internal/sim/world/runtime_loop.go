package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingMoves []MoveRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.observerJoin:
			w.handleObserverJoin(req)
		case req := <-w.observerSub:
			w.handleObserverSubscribe(req)
		case id := <-w.observerLeave:
			w.handleObserverLeave(id)
		case req := <-w.move:
			pendingMoves = append(pendingMoves, req)
		case <-ticker.C:
			w.step(pendingMoves)
			pendingMoves = pendingMoves[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// RequestMove queues a teleport (or detach) for the next tick and waits for
// the world loop to apply it.
func (w *World) RequestMove(ctx context.Context, req MoveRequest) (MoveResult, error) {
	resp := make(chan MoveResult, 1)
	req.Resp = resp
	select {
	case w.move <- req:
	case <-ctx.Done():
		return MoveResult{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return MoveResult{}, ctx.Err()
	}
}

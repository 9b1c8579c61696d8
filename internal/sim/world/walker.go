package world

import "github.com/go-gl/mathgl/mgl64"

// Walker moves a point along a waypoint route at a constant speed.
type Walker struct {
	pos       mgl64.Vec3
	speed     float64
	waypoints []mgl64.Vec3
	next      int
	loop      bool
}

func NewWalker(cfg WalkerConfig) *Walker {
	wps := make([]mgl64.Vec3, len(cfg.Waypoints))
	copy(wps, cfg.Waypoints)
	return &Walker{pos: cfg.Start, speed: cfg.Speed, waypoints: wps, loop: cfg.Loop}
}

func (w *Walker) Pos() mgl64.Vec3 { return w.pos }

// Done reports whether a non-looping route has been completed.
func (w *Walker) Done() bool { return w.next >= len(w.waypoints) }

// Teleport moves the walker without changing its route.
func (w *Walker) Teleport(p mgl64.Vec3) { w.pos = p }

// Advance moves the walker by speed*dt along the route, passing through as
// many waypoints as the distance covers.
func (w *Walker) Advance(dt float64) mgl64.Vec3 {
	remaining := w.speed * dt
	stalled := 0
	for remaining > 0 && !w.Done() && stalled <= len(w.waypoints) {
		target := w.waypoints[w.next]
		d := target.Sub(w.pos)
		dist := d.Len()
		if dist <= remaining {
			if dist == 0 {
				stalled++
			} else {
				stalled = 0
			}
			w.pos = target
			remaining -= dist
			w.next++
			if w.next == len(w.waypoints) && w.loop {
				w.next = 0
			}
			continue
		}
		w.pos = w.pos.Add(d.Mul(remaining / dist))
		remaining = 0
	}
	return w.pos
}

// Package stream keeps the chunks around a moving observer loaded, recycling
// distant chunk instances through a pool.Registry and replaying each cell's
// recorded decoration outcome when it comes back into view.
package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"

	"chunkstream.ai/internal/sim/grid"
	"chunkstream.ai/internal/sim/pool"
)

var ErrLocatorMissing = errors.New("stream: observer not found")

// Locator resolves the current position of the object carrying tag.
type Locator interface {
	Locate(tag string) (mgl64.Vec3, bool)
}

type Config struct {
	// ViewDistance is the fill radius in cells.
	ViewDistance int
	// EdgeLength is the world size of one chunk edge.
	EdgeLength float64
	// PlacementY is the world height chunk instances are placed at.
	PlacementY float64
	// ObserverTag is the tag TickFrom asks the Locator for.
	ObserverTag string
	// Seed drives the variant choice for first-visited cells.
	Seed uint64
	// Strict panics on internal invariant violations instead of logging them.
	Strict bool
}

func (c Config) validate() error {
	if c.ViewDistance < 0 {
		return fmt.Errorf("stream: negative view distance %d", c.ViewDistance)
	}
	if !(c.EdgeLength > 0) {
		return fmt.Errorf("stream: edge length must be positive, got %v", c.EdgeLength)
	}
	return nil
}

// Metadata is what a cell remembers for the lifetime of the world.
type Metadata struct {
	Variant int
	Slots   []bool
}

// Manager owns the cell metadata, the active set and the reconcile loop.
// Metadata is never dropped, so memory grows with the area explored.
// It is not safe for concurrent use; call it from one goroutine.
type Manager struct {
	cfg Config
	reg *pool.Registry
	log *log.Logger
	rng *rand.Rand

	meta   map[grid.Coord]*Metadata
	active map[grid.Coord]*pool.Instance

	last   grid.Coord
	primed bool
	closed bool

	// digest folds in each cell record once, in first-visit order.
	digest *xxhash.Digest

	stats Stats
}

type Option func(*Manager)

func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func New(cfg Config, reg *pool.Registry, opts ...Option) (*Manager, error) {
	if reg == nil {
		return nil, errors.New("stream: nil registry")
	}
	if reg.Len() == 0 {
		return nil, pool.ErrEmptyVariantList
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ObserverTag == "" {
		cfg.ObserverTag = "Player"
	}
	m := &Manager{
		cfg:    cfg,
		reg:    reg,
		log:    log.New(io.Discard, "", 0),
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0xbf58476d1ce4e5b9)),
		meta:   map[grid.Coord]*Metadata{},
		active: map[grid.Coord]*pool.Instance{},
		digest: xxhash.New(),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Manager) Config() Config { return m.cfg }

// LastCell is the cell of the last reconcile; ok is false before the first.
func (m *Manager) LastCell() (grid.Coord, bool) { return m.last, m.primed }

// TickFrom polls the locator for the observer and ticks with its position.
// A missing observer is logged and the tick reuses the last known cell, or
// the origin if nothing has been loaded yet.
func (m *Manager) TickFrom(loc Locator) Diff {
	var (
		pos mgl64.Vec3
		ok  bool
	)
	if loc != nil {
		pos, ok = loc.Locate(m.cfg.ObserverTag)
	}
	if !ok {
		m.stats.LocatorMisses++
		m.log.Printf("stream: %v (tag %q)", ErrLocatorMissing, m.cfg.ObserverTag)
		if m.primed {
			return Diff{Cell: m.last}
		}
		pos = mgl64.Vec3{}
	}
	return m.Tick(pos)
}

// Tick reconciles the active set when pos lies in a different cell than the
// previous tick. Ticks within the same cell are no-ops.
func (m *Manager) Tick(pos mgl64.Vec3) Diff {
	if m.closed {
		return Diff{Cell: m.last}
	}
	cell := grid.FromWorld(pos, m.cfg.EdgeLength)
	if m.primed && cell == m.last {
		return Diff{Cell: cell}
	}
	d := m.reconcile(cell)
	m.last = cell
	m.primed = true
	return d
}

func (m *Manager) reconcile(cell grid.Coord) Diff {
	m.stats.Crossings++
	d := Diff{Cell: cell, Changed: true}

	// Eviction uses a circular keep radius while fill below walks a square,
	// so diagonal corners at distance > ViewDistance are filled on entry and
	// dropped at the next crossing. Callers rely on this exact behaviour.
	limit := float64(m.cfg.ViewDistance)
	var evict []grid.Coord
	for c := range m.active {
		if c.Distance(cell) > limit {
			evict = append(evict, c)
		}
	}
	grid.Sort(evict)
	for _, c := range evict {
		if ev, ok := m.evict(c); ok {
			d.Evicted = append(d.Evicted, ev)
		}
	}

	for _, c := range grid.Square(cell, m.cfg.ViewDistance) {
		if _, ok := m.active[c]; ok {
			continue
		}
		if ev, ok := m.activate(c); ok {
			d.Activated = append(d.Activated, ev)
		}
	}
	return d
}

func (m *Manager) evict(c grid.Coord) (Event, bool) {
	in := m.active[c]
	md, ok := m.meta[c]
	if !ok {
		m.violation("active cell %v has no metadata", c)
		return Event{}, false
	}
	delete(m.active, c)
	if err := m.reg.Checkin(in, md.Variant); err != nil {
		m.violation("evict %v: %v", c, err)
	}
	m.stats.Evictions++
	return Event{Kind: EventEvict, Cell: c, Variant: md.Variant, Instance: in.ID}, true
}

func (m *Manager) activate(c grid.Coord) (Event, bool) {
	pos := c.WorldPos(m.cfg.EdgeLength, m.cfg.PlacementY)
	rot := mgl64.QuatIdent()

	if md, ok := m.meta[c]; ok {
		in, err := m.reg.Checkout(md.Variant, pos, rot)
		if err != nil {
			m.violation("activate %v: %v", c, err)
			return Event{}, false
		}
		in.ApplyPattern(md.Slots)
		in.SetActive(true)
		m.active[c] = in
		m.stats.Activations++
		m.stats.Reactivations++
		return Event{Kind: EventActivate, Cell: c, Variant: md.Variant, Instance: in.ID, Slots: cloneBools(md.Slots)}, true
	}

	variant := m.rng.IntN(m.reg.Len())
	in, err := m.reg.Checkout(variant, pos, rot)
	if err != nil {
		m.violation("activate %v: %v", c, err)
		return Event{}, false
	}
	in.SetActive(true)
	m.active[c] = in
	md := &Metadata{Variant: variant, Slots: in.PlacedPattern()}
	m.meta[c] = md
	m.hashRecord(c, md)
	m.stats.Activations++
	m.stats.FirstVisits++
	return Event{Kind: EventActivate, Cell: c, Variant: variant, Instance: in.ID, Slots: cloneBools(md.Slots), FirstVisit: true}, true
}

func (m *Manager) violation(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.stats.Violations++
	if m.cfg.Strict {
		panic("stream: " + msg)
	}
	m.log.Printf("stream: invariant violation: %s", msg)
}

// Active returns the instance shown at c, if any.
func (m *Manager) Active(c grid.Coord) (*pool.Instance, bool) {
	in, ok := m.active[c]
	return in, ok
}

// ActiveCoords returns the active cells in sorted order.
func (m *Manager) ActiveCoords() []grid.Coord {
	out := make([]grid.Coord, 0, len(m.active))
	for c := range m.active {
		out = append(out, c)
	}
	grid.Sort(out)
	return out
}

// ActiveInstances returns the instances of the active set.
func (m *Manager) ActiveInstances() []*pool.Instance {
	out := make([]*pool.Instance, 0, len(m.active))
	for _, c := range m.ActiveCoords() {
		out = append(out, m.active[c])
	}
	return out
}

// Metadata returns a copy of the record for c.
func (m *Manager) Metadata(c grid.Coord) (Metadata, bool) {
	md, ok := m.meta[c]
	if !ok {
		return Metadata{}, false
	}
	return Metadata{Variant: md.Variant, Slots: cloneBools(md.Slots)}, true
}

func (m *Manager) KnownCells() int { return len(m.meta) }

func (m *Manager) Stats() Stats {
	s := m.stats
	s.Active = len(m.active)
	s.Known = len(m.meta)
	s.Pools = m.reg.Stats()
	return s
}

// Digest identifies the recorded cells and their outcomes. Records are
// folded in as cells are first visited, so two managers that visited the
// same cells in the same order with the same outcomes share a digest.
func (m *Manager) Digest() string {
	return fmt.Sprintf("%016x", m.digest.Sum64())
}

func (m *Manager) hashRecord(c grid.Coord, md *Metadata) {
	var buf [8]byte
	put := func(v int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, _ = m.digest.Write(buf[:])
	}
	put(int64(c.X))
	put(int64(c.Z))
	put(int64(md.Variant))
	put(int64(len(md.Slots)))
	for _, b := range md.Slots {
		if b {
			_, _ = m.digest.Write([]byte{1})
		} else {
			_, _ = m.digest.Write([]byte{0})
		}
	}
}

// Close returns every active instance and releases the registry.
func (m *Manager) Close() {
	if m.closed {
		return
	}
	coords := m.ActiveCoords()
	for _, c := range coords {
		delete(m.active, c)
	}
	m.reg.Release()
	m.closed = true
}

func cloneBools(b []bool) []bool {
	if b == nil {
		return nil
	}
	return append([]bool(nil), b...)
}

// Package decor defines the decoration-slot seam between chunk streaming and
// whatever decides if a decoration appears in a slot.
package decor

import "math/rand/v2"

// Slot is one fixed decoration position inside a chunk instance.
// SetPlaced is an idempotent set: after the call IsPlaced reports exactly v.
type Slot interface {
	IsPlaced() bool
	SetPlaced(v bool)
}

// Lifecycle is implemented by slots that react to their chunk being shown or
// hidden.
type Lifecycle interface {
	Enable()
	Disable()
}

// Roller returns a value in [0, 100).
type Roller func() float64

// NewRoller returns a Roller backed by a seeded PCG source.
func NewRoller(seed uint64) Roller {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func() float64 { return r.Float64() * 100 }
}

// ChanceSlot places a decoration with PlacedChance percent probability each
// time it is enabled without a forced state.
type ChanceSlot struct {
	PlacedChance float64

	roll   Roller
	placed bool
	forced bool
}

func NewChanceSlot(chance float64, roll Roller) *ChanceSlot {
	return &ChanceSlot{PlacedChance: chance, roll: roll}
}

func (s *ChanceSlot) IsPlaced() bool { return s.placed }

// SetPlaced forces the slot state. The next Enable keeps it instead of rolling.
func (s *ChanceSlot) SetPlaced(v bool) {
	s.placed = v
	s.forced = true
}

func (s *ChanceSlot) Enable() {
	if s.forced {
		return
	}
	if s.roll == nil {
		s.placed = false
		return
	}
	s.placed = s.roll() <= s.PlacedChance
}

// Disable removes any spawned content and drops the forced state.
func (s *ChanceSlot) Disable() {
	s.placed = false
	s.forced = false
}

// ChanceFactory returns a factory producing n ChanceSlots sharing roll.
func ChanceFactory(n int, chance float64, roll Roller) func() []Slot {
	return func() []Slot {
		out := make([]Slot, n)
		for i := range out {
			out[i] = NewChanceSlot(chance, roll)
		}
		return out
	}
}

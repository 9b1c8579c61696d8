package pool

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"chunkstream.ai/internal/sim/decor"
)

// Variant is an immutable chunk template. ID must equal its index in the
// registry. Factory builds the decoration slots of one new instance.
type Variant struct {
	ID      int
	Name    string
	Factory func() []decor.Slot
}

// Instance is one live or pooled chunk object built from exactly one Variant.
type Instance struct {
	ID      uuid.UUID
	Variant int
	Pos     mgl64.Vec3
	Rot     mgl64.Quat
	Slots   []decor.Slot

	active   bool
	pooled   bool
	released bool
}

func (in *Instance) Active() bool   { return in.active }
func (in *Instance) Pooled() bool   { return in.pooled }
func (in *Instance) Released() bool { return in.released }

// SetActive shows or hides the instance, forwarding to slots that implement
// decor.Lifecycle. Repeated calls with the same value do nothing.
func (in *Instance) SetActive(v bool) {
	if in.active == v || in.released {
		return
	}
	in.active = v
	for _, s := range in.Slots {
		lc, ok := s.(decor.Lifecycle)
		if !ok {
			continue
		}
		if v {
			lc.Enable()
		} else {
			lc.Disable()
		}
	}
}

// PlacedPattern reads back the current placed state of every slot.
func (in *Instance) PlacedPattern() []bool {
	out := make([]bool, len(in.Slots))
	for i, s := range in.Slots {
		out[i] = s.IsPlaced()
	}
	return out
}

// ApplyPattern forces slot i to pattern[i] for every index both cover and
// returns how many slots were written.
func (in *Instance) ApplyPattern(pattern []bool) int {
	n := min(len(pattern), len(in.Slots))
	for i := 0; i < n; i++ {
		in.Slots[i].SetPlaced(pattern[i])
	}
	return n
}

func (in *Instance) place(pos mgl64.Vec3, rot mgl64.Quat) {
	in.Pos = pos
	in.Rot = rot
}

package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
)

// Coord identifies one chunk cell on the XZ plane.
type Coord struct {
	X int
	Z int
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Z) }

func (c Coord) Add(dx, dz int) Coord { return Coord{X: c.X + dx, Z: c.Z + dz} }

// MaxCell bounds both cell axes. Differences between any two cells in range
// fit in an int.
const MaxCell = math.MaxInt >> 2

var ErrOutOfRange = errors.New("grid: position outside the cell range")

// CheckWorld rejects positions whose cell, widened by margin cells on each
// side, would leave [-MaxCell, MaxCell]. NaN and infinities are rejected too.
func CheckWorld(pos mgl64.Vec3, edge float64, margin int) error {
	limit := float64(MaxCell - max(margin, 0))
	for _, q := range [2]float64{pos.X() / edge, pos.Z() / edge} {
		if !(math.Abs(math.Floor(q)) < limit) {
			return fmt.Errorf("%w: %v", ErrOutOfRange, pos)
		}
	}
	return nil
}

// FromWorld maps a world position to its cell. Y is ignored and both axes
// floor toward negative infinity, so (-0.1, 0, 0) is in cell (-1, 0).
// Positions that fail CheckWorld map to unspecified cells.
func FromWorld(pos mgl64.Vec3, edge float64) Coord {
	return Coord{
		X: int(math.Floor(pos.X() / edge)),
		Z: int(math.Floor(pos.Z() / edge)),
	}
}

// WorldPos is the placement of the cell's origin corner at height y.
func (c Coord) WorldPos(edge, y float64) mgl64.Vec3 {
	return mgl64.Vec3{float64(c.X) * edge, y, float64(c.Z) * edge}
}

// Distance is the Euclidean distance between two cells in cell units.
func (c Coord) Distance(o Coord) float64 {
	dx := float64(c.X - o.X)
	dz := float64(c.Z - o.Z)
	return math.Sqrt(dx*dx + dz*dz)
}

// Chebyshev is the max-axis distance between two cells.
func (c Coord) Chebyshev(o Coord) int {
	return max(absInt(c.X-o.X), absInt(c.Z-o.Z))
}

// Square returns every cell within Chebyshev radius r of center, X-major
// (X outer, Z inner). It returns nil for a negative radius.
func Square(center Coord, r int) []Coord {
	if r < 0 {
		return nil
	}
	out := make([]Coord, 0, (2*r+1)*(2*r+1))
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			out = append(out, center.Add(dx, dz))
		}
	}
	return out
}

// Sort orders coords X-major, then Z.
func Sort(cs []Coord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].X != cs[j].X {
			return cs[i].X < cs[j].X
		}
		return cs[i].Z < cs[j].Z
	})
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

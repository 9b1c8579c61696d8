package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestFromWorld(t *testing.T) {
	cases := []struct {
		pos  mgl64.Vec3
		edge float64
		want Coord
	}{
		{mgl64.Vec3{7, 0, -1}, 6, Coord{1, -1}},
		{mgl64.Vec3{0, 0, 0}, 6, Coord{0, 0}},
		{mgl64.Vec3{5.999, 100, 5.999}, 6, Coord{0, 0}},
		{mgl64.Vec3{6, 0, 6}, 6, Coord{1, 1}},
		{mgl64.Vec3{-0.001, 0, -6}, 6, Coord{-1, -1}},
		{mgl64.Vec3{-6.5, 0, 13}, 6, Coord{-2, 2}},
		{mgl64.Vec3{2.5, 0, -2.5}, 0.5, Coord{5, -5}},
	}
	for _, tc := range cases {
		if got := FromWorld(tc.pos, tc.edge); got != tc.want {
			t.Fatalf("FromWorld(%v, %v) = %v, want %v", tc.pos, tc.edge, got, tc.want)
		}
	}
}

func TestCheckWorld(t *testing.T) {
	far := float64(MaxCell) * 6
	cases := []struct {
		pos    mgl64.Vec3
		margin int
		ok     bool
	}{
		{mgl64.Vec3{7, 0, -1}, 5, true},
		{mgl64.Vec3{-1e12, 1e300, 1e12}, 5, true},
		{mgl64.Vec3{1e300, 0, 0}, 0, false},
		{mgl64.Vec3{0, 0, -1e300}, 0, false},
		{mgl64.Vec3{far, 0, 0}, 0, false},
		{mgl64.Vec3{math.NaN(), 0, 0}, 0, false},
		{mgl64.Vec3{0, 0, math.Inf(1)}, 0, false},
	}
	for _, tc := range cases {
		err := CheckWorld(tc.pos, 6, tc.margin)
		if (err == nil) != tc.ok {
			t.Fatalf("CheckWorld(%v) = %v, want ok=%v", tc.pos, err, tc.ok)
		}
		if err != nil && !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("CheckWorld(%v) = %v, want ErrOutOfRange", tc.pos, err)
		}
	}
}

func TestWorldPos(t *testing.T) {
	got := Coord{X: -2, Z: 3}.WorldPos(6, 1.5)
	if got != (mgl64.Vec3{-12, 1.5, 18}) {
		t.Fatalf("WorldPos = %v", got)
	}
}

func TestDistances(t *testing.T) {
	a := Coord{0, 0}
	b := Coord{1, 1}
	if d := a.Distance(b); d <= 1 || d >= 1.5 {
		t.Fatalf("diagonal distance = %v, want sqrt(2)", d)
	}
	if d := a.Chebyshev(b); d != 1 {
		t.Fatalf("Chebyshev = %d, want 1", d)
	}
	if d := (Coord{3, -4}).Distance(a); d != 5 {
		t.Fatalf("Distance = %v, want 5", d)
	}
}

func TestSquareOrderAndSize(t *testing.T) {
	sq := Square(Coord{2, 0}, 1)
	if len(sq) != 9 {
		t.Fatalf("len = %d, want 9", len(sq))
	}
	if sq[0] != (Coord{1, -1}) || sq[1] != (Coord{1, 0}) || sq[8] != (Coord{3, 1}) {
		t.Fatalf("unexpected order: %v", sq)
	}
	if got := Square(Coord{}, 0); len(got) != 1 || got[0] != (Coord{}) {
		t.Fatalf("radius 0 = %v", got)
	}
	if Square(Coord{}, -1) != nil {
		t.Fatalf("negative radius should be nil")
	}
}

func TestSort(t *testing.T) {
	cs := []Coord{{1, 0}, {-1, 5}, {1, -3}, {0, 0}}
	Sort(cs)
	want := []Coord{{-1, 5}, {0, 0}, {1, -3}, {1, 0}}
	for i := range want {
		if cs[i] != want[i] {
			t.Fatalf("Sort = %v, want %v", cs, want)
		}
	}
}

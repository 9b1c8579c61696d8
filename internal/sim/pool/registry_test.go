package pool

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"chunkstream.ai/internal/sim/decor"
)

type flagSlot struct {
	placed  bool
	enabled bool
}

func (s *flagSlot) IsPlaced() bool   { return s.placed }
func (s *flagSlot) SetPlaced(v bool) { s.placed = v }
func (s *flagSlot) Enable()          { s.enabled = true }
func (s *flagSlot) Disable()         { s.enabled = false }

func slotsOf(n int) func() []decor.Slot {
	return func() []decor.Slot {
		out := make([]decor.Slot, n)
		for i := range out {
			out[i] = &flagSlot{}
		}
		return out
	}
}

func newTestRegistry(t *testing.T, counts ...int) *Registry {
	t.Helper()
	vs := make([]Variant, len(counts))
	for i, n := range counts {
		vs[i] = Variant{ID: i, Name: "v", Factory: slotsOf(n)}
	}
	r, err := NewRegistry(vs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestNewRegistryValidation(t *testing.T) {
	if _, err := NewRegistry(nil); !errors.Is(err, ErrEmptyVariantList) {
		t.Fatalf("expected ErrEmptyVariantList, got %v", err)
	}
	if _, err := NewRegistry([]Variant{{ID: 1, Factory: slotsOf(1)}}); err == nil {
		t.Fatalf("expected error for id/index mismatch")
	}
	if _, err := NewRegistry([]Variant{{ID: 0}}); err == nil {
		t.Fatalf("expected error for nil factory")
	}
}

func TestCheckoutInstantiatesAndDiscoversSlots(t *testing.T) {
	r := newTestRegistry(t, 3, 5)
	if _, ok := r.SlotCount(1); ok {
		t.Fatalf("slot count known before first instance")
	}
	pos := mgl64.Vec3{6, 0, 12}
	in, err := r.Checkout(1, pos, mgl64.QuatIdent())
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if in.Variant != 1 || len(in.Slots) != 5 || in.Pos != pos {
		t.Fatalf("unexpected instance: variant=%d slots=%d pos=%v", in.Variant, len(in.Slots), in.Pos)
	}
	if n, ok := r.SlotCount(1); !ok || n != 5 {
		t.Fatalf("SlotCount = %d,%v", n, ok)
	}
	if r.Created(1) != 1 || r.Created(0) != 0 {
		t.Fatalf("created counts wrong: %d %d", r.Created(0), r.Created(1))
	}
}

func TestCheckinThenCheckoutReusesFIFO(t *testing.T) {
	r := newTestRegistry(t, 2)
	a, _ := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent())
	b, _ := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent())
	a.SetActive(true)
	a.Slots[0].SetPlaced(true)

	if err := r.Checkin(a, 0); err != nil {
		t.Fatalf("Checkin a: %v", err)
	}
	if err := r.Checkin(b, 0); err != nil {
		t.Fatalf("Checkin b: %v", err)
	}
	if a.Active() || !a.Pooled() {
		t.Fatalf("checked-in instance should be inactive and pooled")
	}
	if r.Free(0) != 2 {
		t.Fatalf("Free = %d, want 2", r.Free(0))
	}

	pos := mgl64.Vec3{60, 0, -6}
	got, err := r.Checkout(0, pos, mgl64.QuatIdent())
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if got != a {
		t.Fatalf("expected FIFO reuse of first checked-in instance")
	}
	if got.Pos != pos || got.Pooled() {
		t.Fatalf("reused instance not repositioned/unpooled")
	}
	if !got.Slots[0].IsPlaced() {
		t.Fatalf("pool must not touch slot contents on reuse")
	}
	if r.Created(0) != 2 {
		t.Fatalf("reuse must not instantiate; created=%d", r.Created(0))
	}
	st := r.Stats()[0]
	if st.Checkouts != 3 || st.Reuses != 1 || st.Free != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCheckinUnknownVariantLeaksAndLogs(t *testing.T) {
	var buf bytes.Buffer
	vs := []Variant{{ID: 0, Factory: slotsOf(1)}}
	r, err := NewRegistry(vs, WithLogger(log.New(&buf, "", 0)))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	in, _ := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent())
	if err := r.Checkin(in, 7); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
	if r.Free(0) != 0 || in.Pooled() {
		t.Fatalf("instance must not be pooled after failed checkin")
	}
	if !strings.Contains(buf.String(), "unknown variant 7") {
		t.Fatalf("expected log line, got %q", buf.String())
	}
}

func TestCheckinRejectsCrossPooling(t *testing.T) {
	r := newTestRegistry(t, 1, 1)
	in, _ := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent())
	if err := r.Checkin(in, 1); !errors.Is(err, ErrVariantMismatch) {
		t.Fatalf("expected ErrVariantMismatch, got %v", err)
	}
	if r.Free(1) != 0 {
		t.Fatalf("instance leaked into another variant's free-list")
	}
	if err := r.Checkin(in, 0); err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	if err := r.Checkin(in, 0); !errors.Is(err, ErrAlreadyPooled) {
		t.Fatalf("expected ErrAlreadyPooled, got %v", err)
	}
	if r.Free(0) != 1 {
		t.Fatalf("double checkin duplicated the instance")
	}
}

func TestCheckoutUnknownVariant(t *testing.T) {
	r := newTestRegistry(t, 1)
	if _, err := r.Checkout(3, mgl64.Vec3{}, mgl64.QuatIdent()); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant, got %v", err)
	}
	if _, err := r.Checkout(-1, mgl64.Vec3{}, mgl64.QuatIdent()); !errors.Is(err, ErrUnknownVariant) {
		t.Fatalf("expected ErrUnknownVariant for negative id, got %v", err)
	}
}

func TestSetActiveDrivesSlotLifecycle(t *testing.T) {
	r := newTestRegistry(t, 2)
	in, _ := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent())
	in.SetActive(true)
	for i, s := range in.Slots {
		if !s.(*flagSlot).enabled {
			t.Fatalf("slot %d not enabled", i)
		}
	}
	if err := r.Checkin(in, 0); err != nil {
		t.Fatalf("Checkin: %v", err)
	}
	for i, s := range in.Slots {
		if s.(*flagSlot).enabled {
			t.Fatalf("slot %d still enabled after checkin", i)
		}
	}
}

func TestApplyPatternTruncates(t *testing.T) {
	r := newTestRegistry(t, 3)
	in, _ := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent())
	if n := in.ApplyPattern([]bool{true, true, true, true, true}); n != 3 {
		t.Fatalf("ApplyPattern wrote %d, want 3", n)
	}
	in.Slots[2].SetPlaced(false)
	if n := in.ApplyPattern([]bool{false}); n != 1 {
		t.Fatalf("ApplyPattern wrote %d, want 1", n)
	}
	got := in.PlacedPattern()
	if got[0] || !got[1] || got[2] {
		t.Fatalf("pattern = %v, want [false true false]", got)
	}
}

func TestReleaseTearsDownEverything(t *testing.T) {
	r := newTestRegistry(t, 1)
	a, _ := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent())
	b, _ := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent())
	a.SetActive(true)
	_ = r.Checkin(b, 0)

	r.Release()
	if !a.Released() || !b.Released() || a.Active() {
		t.Fatalf("release must deactivate and release every instance")
	}
	if len(r.Instances()) != 0 || len(r.FreeInstances()) != 0 {
		t.Fatalf("registry still holds instances after release")
	}
	if _, err := r.Checkout(0, mgl64.Vec3{}, mgl64.QuatIdent()); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
	r.Release()
}

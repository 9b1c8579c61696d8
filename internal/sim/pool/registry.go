package pool

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

var (
	ErrEmptyVariantList = errors.New("pool: no chunk variants registered")
	ErrUnknownVariant   = errors.New("pool: unknown chunk variant")
	ErrVariantMismatch  = errors.New("pool: instance belongs to another variant")
	ErrAlreadyPooled    = errors.New("pool: instance already pooled")
	ErrReleased         = errors.New("pool: registry released")
)

// variantPool is the FIFO free-list for one variant.
type variantPool struct {
	variant Variant

	free []*Instance

	slotCount  int
	discovered bool
	created    int
	checkouts  uint64
	reuses     uint64
}

func (p *variantPool) dequeue() *Instance {
	in := p.free[0]
	p.free[0] = nil
	p.free = p.free[1:]
	return in
}

// Registry resolves variant ids to their pools and owns every instance it
// has ever created. It is not safe for concurrent use.
type Registry struct {
	log   *log.Logger
	pools []*variantPool

	instances []*Instance
	released  bool
}

type Option func(*Registry)

func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry registers variants in order. Variant ids are their positions.
func NewRegistry(variants []Variant, opts ...Option) (*Registry, error) {
	if len(variants) == 0 {
		return nil, ErrEmptyVariantList
	}
	r := &Registry{
		log:   log.New(io.Discard, "", 0),
		pools: make([]*variantPool, 0, len(variants)),
	}
	for _, o := range opts {
		o(r)
	}
	for i, v := range variants {
		if v.ID != i {
			return nil, fmt.Errorf("pool: variant %q has id %d at index %d", v.Name, v.ID, i)
		}
		if v.Factory == nil {
			return nil, fmt.Errorf("pool: variant %d (%s) has no factory", i, v.Name)
		}
		r.pools = append(r.pools, &variantPool{variant: v})
	}
	return r, nil
}

func (r *Registry) Len() int { return len(r.pools) }

func (r *Registry) pool(id int) (*variantPool, bool) {
	if id < 0 || id >= len(r.pools) {
		return nil, false
	}
	return r.pools[id], true
}

func (r *Registry) Variant(id int) (Variant, bool) {
	p, ok := r.pool(id)
	if !ok {
		return Variant{}, false
	}
	return p.variant, true
}

// Checkout hands out an instance of variant id placed at pos/rot. A pooled
// instance is reused when available; its slot state is left as it was.
// Otherwise a new instance is built from the variant factory.
func (r *Registry) Checkout(id int, pos mgl64.Vec3, rot mgl64.Quat) (*Instance, error) {
	if r.released {
		return nil, ErrReleased
	}
	p, ok := r.pool(id)
	if !ok {
		return nil, fmt.Errorf("checkout variant %d: %w", id, ErrUnknownVariant)
	}
	p.checkouts++
	if len(p.free) > 0 {
		in := p.dequeue()
		in.pooled = false
		in.place(pos, rot)
		p.reuses++
		return in, nil
	}

	slots := p.variant.Factory()
	if !p.discovered {
		p.slotCount = len(slots)
		p.discovered = true
	}
	in := &Instance{
		ID:      uuid.New(),
		Variant: id,
		Slots:   slots,
	}
	in.place(pos, rot)
	p.created++
	r.instances = append(r.instances, in)
	return in, nil
}

// Checkin deactivates in and queues it on variant id's free-list. On error
// the instance is not queued anywhere; the caller must drop it.
func (r *Registry) Checkin(in *Instance, id int) error {
	if in == nil {
		return nil
	}
	if r.released {
		return ErrReleased
	}
	p, ok := r.pool(id)
	if !ok {
		r.log.Printf("pool: checkin of instance %s with unknown variant %d; instance dropped", in.ID, id)
		return fmt.Errorf("checkin variant %d: %w", id, ErrUnknownVariant)
	}
	if in.Variant != id {
		r.log.Printf("pool: instance %s of variant %d returned to variant %d; instance dropped", in.ID, in.Variant, id)
		return fmt.Errorf("checkin variant %d: %w", id, ErrVariantMismatch)
	}
	if in.pooled {
		return fmt.Errorf("checkin instance %s: %w", in.ID, ErrAlreadyPooled)
	}
	in.SetActive(false)
	in.pooled = true
	p.free = append(p.free, in)
	return nil
}

// SlotCount is the slot count discovered from the first instance of variant
// id. ok is false until one has been built.
func (r *Registry) SlotCount(id int) (n int, ok bool) {
	p, found := r.pool(id)
	if !found || !p.discovered {
		return 0, false
	}
	return p.slotCount, true
}

func (r *Registry) Free(id int) int {
	if p, ok := r.pool(id); ok {
		return len(p.free)
	}
	return 0
}

func (r *Registry) Created(id int) int {
	if p, ok := r.pool(id); ok {
		return p.created
	}
	return 0
}

// Instances returns every instance created so far, in creation order.
func (r *Registry) Instances() []*Instance {
	return append([]*Instance(nil), r.instances...)
}

// FreeInstances returns the union of all free-lists.
func (r *Registry) FreeInstances() []*Instance {
	var out []*Instance
	for _, p := range r.pools {
		out = append(out, p.free...)
	}
	return out
}

type VariantStats struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Slots     int    `json:"slots"`
	Free      int    `json:"free"`
	Created   int    `json:"created"`
	Checkouts uint64 `json:"checkouts"`
	Reuses    uint64 `json:"reuses"`
}

func (r *Registry) Stats() []VariantStats {
	out := make([]VariantStats, 0, len(r.pools))
	for i, p := range r.pools {
		out = append(out, VariantStats{
			ID:        i,
			Name:      p.variant.Name,
			Slots:     p.slotCount,
			Free:      len(p.free),
			Created:   p.created,
			Checkouts: p.checkouts,
			Reuses:    p.reuses,
		})
	}
	return out
}

// Release tears the registry down: every instance it created, pooled or
// active, is deactivated and marked released. Further checkouts fail.
func (r *Registry) Release() {
	if r.released {
		return
	}
	for _, in := range r.instances {
		in.SetActive(false)
		in.pooled = false
		in.released = true
	}
	for _, p := range r.pools {
		clear(p.free)
		p.free = nil
	}
	r.instances = nil
	r.released = true
}

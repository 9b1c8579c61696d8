package tuning

import (
	"chunkstream.ai/internal/sim/decor"
	"chunkstream.ai/internal/sim/pool"
)

// BuildVariants turns the configured variant specs into pool variants whose
// slots roll their placement from one roller seeded with Seed.
func (t Tuning) BuildVariants() []pool.Variant {
	roll := decor.NewRoller(uint64(t.Seed))
	out := make([]pool.Variant, 0, len(t.Variants))
	for i, v := range t.Variants {
		out = append(out, pool.Variant{
			ID:      i,
			Name:    v.Name,
			Factory: decor.ChanceFactory(v.Slots, v.PlacedChance, roll),
		})
	}
	return out
}

// VariantNames lists variant names by id.
func (t Tuning) VariantNames() []string {
	out := make([]string, len(t.Variants))
	for i, v := range t.Variants {
		out[i] = v.Name
	}
	return out
}

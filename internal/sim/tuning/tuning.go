package tuning

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"chunkstream.ai/internal/sim/grid"
)

type Tuning struct {
	WorldID          string  `yaml:"world_id" toml:"world_id" json:"world_id"`
	TickRateHz       int     `yaml:"tick_rate_hz" toml:"tick_rate_hz" json:"tick_rate_hz"`
	EdgeLength       float64 `yaml:"edge_length" toml:"edge_length" json:"edge_length"`
	ViewDistance     int     `yaml:"view_distance" toml:"view_distance" json:"view_distance"`
	PlacementY       float64 `yaml:"placement_y" toml:"placement_y" json:"placement_y"`
	Seed             int64   `yaml:"seed" toml:"seed" json:"seed"`
	ObserverTag      string  `yaml:"observer_tag" toml:"observer_tag" json:"observer_tag"`
	StrictInvariants bool    `yaml:"strict_invariants" toml:"strict_invariants" json:"strict_invariants"`

	Variants []VariantSpec `yaml:"variants" toml:"variants" json:"variants"`
	Walker   WalkerSpec    `yaml:"walker" toml:"walker" json:"walker"`
}

// VariantSpec describes one chunk template. Slots is only used to build the
// factory; the registry still discovers the count from the first instance.
type VariantSpec struct {
	Name         string  `yaml:"name" toml:"name" json:"name"`
	Slots        int     `yaml:"slots" toml:"slots" json:"slots"`
	PlacedChance float64 `yaml:"placed_chance" toml:"placed_chance" json:"placed_chance"`
}

// WalkerSpec drives the tagged observer in the server. Speed is in world
// units per second; waypoints are visited in order.
type WalkerSpec struct {
	Start     []float64   `yaml:"start" toml:"start" json:"start"`
	Speed     float64     `yaml:"speed" toml:"speed" json:"speed"`
	Waypoints [][]float64 `yaml:"waypoints" toml:"waypoints" json:"waypoints"`
	Loop      bool        `yaml:"loop" toml:"loop" json:"loop"`
}

func Defaults() Tuning {
	return Tuning{
		WorldID:      "world_1",
		TickRateHz:   20,
		EdgeLength:   6,
		ViewDistance: 5,
		Seed:         1337,
		ObserverTag:  "Player",
		Variants: []VariantSpec{
			{Name: "meadow", Slots: 4, PlacedChance: 10},
		},
		Walker: WalkerSpec{
			Start: []float64{0, 0, 0},
			Speed: 4,
		},
	}
}

// Load reads a tuning file. Files ending in .toml are parsed as TOML, all
// others as YAML. Missing fields keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("%s: %w", name, err)
		}
	default:
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("%s: %w", name, err)
		}
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.WorldID = strings.TrimSpace(t.WorldID)
	if t.WorldID == "" {
		t.WorldID = "world_1"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	t.ObserverTag = strings.TrimSpace(t.ObserverTag)
	if t.ObserverTag == "" {
		t.ObserverTag = "Player"
	}
	for i := range t.Variants {
		t.Variants[i].Name = strings.TrimSpace(t.Variants[i].Name)
		if t.Variants[i].Name == "" {
			t.Variants[i].Name = fmt.Sprintf("variant_%d", i)
		}
	}
	if len(t.Walker.Start) == 0 {
		t.Walker.Start = []float64{0, 0, 0}
	}
}

func (t Tuning) Validate() error {
	if len(t.Variants) == 0 {
		return errors.New("variants: at least one chunk variant is required")
	}
	if !(t.EdgeLength > 0) {
		return fmt.Errorf("edge_length must be positive, got %v", t.EdgeLength)
	}
	if t.ViewDistance < 0 {
		return fmt.Errorf("view_distance must be >= 0, got %d", t.ViewDistance)
	}
	for i, v := range t.Variants {
		if v.Slots < 0 {
			return fmt.Errorf("variants[%d] (%s): slots must be >= 0", i, v.Name)
		}
		if v.PlacedChance < 0 || v.PlacedChance > 100 {
			return fmt.Errorf("variants[%d] (%s): placed_chance must be within 0..100, got %v", i, v.Name, v.PlacedChance)
		}
	}
	if len(t.Walker.Start) != 3 {
		return fmt.Errorf("walker.start must have 3 components, got %d", len(t.Walker.Start))
	}
	if t.Walker.Speed < 0 {
		return fmt.Errorf("walker.speed must be >= 0, got %v", t.Walker.Speed)
	}
	if err := grid.CheckWorld(mgl64.Vec3(t.Walker.Start), t.EdgeLength, t.ViewDistance); err != nil {
		return fmt.Errorf("walker.start: %w", err)
	}
	for i, wp := range t.Walker.Waypoints {
		if len(wp) != 3 {
			return fmt.Errorf("walker.waypoints[%d] must have 3 components, got %d", i, len(wp))
		}
		if err := grid.CheckWorld(mgl64.Vec3(wp), t.EdgeLength, t.ViewDistance); err != nil {
			return fmt.Errorf("walker.waypoints[%d]: %w", i, err)
		}
	}
	return nil
}

package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadRepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.EdgeLength != 6 || tu.ViewDistance != 5 {
		t.Fatalf("grid = %v/%d", tu.EdgeLength, tu.ViewDistance)
	}
	if len(tu.Variants) != 3 || tu.Variants[1].Name != "grove" {
		t.Fatalf("variants = %+v", tu.Variants)
	}
	if !tu.Walker.Loop || len(tu.Walker.Waypoints) != 4 {
		t.Fatalf("walker = %+v", tu.Walker)
	}
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	p := writeFile(t, "t.yaml", "view_distance: 2\nvariants:\n  - slots: 3\n    placed_chance: 50\n")
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.ViewDistance != 2 || tu.EdgeLength != 6 || tu.TickRateHz != 20 {
		t.Fatalf("unexpected tuning %+v", tu)
	}
	if tu.Variants[0].Name != "variant_0" {
		t.Fatalf("unnamed variant not normalized: %q", tu.Variants[0].Name)
	}
}

func TestLoadTOML(t *testing.T) {
	body := `
world_id = "toml_world"
edge_length = 8.0
view_distance = 1
seed = 42
observer_tag = "Scout"

[[variants]]
name = "plain"
slots = 2
placed_chance = 100.0

[walker]
start = [1.0, 0.0, 1.0]
speed = 2.5
waypoints = [[16.0, 0.0, 1.0]]
`
	tu, err := Load(writeFile(t, "t.toml", body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.WorldID != "toml_world" || tu.EdgeLength != 8 || tu.ObserverTag != "Scout" || tu.Seed != 42 {
		t.Fatalf("unexpected tuning %+v", tu)
	}
	if len(tu.Variants) != 1 || tu.Variants[0].PlacedChance != 100 {
		t.Fatalf("variants = %+v", tu.Variants)
	}
	if tu.Walker.Speed != 2.5 || len(tu.Walker.Waypoints) != 1 || tu.Walker.Waypoints[0][0] != 16 {
		t.Fatalf("walker = %+v", tu.Walker)
	}
}

func TestLoadRejectsEmptyVariantList(t *testing.T) {
	_, err := Load(writeFile(t, "t.yaml", "variants: []\n"))
	if err == nil || !strings.Contains(err.Error(), "at least one chunk variant") {
		t.Fatalf("expected empty variant error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Tuning)
		want string
	}{
		{"edge", func(tu *Tuning) { tu.EdgeLength = 0 }, "edge_length"},
		{"view", func(tu *Tuning) { tu.ViewDistance = -1 }, "view_distance"},
		{"chance", func(tu *Tuning) { tu.Variants[0].PlacedChance = 101 }, "placed_chance"},
		{"slots", func(tu *Tuning) { tu.Variants[0].Slots = -2 }, "slots"},
		{"start", func(tu *Tuning) { tu.Walker.Start = []float64{1} }, "walker.start"},
		{"waypoint", func(tu *Tuning) { tu.Walker.Waypoints = [][]float64{{1, 2}} }, "waypoints[0]"},
		{"start range", func(tu *Tuning) { tu.Walker.Start = []float64{1e300, 0, 0} }, "walker.start: grid: position outside"},
		{"waypoint range", func(tu *Tuning) { tu.Walker.Waypoints = [][]float64{{0, 0, 0}, {0, 0, -1e300}} }, "waypoints[1]: grid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tu := Defaults()
			tc.mut(&tu)
			err := tu.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
	if err := func() error { tu := Defaults(); return tu.Validate() }(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestBuildVariantsDeterministic(t *testing.T) {
	tu := Defaults()
	tu.Variants = []VariantSpec{{Name: "a", Slots: 16, PlacedChance: 50}, {Name: "b", Slots: 1}}

	pattern := func() []bool {
		vs := tu.BuildVariants()
		if len(vs) != 2 || vs[1].ID != 1 || vs[1].Name != "b" {
			t.Fatalf("variants = %+v", vs)
		}
		slots := vs[0].Factory()
		out := make([]bool, len(slots))
		for i, s := range slots {
			s.(interface{ Enable() }).Enable()
			out[i] = s.IsPlaced()
		}
		return out
	}
	a, b := pattern(), pattern()
	if len(a) != 16 {
		t.Fatalf("slots = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different placement at %d", i)
		}
	}
	if names := tu.VariantNames(); names[0] != "a" || names[1] != "b" {
		t.Fatalf("names = %v", names)
	}
}

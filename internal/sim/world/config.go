package world

import (
	"github.com/go-gl/mathgl/mgl64"

	"chunkstream.ai/internal/sim/stream"
	"chunkstream.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID         string
	TickRateHz int
	Seed       int64

	Stream stream.Config
	Walker WalkerConfig
}

type WalkerConfig struct {
	Start     mgl64.Vec3
	Speed     float64
	Waypoints []mgl64.Vec3
	Loop      bool
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.Stream.ObserverTag == "" {
		c.Stream.ObserverTag = "Player"
	}
}

// ConfigFromTuning maps a validated tuning file onto the world config.
func ConfigFromTuning(t tuning.Tuning) WorldConfig {
	cfg := WorldConfig{
		ID:         t.WorldID,
		TickRateHz: t.TickRateHz,
		Seed:       t.Seed,
		Stream: stream.Config{
			ViewDistance: t.ViewDistance,
			EdgeLength:   t.EdgeLength,
			PlacementY:   t.PlacementY,
			ObserverTag:  t.ObserverTag,
			Seed:         uint64(t.Seed),
			Strict:       t.StrictInvariants,
		},
		Walker: WalkerConfig{
			Start: vec3(t.Walker.Start),
			Speed: t.Walker.Speed,
			Loop:  t.Walker.Loop,
		},
	}
	for _, wp := range t.Walker.Waypoints {
		cfg.Walker.Waypoints = append(cfg.Walker.Waypoints, vec3(wp))
	}
	return cfg
}

func vec3(v []float64) mgl64.Vec3 {
	var out mgl64.Vec3
	copy(out[:], v)
	return out
}

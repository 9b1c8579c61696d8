package stream

import (
	"github.com/google/uuid"

	"chunkstream.ai/internal/sim/grid"
	"chunkstream.ai/internal/sim/pool"
)

type EventKind string

const (
	EventEvict    EventKind = "EVICT"
	EventActivate EventKind = "ACTIVATE"
)

// Event is one ownership transfer between the active set and a free-list.
type Event struct {
	Kind       EventKind
	Cell       grid.Coord
	Variant    int
	Instance   uuid.UUID
	Slots      []bool
	FirstVisit bool
}

// Diff is the outcome of one tick. Changed is false when the observer stayed
// in the same cell; Evicted is always processed before Activated.
type Diff struct {
	Cell      grid.Coord
	Changed   bool
	Evicted   []Event
	Activated []Event
}

func (d Diff) Empty() bool { return len(d.Evicted) == 0 && len(d.Activated) == 0 }

type Stats struct {
	Active int `json:"active"`
	Known  int `json:"known"`

	Crossings     uint64 `json:"crossings"`
	Activations   uint64 `json:"activations"`
	Reactivations uint64 `json:"reactivations"`
	FirstVisits   uint64 `json:"first_visits"`
	Evictions     uint64 `json:"evictions"`
	LocatorMisses uint64 `json:"locator_misses"`
	Violations    uint64 `json:"violations"`

	Pools []pool.VariantStats `json:"pools"`
}

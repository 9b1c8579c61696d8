package observerproto

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Version is the observer protocol version.
const Version = "1.0"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// IncludeSlots adds the slot pattern to ACTIVATE events.
	IncludeSlots bool `json:"include_slots,omitempty"`
	// EveryTick streams a TICK per world tick; otherwise only ticks with events are sent.
	EveryTick bool `json:"every_tick,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Variants        []string    `json:"variants"`

	Cell   [2]int   `json:"cell"`
	Active [][2]int `json:"active"`
	Digest string   `json:"digest"`
}

type WorldParams struct {
	TickRateHz   int     `json:"tick_rate_hz"`
	EdgeLength   float64 `json:"edge_length"`
	ViewDistance int     `json:"view_distance"`
	PlacementY   float64 `json:"placement_y"`
	ObserverTag  string  `json:"observer_tag"`
	Seed         int64   `json:"seed"`
}

// Server -> Client.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Cell     [2]int     `json:"cell"`
	Observer [3]float64 `json:"observer"`
	Changed  bool       `json:"changed"`
	Active   int        `json:"active"`
	Known    int        `json:"known"`
	Digest   string     `json:"digest"`

	Events []ChunkEvent `json:"events,omitempty"`
}

type ChunkEvent struct {
	Kind       string `json:"kind"`
	Cell       [2]int `json:"cell"`
	Variant    int    `json:"variant"`
	Instance   string `json:"instance"`
	Slots      []bool `json:"slots,omitempty"`
	FirstVisit bool   `json:"first_visit,omitempty"`
}

//go:embed schemas/subscribe.schema.json
var subscribeSchemaJSON string

//go:embed schemas/tick.schema.json
var tickSchemaJSON string

var (
	schemaOnce      sync.Once
	subscribeSchema *jsonschema.Schema
	tickSchema      *jsonschema.Schema
	schemaErr       error
)

func loadSchemas() {
	subscribeSchema, schemaErr = jsonschema.CompileString("subscribe.schema.json", subscribeSchemaJSON)
	if schemaErr != nil {
		return
	}
	tickSchema, schemaErr = jsonschema.CompileString("tick.schema.json", tickSchemaJSON)
}

// ParseSubscribe validates raw against the SUBSCRIBE schema and checks the
// protocol version before decoding it.
func ParseSubscribe(raw []byte) (SubscribeMsg, error) {
	var sub SubscribeMsg
	if err := validate(raw, func() *jsonschema.Schema { return subscribeSchema }); err != nil {
		return sub, err
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return sub, err
	}
	if sub.ProtocolVersion != Version {
		return sub, fmt.Errorf("unsupported protocol_version %q (want %q)", sub.ProtocolVersion, Version)
	}
	return sub, nil
}

// ValidateTick checks an encoded TICK message against its schema.
func ValidateTick(raw []byte) error {
	return validate(raw, func() *jsonschema.Schema { return tickSchema })
}

func validate(raw []byte, pick func() *jsonschema.Schema) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return pick().Validate(v)
}

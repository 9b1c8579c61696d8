package world

import (
	"encoding/json"

	"chunkstream.ai/internal/observerproto"
)

// ObserverJoinRequest registers a read-only observer session that receives
// TICK messages on Out. All observer state is maintained by the world loop goroutine.
type ObserverJoinRequest struct {
	SessionID    string
	Out          chan []byte
	IncludeSlots bool
	EveryTick    bool
}

// ObserverSubscribeRequest updates an existing observer session subscription settings.
type ObserverSubscribeRequest struct {
	SessionID    string
	IncludeSlots bool
	EveryTick    bool
}

type observerClient struct {
	id           string
	out          chan []byte
	includeSlots bool
	everyTick    bool
}

func (w *World) handleObserverJoin(req ObserverJoinRequest) {
	if req.SessionID == "" || req.Out == nil {
		return
	}
	// Replace existing session id if any.
	if old := w.observers[req.SessionID]; old != nil {
		close(old.out)
	}
	w.observers[req.SessionID] = &observerClient{
		id:           req.SessionID,
		out:          req.Out,
		includeSlots: req.IncludeSlots,
		everyTick:    req.EveryTick,
	}
}

func (w *World) handleObserverSubscribe(req ObserverSubscribeRequest) {
	c := w.observers[req.SessionID]
	if c == nil {
		return
	}
	c.includeSlots = req.IncludeSlots
	c.everyTick = req.EveryTick
}

func (w *World) handleObserverLeave(id string) {
	c := w.observers[id]
	if c == nil {
		return
	}
	close(c.out)
	delete(w.observers, id)
}

func (w *World) stepObservers(entry TickLogEntry) {
	if len(w.observers) == 0 {
		return
	}
	quiet := len(entry.Evicted) == 0 && len(entry.Activated) == 0
	var withSlots, bare []byte
	for _, c := range w.observers {
		if quiet && !c.everyTick {
			continue
		}
		var b []byte
		if c.includeSlots {
			if withSlots == nil {
				withSlots = w.encodeTick(entry, true)
			}
			b = withSlots
		} else {
			if bare == nil {
				bare = w.encodeTick(entry, false)
			}
			b = bare
		}
		if b != nil {
			sendLatest(c.out, b)
		}
	}
}

func (w *World) encodeTick(entry TickLogEntry, slots bool) []byte {
	msg := observerproto.TickMsg{
		Type:            "TICK",
		ProtocolVersion: observerproto.Version,
		Tick:            entry.Tick,
		Cell:            entry.Cell,
		Observer:        entry.Observer,
		Changed:         entry.Changed,
		Active:          entry.Active,
		Known:           entry.Known,
		Digest:          entry.Digest,
	}
	add := func(kind string, evs []RecordedChunkEvent) {
		for _, ev := range evs {
			ce := observerproto.ChunkEvent{
				Kind:       kind,
				Cell:       ev.Cell,
				Variant:    ev.Variant,
				Instance:   ev.Instance,
				FirstVisit: ev.FirstVisit,
			}
			if slots {
				ce.Slots = ev.Slots
			}
			msg.Events = append(msg.Events, ce)
		}
	}
	add("EVICT", entry.Evicted)
	add("ACTIVATE", entry.Activated)
	b, err := json.Marshal(msg)
	if err != nil {
		w.log.Printf("world %s: encode tick %d: %v", w.cfg.ID, entry.Tick, err)
		return nil
	}
	return b
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

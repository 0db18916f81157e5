package signaling

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Relay drop causes. Exposed to the abuse guard as suspicion reasons and to
// metrics as the drop label, never to the requesting endpoint.
var (
	errSourceNotInRoom    = errors.New("source endpoint is not in the session room")
	errTargetNotConnected = errors.New("target endpoint is not connected")
	errTargetNotInRoom    = errors.New("target endpoint is not in the session room")
)

// Sink delivers a named event to one endpoint's outbound queue. Delivery is
// at-most-once and best effort: emitting to a disconnected endpoint is a
// no-op.
type Sink interface {
	Emit(endpointID, event string, payload interface{})
}

// Router forwards opaque negotiation payloads between the two members of a
// session room. Room membership is the only authorization it consults, and
// it never inspects the payload it carries.
type Router struct {
	mux  *Multiplexer
	sink Sink
}

// NewRouter wires a router over connection state and an outbound sink.
func NewRouter(mux *Multiplexer, sink Sink) *Router {
	return &Router{mux: mux, sink: sink}
}

// Relay emits signal{from, data} exactly once to the target when the source
// is in the session's room, the target is connected, and the target is in
// the same room. Each failed check returns a distinct error and produces no
// outbound event anywhere; callers must stay silent toward the source.
func (r *Router) Relay(sessionID, from, to string, data json.RawMessage) error {
	if !r.mux.InRoom(sessionID, from) {
		relayDropsTotal.WithLabelValues("source_not_in_room").Inc()
		return errSourceNotInRoom
	}
	if !r.mux.Connected(to) {
		relayDropsTotal.WithLabelValues("target_not_connected").Inc()
		return errTargetNotConnected
	}
	if !r.mux.InRoom(sessionID, to) {
		relayDropsTotal.WithLabelValues("target_not_in_room").Inc()
		return errTargetNotInRoom
	}
	r.sink.Emit(to, EventSignal, &SignalForward{From: from, Data: data})
	signalsRelayedTotal.Inc()
	return nil
}

// Package upstream defines the boundary to the host application's channel to
// its server. The relay hands envelopes across this boundary; transport and
// wire semantics beyond it are the host's concern.
package upstream

import "encoding/json"

// GatewayOrigin tags envelopes carrying signaling relayed from the local
// gateway's control channel.
const GatewayOrigin = "janus"

// Envelope wraps an opaque signaling payload with its origin tag. The payload
// is never interpreted here; it is whatever the gateway emitted.
type Envelope struct {
	Origin  string
	Payload json.RawMessage
}

// NewGatewayEnvelope wraps a raw gateway message for upstream delivery.
func NewGatewayEnvelope(payload []byte) Envelope {
	return Envelope{Origin: GatewayOrigin, Payload: json.RawMessage(payload)}
}

// MarshalJSON renders the envelope as {"<origin>": <payload>}, the shape the
// host's server expects.
func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]json.RawMessage{e.Origin: e.Payload})
}

// Sink consumes envelopes bound for the host's server. Implementations must
// be goroutine-safe; Deliver is called from the relay's message pump.
type Sink interface {
	Deliver(envelope Envelope)
}

// ChannelSink buffers delivered envelopes on a channel, dropping when the
// consumer falls behind. Signaling is best-effort end to end, so a drop here
// is a logged non-event, not an error.
type ChannelSink struct {
	ch chan Envelope
}

// NewChannelSink creates a sink buffering up to size envelopes.
func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan Envelope, size)}
}

// Deliver enqueues the envelope, dropping it if the buffer is full.
func (s *ChannelSink) Deliver(envelope Envelope) {
	select {
	case s.ch <- envelope:
	default:
	}
}

// Envelopes exposes the delivery stream to the consumer.
func (s *ChannelSink) Envelopes() <-chan Envelope {
	return s.ch
}

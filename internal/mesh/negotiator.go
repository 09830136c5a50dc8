// Package mesh keeps the local view of a full-mesh call: who is in the
// room, which peer connection attempts are live toward each of them, and
// what media they are sending. All state is owned by the Mesh loop.
package mesh

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
)

// Track is the part of a remote media track the mesh cares about.
type Track interface {
	ID() string
	StreamID() string
}

// NegotiatorEvents are raised by a Negotiator from any goroutine.
type NegotiatorEvents struct {
	OnSignal  func(payload json.RawMessage)
	OnConnect func()
	OnData    func(data []byte)
	OnClose   func(err error)
	OnTrack   func(t Track)
}

type NegotiatorOptions struct {
	Remote    domain.UserID
	Initiator bool
	Events    NegotiatorEvents
}

// Negotiator is one peer connection capable of exchanging opaque
// negotiation payloads. A Close from the local side must not raise OnClose.
type Negotiator interface {
	Begin() error
	AcceptSignal(payload json.RawMessage) error
	SendData(data []byte) error
	Close() error
}

type NegotiatorFactory func(opts NegotiatorOptions) (Negotiator, error)

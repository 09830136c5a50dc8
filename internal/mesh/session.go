package mesh

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrNotConnected  = errors.New("session not connected")
)

type State int

const (
	StateCreated State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonFailed
	ReasonRemoteEnded
	ReasonSuperseded
	ReasonLocal
	ReasonDeparted
)

func (r CloseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonFailed:
		return "failed"
	case ReasonRemoteEnded:
		return "remote-ended"
	case ReasonSuperseded:
		return "superseded"
	case ReasonLocal:
		return "local"
	case ReasonDeparted:
		return "departed"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// SessionHooks connect a PeerSession to the rest of the mesh. They run on
// the goroutine that drives the session.
type SessionHooks struct {
	Signal    func(s *PeerSession, payload json.RawMessage)
	Connected func(s *PeerSession)
	Closed    func(s *PeerSession)
	Track     func(s *PeerSession, t Track)
	Data      func(s *PeerSession, data []byte)
}

// PeerSession is one connection attempt toward one remote participant.
// It is not safe for concurrent use; negotiator events are handed to post
// so that the owner can serialize them with everything else.
type PeerSession struct {
	Remote    domain.UserID
	Attempt   string
	Initiator bool

	state  State
	reason CloseReason
	neg    Negotiator
	hooks  SessionHooks
}

func NewPeerSession(
	remote domain.UserID,
	attempt string,
	initiator bool,
	factory NegotiatorFactory,
	hooks SessionHooks,
	post func(func()),
) (*PeerSession, error) {
	s := &PeerSession{
		Remote:    remote,
		Attempt:   attempt,
		Initiator: initiator,
		hooks:     hooks,
	}
	neg, err := factory(NegotiatorOptions{
		Remote:    remote,
		Initiator: initiator,
		Events: NegotiatorEvents{
			OnSignal:  func(p json.RawMessage) { post(func() { s.onSignal(p) }) },
			OnConnect: func() { post(s.onConnect) },
			OnData:    func(d []byte) { post(func() { s.onData(d) }) },
			OnClose:   func(err error) { post(func() { s.onClose(err) }) },
			OnTrack:   func(t Track) { post(func() { s.onTrack(t) }) },
		},
	})
	if err != nil {
		return nil, fmt.Errorf("negotiator for %s/%s: %w", remote, attempt, err)
	}
	s.neg = neg
	return s, nil
}

func (s *PeerSession) State() State        { return s.state }
func (s *PeerSession) Reason() CloseReason { return s.reason }
func (s *PeerSession) Connected() bool     { return s.state == StateConnected }
func (s *PeerSession) Closed() bool        { return s.state == StateClosed }

// Start begins negotiation. A failure closes the session as Failed.
func (s *PeerSession) Start() error {
	if s.state != StateCreated {
		return nil
	}
	s.state = StateNegotiating
	if err := s.neg.Begin(); err != nil {
		s.Close(ReasonFailed)
		return fmt.Errorf("begin %s/%s: %w", s.Remote, s.Attempt, err)
	}
	return nil
}

// HandleSignal feeds an inbound payload to the negotiator. Payloads for a
// closed session are dropped.
func (s *PeerSession) HandleSignal(payload json.RawMessage) error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if err := s.neg.AcceptSignal(payload); err != nil {
		s.Close(ReasonFailed)
		return fmt.Errorf("accept signal %s/%s: %w", s.Remote, s.Attempt, err)
	}
	return nil
}

func (s *PeerSession) Send(data []byte) error {
	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateConnected:
		return s.neg.SendData(data)
	}
	return ErrNotConnected
}

// Close tears the session down once; later calls are no-ops.
func (s *PeerSession) Close(reason CloseReason) {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.reason = reason
	if s.neg != nil {
		if err := s.neg.Close(); err != nil {
			log.Debug().Err(err).Str("module", "mesh.session").Str("remote", string(s.Remote)).Str("attempt", s.Attempt).Msg("negotiator close")
		}
	}
	log.Info().Str("module", "mesh.session").Str("remote", string(s.Remote)).Str("attempt", s.Attempt).Stringer("reason", reason).Msg("session closed")
	if s.hooks.Closed != nil {
		s.hooks.Closed(s)
	}
}

func (s *PeerSession) onSignal(payload json.RawMessage) {
	if s.state == StateClosed || s.hooks.Signal == nil {
		return
	}
	s.hooks.Signal(s, payload)
}

func (s *PeerSession) onConnect() {
	if s.state == StateClosed || s.state == StateConnected {
		return
	}
	s.state = StateConnected
	log.Info().Str("module", "mesh.session").Str("remote", string(s.Remote)).Str("attempt", s.Attempt).Msg("session connected")
	if s.hooks.Connected != nil {
		s.hooks.Connected(s)
	}
}

func (s *PeerSession) onClose(err error) {
	reason := ReasonRemoteEnded
	if err != nil {
		reason = ReasonFailed
		log.Warn().Err(err).Str("module", "mesh.session").Str("remote", string(s.Remote)).Str("attempt", s.Attempt).Msg("negotiator failed")
	}
	s.Close(reason)
}

func (s *PeerSession) onTrack(t Track) {
	if s.state == StateClosed || s.hooks.Track == nil {
		return
	}
	s.hooks.Track(s, t)
}

func (s *PeerSession) onData(data []byte) {
	if s.state == StateClosed || s.hooks.Data == nil {
		return
	}
	s.hooks.Data(s, data)
}

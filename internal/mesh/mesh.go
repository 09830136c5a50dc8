package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrStopped   = errors.New("mesh stopped")
	ErrNotInRoom = errors.New("not in a room")
	ErrInRoom    = errors.New("already in a room")
	ErrUnknown   = errors.New("unknown participant")
)

// Signaler is the outbound half of the gateway connection.
type Signaler interface {
	JoinRoom(room string) error
	LeaveRoom(room string) error
	// Call announces attempt to target; onAck runs once the gateway has
	// relayed it, on an arbitrary goroutine.
	Call(target domain.UserID, attempt string, onAck func()) error
	Signal(target domain.UserID, attempt string, payload json.RawMessage) error
	Message(text string, command *string) error
}

// Observer receives state changes. Callbacks run on the Mesh loop; they
// must not block or call back into the Mesh.
type Observer struct {
	Presence func(self domain.User, participants []Participant)
	Stream   func(remote domain.UserID, s *Stream)
	Message  func(from domain.User, msg ChatMessage)
	Data     func(from domain.UserID, data []byte)
}

// Mesh is the client side actor. Gateway messages, negotiator events and
// API calls are queued and handled one at a time on the Run goroutine.
type Mesh struct {
	sig      Signaler
	factory  NegotiatorFactory
	conns    *ConnectionRegistry
	tracks   *TrackAggregator
	presence *PresenceView
	observer Observer

	self domain.User
	room string
	// joined is set once room-users for room has arrived.
	joined bool

	box     *mailbox
	stopped chan struct{}

	newAttemptID func() string
	now          func() time.Time
}

func New(sig Signaler, factory NegotiatorFactory, observer Observer) *Mesh {
	conns := NewConnectionRegistry()
	tracks := NewTrackAggregator()
	m := &Mesh{
		sig:          sig,
		factory:      factory,
		conns:        conns,
		tracks:       tracks,
		presence:     NewPresenceView(conns, tracks),
		observer:     observer,
		box:          newMailbox(),
		stopped:      make(chan struct{}),
		newAttemptID: uuid.NewString,
		now:          time.Now,
	}
	tracks.OnChange = func(remote domain.UserID, s *Stream) {
		if m.observer.Stream != nil {
			m.observer.Stream(remote, s)
		}
	}
	return m
}

// Run handles queued events until ctx is done. Every session is closed on
// the way out.
func (m *Mesh) Run(ctx context.Context) {
	defer close(m.stopped)
	for {
		select {
		case <-ctx.Done():
			m.box.close()
			m.presence.Reset(ReasonLocal)
			return
		case <-m.box.ready:
			for _, fn := range m.box.drain() {
				fn()
			}
		}
	}
}

func (m *Mesh) post(fn func()) bool {
	return m.box.push(fn)
}

// call runs fn on the loop and waits for its error.
func (m *Mesh) call(fn func() error) error {
	res := make(chan error, 1)
	if !m.post(func() { res <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-res:
		return err
	case <-m.stopped:
		return ErrStopped
	}
}

// Deliver queues one decoded gateway message.
func (m *Mesh) Deliver(msg any) {
	m.post(func() { m.handle(msg) })
}

// TransportClosed drops every remote as if each had disconnected.
func (m *Mesh) TransportClosed() {
	m.post(func() {
		log.Warn().Str("module", "mesh").Msg("signaling transport closed")
		m.room = ""
		m.joined = false
		m.presence.Reset(ReasonDeparted)
		m.notify()
	})
}

func (m *Mesh) Join(room string) error {
	return m.call(func() error {
		if m.room != "" {
			return ErrInRoom
		}
		id, err := domain.ParseRoomID(room)
		if err != nil {
			return err
		}
		if err := m.sig.JoinRoom(string(id)); err != nil {
			return fmt.Errorf("join %s: %w", id, err)
		}
		m.room = string(id)
		m.joined = false
		return nil
	})
}

// Leave cancels every session and clears the member list.
func (m *Mesh) Leave() error {
	return m.call(func() error {
		if m.room == "" {
			return ErrNotInRoom
		}
		room := m.room
		m.room = ""
		m.joined = false
		m.presence.Reset(ReasonLocal)
		m.notify()
		if err := m.sig.LeaveRoom(room); err != nil {
			return fmt.Errorf("leave %s: %w", room, err)
		}
		return nil
	})
}

// Redial starts a fresh attempt toward a present participant.
func (m *Mesh) Redial(remote domain.UserID) error {
	return m.call(func() error {
		if !m.presence.Has(remote) {
			return ErrUnknown
		}
		return m.dial(remote)
	})
}

func (m *Mesh) Say(text string, command *string) error {
	return m.call(func() error {
		if m.room == "" {
			return ErrNotInRoom
		}
		return m.sig.Message(text, command)
	})
}

// SendData writes data on every connected session toward remote.
func (m *Mesh) SendData(remote domain.UserID, data []byte) error {
	return m.call(func() error {
		sent := false
		var errs []error
		for _, s := range m.conns.ListSessions(remote) {
			if err := s.Send(data); err != nil {
				errs = append(errs, err)
				continue
			}
			sent = true
		}
		if sent {
			return nil
		}
		if len(errs) == 0 {
			return ErrNotConnected
		}
		return errors.Join(errs...)
	})
}

func (m *Mesh) Participants() []Participant {
	var out []Participant
	_ = m.call(func() error {
		out = m.presence.Snapshot()
		return nil
	})
	return out
}

func (m *Mesh) IsConnected(remote domain.UserID) bool {
	var ok bool
	_ = m.call(func() error {
		ok = m.conns.IsConnected(remote)
		return nil
	})
	return ok
}

func (m *Mesh) Self() domain.User {
	var u domain.User
	_ = m.call(func() error {
		u = m.self
		return nil
	})
	return u
}

func (m *Mesh) handle(msg any) {
	switch v := msg.(type) {
	case *protocol.Welcome:
		m.self = v.User
		m.presence.SetSelf(v.User.ID)
		log.Info().Str("module", "mesh").Str("id", string(v.User.ID)).Str("name", v.User.Name).Msg("welcome")
	case *protocol.RoomUsers:
		m.onRoomUsers(v)
	case *protocol.UserConnected:
		if m.presence.Joined(v.User) {
			m.notify()
		}
	case *protocol.UserDisconnected:
		if m.presence.Left(v.User.ID) {
			m.notify()
		}
	case *protocol.CallReceived:
		m.onCallReceived(v)
	case *protocol.SignalReceived:
		m.onSignalReceived(v)
	case *protocol.MessageReceived:
		if msg, ok := m.presence.SetMessage(v.User.ID, v.Text, v.Command, m.now()); ok && m.observer.Message != nil {
			m.observer.Message(v.User, *msg)
		}
	case *protocol.Error:
		if v.Op == protocol.TypeJoinRoom && m.room != "" && !m.joined {
			log.Warn().Str("module", "mesh").Str("room", m.room).Str("error", v.Error).Msg("join refused")
			m.room = ""
			return
		}
		log.Error().Str("module", "mesh").Str("error", v.Error).Msg("gateway error")
	case *protocol.Ack, *protocol.Pong:
	default:
		log.Debug().Str("module", "mesh").Type("msg", msg).Msg("ignored message")
	}
}

// onRoomUsers applies the member snapshot and calls everyone not already
// connected. Joiners initiate, members already present only answer.
func (m *Mesh) onRoomUsers(v *protocol.RoomUsers) {
	if m.room == "" || string(v.Room) != m.room {
		log.Debug().Str("module", "mesh").Str("room", string(v.Room)).Msg("room-users for another room")
		return
	}
	m.joined = true
	m.presence.ApplySnapshot(v.Users)
	for _, u := range v.Users {
		if u.ID == m.self.ID || m.conns.IsConnected(u.ID) {
			continue
		}
		if err := m.dial(u.ID); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("remote", string(u.ID)).Msg("call failed")
		}
	}
	m.notify()
}

// dial sends a call and opens the initiator session once it is acked.
func (m *Mesh) dial(remote domain.UserID) error {
	attempt := m.newAttemptID()
	log.Debug().Str("module", "mesh").Str("remote", string(remote)).Str("attempt", attempt).Msg("calling")
	return m.sig.Call(remote, attempt, func() {
		m.post(func() {
			if !m.presence.Has(remote) {
				log.Debug().Str("module", "mesh").Str("remote", string(remote)).Msg("ack for departed participant")
				return
			}
			m.open(remote, attempt, true)
		})
	})
}

func (m *Mesh) onCallReceived(v *protocol.CallReceived) {
	if v.Caller == m.self.ID || !m.presence.Has(v.Caller) {
		log.Debug().Str("module", "mesh").Str("caller", string(v.Caller)).Msg("call from unknown participant")
		return
	}
	m.open(v.Caller, v.ID, false)
}

func (m *Mesh) onSignalReceived(v *protocol.SignalReceived) {
	s, ok := m.conns.Get(v.Caller, v.ID)
	if !ok {
		log.Debug().Str("module", "mesh").Str("caller", string(v.Caller)).Str("attempt", v.ID).Msg("signal for unknown session")
		return
	}
	if err := s.HandleSignal(v.Signal); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("caller", string(v.Caller)).Msg("signal rejected")
	}
}

// open creates, registers and starts a session in one loop turn so that
// no signal can arrive for an unregistered attempt.
func (m *Mesh) open(remote domain.UserID, attempt string, initiator bool) {
	s, err := NewPeerSession(remote, attempt, initiator, m.factory, m.hooks(), func(fn func()) { m.post(fn) })
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Msg("create session")
		return
	}
	m.conns.Open(remote, attempt, s)
	if err := s.Start(); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Msg("start session")
	}
	m.notify()
}

func (m *Mesh) hooks() SessionHooks {
	return SessionHooks{
		Signal: func(s *PeerSession, payload json.RawMessage) {
			if err := m.sig.Signal(s.Remote, s.Attempt, payload); err != nil {
				log.Warn().Err(err).Str("module", "mesh").Str("remote", string(s.Remote)).Msg("send signal")
			}
		},
		Connected: func(*PeerSession) { m.notify() },
		Closed: func(s *PeerSession) {
			m.conns.Remove(s.Remote, s.Attempt, s)
			if !m.conns.Has(s.Remote) {
				m.tracks.Forget(s.Remote)
			}
			m.notify()
		},
		Track: func(s *PeerSession, t Track) {
			m.tracks.OnTrack(s.Remote, t, t.StreamID())
			m.notify()
		},
		Data: func(s *PeerSession, data []byte) {
			if m.observer.Data != nil {
				m.observer.Data(s.Remote, data)
			}
		},
	}
}

func (m *Mesh) notify() {
	if m.observer.Presence != nil {
		m.observer.Presence(m.self, m.presence.Snapshot())
	}
}

package app

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

const DefaultQueueSize = 1024

// Gateway is the signaling hub. Connections, inbound messages and
// disconnects are queued and handled one at a time on the goroutine
// running Run, so room membership changes and the broadcasts they cause
// never interleave.
type Gateway struct {
	Registry *Registry
	Rooms    core.RoomRegistry
	Policy   Policy

	events  chan func()
	stopped chan struct{}
	kicks   []core.MemberSession
}

func NewGateway(reg *Registry, rooms core.RoomRegistry, policy Policy, queueSize int) *Gateway {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Gateway{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		events:   make(chan func(), queueSize),
		stopped:  make(chan struct{}),
	}
}

// Run processes queued events until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	defer close(g.stopped)
	log.Info().Str("module", "app.gateway").Msg("gateway loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "app.gateway").Msg("gateway loop stopped")
			return
		case fn := <-g.events:
			fn()
			g.flushKicks()
		}
	}
}

func (g *Gateway) enqueue(fn func()) bool {
	select {
	case g.events <- fn:
		return true
	case <-g.stopped:
		return false
	}
}

// Connect registers a freshly accepted connection and greets it with its
// server assigned identity.
func (g *Gateway) Connect(sess core.MemberSession) {
	g.enqueue(func() {
		sid := sidOf(sess)
		g.Registry.Bind(sid, sess)
		g.send(sess, protocol.NewWelcome(*sess.Meta().User))
	})
}

// Dispatch handles one decoded client message from sid.
func (g *Gateway) Dispatch(sid core.SessionID, msg any) {
	g.enqueue(func() { g.handle(sid, msg) })
}

// Disconnect performs transport-loss cleanup for sid from any state.
func (g *Gateway) Disconnect(sid core.SessionID) {
	g.enqueue(func() { g.disconnect(sid) })
}

func (g *Gateway) handle(sid core.SessionID, msg any) {
	sess, ok := g.Registry.GetSession(sid)
	if !ok {
		log.Debug().Str("module", "app.gateway").Str("sid", string(sid)).Msg("message from unknown session")
		return
	}
	switch m := msg.(type) {
	case *protocol.JoinRoom:
		g.join(sid, sess, m.Room)
	case *protocol.LeaveRoom:
		g.leave(sid, m.Room)
	case *protocol.Call:
		g.call(sess, m)
	case *protocol.Signal:
		g.signal(sess, m)
	case *protocol.Message:
		g.message(sid, sess, m)
	case *protocol.Rename:
		g.rename(sid, sess, m.Name)
	case *protocol.Ping:
		g.send(sess, protocol.NewPong())
	default:
		log.Warn().Str("module", "app.gateway").Str("sid", string(sid)).Type("msg", msg).Msg("unexpected message")
	}
}

func (g *Gateway) disconnect(sid core.SessionID) {
	// The room must be read before anything clears it.
	if roomID, _, ok := g.Registry.RoomOf(sid); ok {
		g.leaveRoom(sid, roomID)
	}
	g.Registry.Unbind(sid)
}

// send encodes v and queues it on one member's connection.
func (g *Gateway) send(ms core.MemberSession, v any) bool {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.gateway").Msg("encode")
		return false
	}
	if err := ms.Signal().TrySend(frame); err != nil {
		g.onDropped(ms, err)
		return false
	}
	return true
}

// broadcast fans v out to every member of room except from.
func (g *Gateway) broadcast(room core.RoomService, from domain.UserID, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.gateway").Msg("encode")
		return
	}
	res := room.Broadcast(from, frame)
	for _, slow := range res.Dropped {
		g.onDropped(slow, nil)
	}
}

func (g *Gateway) onDropped(ms core.MemberSession, err error) {
	if g.Policy == nil {
		return
	}
	sid := sidOf(ms)
	switch g.Policy.OnBackPressure(ms) {
	case KickMember:
		log.Warn().Err(err).Str("module", "app.gateway").Str("sid", string(sid)).Msg("kicking slow member")
		g.kicks = append(g.kicks, ms)
	case MarkSlow:
		log.Warn().Err(err).Str("module", "app.gateway").Str("sid", string(sid)).Msg("slow member")
	case DropFrame, NoAction:
	}
}

// flushKicks runs after each event so that a kick never re-enters the
// handler that noticed the slow member.
func (g *Gateway) flushKicks() {
	for len(g.kicks) > 0 {
		ms := g.kicks[0]
		g.kicks = g.kicks[1:]
		sid := sidOf(ms)
		if cur, ok := g.Registry.GetSession(sid); !ok || cur != ms {
			continue
		}
		g.disconnect(sid)
		ms.Signal().Close()
	}
}

func sidOf(ms core.MemberSession) core.SessionID {
	return core.SessionID(ms.Meta().User.ID)
}

package app

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// call announces a connection attempt to the target and then acknowledges
// the caller. The ack only confirms the relay left the gateway.
func (g *Gateway) call(sess core.MemberSession, m *protocol.Call) {
	caller := sess.Meta().User.ID
	if m.ID == "" || m.User == caller {
		log.Debug().Str("module", "app.gateway").Str("caller", string(caller)).Msg("call ignored")
		return
	}
	if target, ok := g.Registry.GetSession(core.SessionID(m.User)); ok {
		g.send(target, protocol.NewCallReceived(caller, m.ID))
	} else {
		log.Debug().Str("module", "app.gateway").Str("target", string(m.User)).Msg("call target not connected")
	}
	if m.Ack != 0 {
		g.send(sess, protocol.NewAck(m.Ack))
	}
}

// signal relays the payload without looking at it.
func (g *Gateway) signal(sess core.MemberSession, m *protocol.Signal) {
	caller := sess.Meta().User.ID
	if m.ID == "" || m.User == caller {
		return
	}
	target, ok := g.Registry.GetSession(core.SessionID(m.User))
	if !ok {
		log.Debug().Str("module", "app.gateway").Str("target", string(m.User)).Msg("signal target not connected")
		return
	}
	g.send(target, protocol.NewSignalReceived(caller, m.ID, m.Signal))
}

func (g *Gateway) message(sid core.SessionID, sess core.MemberSession, m *protocol.Message) {
	roomID, _, ok := g.Registry.RoomOf(sid)
	if !ok {
		log.Debug().Str("module", "app.gateway").Str("sid", string(sid)).Msg("message ignored: not in a room")
		return
	}
	room, ok := g.Rooms.Get(roomID)
	if !ok {
		return
	}
	user := *sess.Meta().User
	g.broadcast(room, user.ID, protocol.NewMessageReceived(user, m.Text, m.Command))
}

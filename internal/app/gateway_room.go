package app

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// join is legal only while the connection is in no room. The reply lists
// the members already present and never includes the joiner.
func (g *Gateway) join(sid core.SessionID, sess core.MemberSession, raw string) {
	if current, _, ok := g.Registry.RoomOf(sid); ok {
		log.Debug().Str("module", "app.gateway").Str("sid", string(sid)).Str("room", string(current)).Msg("join ignored: already in a room")
		return
	}
	roomID, err := domain.ParseRoomID(raw)
	if err != nil {
		log.Debug().Err(err).Str("module", "app.gateway").Str("sid", string(sid)).Msg("join ignored")
		g.send(sess, protocol.NewOpError(protocol.TypeJoinRoom, err.Error()))
		return
	}

	existing := g.Rooms.ListParticipants(roomID)
	if !g.Rooms.AddParticipant(roomID, sess) {
		return
	}
	g.Registry.UpdateRoom(sid, roomID)

	user := *sess.Meta().User
	if room, ok := g.Rooms.Get(roomID); ok {
		g.broadcast(room, user.ID, protocol.NewUserConnected(user))
	}
	g.send(sess, protocol.NewRoomUsers(roomID, toUsers(existing)))
	log.Info().Str("module", "app.gateway").Str("sid", string(sid)).Str("name", user.Name).Str("room", string(roomID)).Msg("joined")
}

// leave requires the id of the room the connection is actually in.
func (g *Gateway) leave(sid core.SessionID, raw string) {
	current, _, ok := g.Registry.RoomOf(sid)
	if !ok || string(current) != raw {
		log.Debug().Str("module", "app.gateway").Str("sid", string(sid)).Str("room", raw).Msg("leave ignored")
		return
	}
	g.leaveRoom(sid, current)
}

func (g *Gateway) leaveRoom(sid core.SessionID, roomID domain.RoomID) {
	sess, ok := g.Registry.GetSession(sid)
	if !ok {
		return
	}
	user := *sess.Meta().User
	_, removed := g.Rooms.RemoveParticipant(roomID, user.ID)
	g.Registry.RemoveRoom(sid)
	if !removed {
		return
	}
	if room, ok := g.Rooms.Get(roomID); ok {
		g.broadcast(room, user.ID, protocol.NewUserDisconnected(user))
	}
	g.Rooms.DeleteIfEmpty(roomID)
	log.Info().Str("module", "app.gateway").Str("sid", string(sid)).Str("room", string(roomID)).Msg("left")
}

// rename is only allowed before joining a room.
func (g *Gateway) rename(sid core.SessionID, sess core.MemberSession, name string) {
	if _, _, ok := g.Registry.RoomOf(sid); ok {
		log.Debug().Str("module", "app.gateway").Str("sid", string(sid)).Msg("rename ignored: in a room")
		return
	}
	user := sess.Meta().User
	if err := user.SetName(name); err != nil {
		log.Debug().Err(err).Str("module", "app.gateway").Str("sid", string(sid)).Msg("rename ignored")
		return
	}
	g.send(sess, protocol.NewWelcome(*user))
}

func toUsers(members []core.MemberDTO) []domain.User {
	out := make([]domain.User, 0, len(members))
	for _, m := range members {
		out = append(out, domain.User{ID: m.ID, Name: m.Name})
	}
	return out
}

package core

import (
	"slices"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room   *domain.Room
	mu     sync.RWMutex
	order  []domain.UserID
	byUser map[domain.UserID]MemberSession
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:   room,
		byUser: make(map[domain.UserID]MemberSession),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *roomImpl) HasMember(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[uid]
	return ok
}

// AddMember reports false if a member with the same user id is already present.
func (r *roomImpl) AddMember(ms MemberSession) bool {
	u := ms.Meta().User.ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUser[u]; ok {
		return false
	}
	r.byUser[u] = ms
	r.order = append(r.order, u)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(u)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(uid domain.UserID) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byUser[uid]
	if !ok {
		return nil, false
	}
	delete(r.byUser, uid)
	r.order = slices.DeleteFunc(r.order, func(id domain.UserID) bool { return id == uid })
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(uid)).Msg("member removed")
	return ms, true
}

func (r *roomImpl) Broadcast(from domain.UserID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, uid := range r.order {
		if uid == from {
			continue
		}
		m := r.byUser[uid]
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// Members returns the sessions in join order.
func (r *roomImpl) Members() []MemberSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberSession, 0, len(r.order))
	for _, uid := range r.order {
		out = append(out, r.byUser[uid])
	}
	return out
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.order))
	for _, uid := range r.order {
		u := r.byUser[uid].Meta().User
		out = append(out, MemberDTO{ID: u.ID, Name: u.Name})
	}
	return out
}

package app

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl is the in-memory room registry. One lock guards the map.
// Creation happens inside AddParticipant and deletion inside
// RemoveParticipant, so readers never see a room without participants.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager() core.RoomRegistry {
	return &RoomManagerImpl{rooms: make(map[domain.RoomID]core.RoomService)}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateLocked(id)
}

func (f *RoomManagerImpl) getOrCreateLocked(id domain.RoomID) core.RoomService {
	if room, ok := f.rooms[id]; ok {
		return room
	}
	room := core.NewRoomService(&domain.Room{ID: id})
	f.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) AddParticipant(id domain.RoomID, ms core.MemberSession) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateLocked(id).AddMember(ms)
}

// RemoveParticipant removes by user identity and drops the room when it
// becomes empty. Absent rooms are not created.
func (f *RoomManagerImpl) RemoveParticipant(id domain.RoomID, uid domain.UserID) (core.MemberSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, false
	}
	ms, removed := room.RemoveMember(uid)
	if room.MemberCount() == 0 {
		f.deleteLocked(id)
	}
	return ms, removed
}

func (f *RoomManagerImpl) ListParticipants(id domain.RoomID) []core.MemberDTO {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	if !ok {
		return []core.MemberDTO{}
	}
	return room.MembersSnapshot()
}

// DeleteIfEmpty drops a room created through GetOrCreate that never got a
// participant. Rooms emptied by RemoveParticipant are already gone.
func (f *RoomManagerImpl) DeleteIfEmpty(id domain.RoomID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || room.MemberCount() > 0 {
		return false
	}
	f.deleteLocked(id)
	return true
}

func (f *RoomManagerImpl) deleteLocked(id domain.RoomID) {
	delete(f.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, Users: r.MembersSnapshot()})
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out
}

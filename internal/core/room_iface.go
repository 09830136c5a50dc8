package core

import (
	"github.com/dkeye/Huddle/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the gateway.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID   domain.UserID `json:"id"`
	Name string        `json:"name"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Members() []MemberSession
	HasMember(uid domain.UserID) bool

	AddMember(ms MemberSession) bool
	RemoveMember(uid domain.UserID) (MemberSession, bool)
	Broadcast(from domain.UserID, data Frame) PublishResult
}

type RoomInfo struct {
	ID    domain.RoomID `json:"id"`
	Users []MemberDTO   `json:"users"`
}

// RoomRegistry maps room ids to rooms. Rooms are created lazily and
// dropped as soon as they hold no participants.
type RoomRegistry interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	AddParticipant(id domain.RoomID, ms MemberSession) bool
	RemoveParticipant(id domain.RoomID, uid domain.UserID) (MemberSession, bool)
	ListParticipants(id domain.RoomID) []MemberDTO
	DeleteIfEmpty(id domain.RoomID) bool
	List() []RoomInfo
}

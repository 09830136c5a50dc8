package mesh

import (
	"slices"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// QuietCommand marks a chat message that should not raise a notice.
// Browser clients send the misspelt quietCommandLegacy.
const (
	QuietCommand       = "/quiet"
	quietCommandLegacy = "/quite"
)

// IsQuiet reports whether command marks a silent message.
func IsQuiet(command *string) bool {
	return command != nil && (*command == QuietCommand || *command == quietCommandLegacy)
}

type ChatMessage struct {
	Text    string
	Command *string
	Silent  bool
	At      time.Time
}

// Participant is a read-only view of one room member.
type Participant struct {
	ID          domain.UserID
	Name        string
	Connected   bool
	Sessions    int
	Tracks      int
	LastMessage *ChatMessage
}

type presenceEntry struct {
	user domain.User
	last *ChatMessage
}

// PresenceView is the authoritative list of room members as seen by the
// local participant. Membership changes tear down sessions and streams
// toward participants that are gone.
type PresenceView struct {
	self   domain.UserID
	order  []domain.UserID
	byID   map[domain.UserID]*presenceEntry
	conns  *ConnectionRegistry
	tracks *TrackAggregator
}

func NewPresenceView(conns *ConnectionRegistry, tracks *TrackAggregator) *PresenceView {
	return &PresenceView{
		byID:   make(map[domain.UserID]*presenceEntry),
		conns:  conns,
		tracks: tracks,
	}
}

func (p *PresenceView) SetSelf(id domain.UserID) { p.self = id }
func (p *PresenceView) Self() domain.UserID      { return p.self }

func (p *PresenceView) Has(id domain.UserID) bool {
	_, ok := p.byID[id]
	return ok
}

// ApplySnapshot replaces the member list. Sessions and streams toward
// members present in both lists are kept.
func (p *PresenceView) ApplySnapshot(users []domain.User) {
	next := make(map[domain.UserID]*presenceEntry, len(users))
	order := make([]domain.UserID, 0, len(users))
	for _, u := range users {
		if u.ID == p.self {
			continue
		}
		if _, dup := next[u.ID]; dup {
			continue
		}
		e := &presenceEntry{user: u}
		if old, ok := p.byID[u.ID]; ok {
			e.last = old.last
		}
		next[u.ID] = e
		order = append(order, u.ID)
	}
	for _, id := range p.order {
		if _, ok := next[id]; !ok {
			p.drop(id)
		}
	}
	p.byID = next
	p.order = order
}

// Joined appends u unless already present.
func (p *PresenceView) Joined(u domain.User) bool {
	if u.ID == p.self || p.Has(u.ID) {
		return false
	}
	p.byID[u.ID] = &presenceEntry{user: u}
	p.order = append(p.order, u.ID)
	return true
}

func (p *PresenceView) Left(id domain.UserID) bool {
	if !p.Has(id) {
		return false
	}
	delete(p.byID, id)
	p.order = slices.DeleteFunc(p.order, func(x domain.UserID) bool { return x == id })
	p.drop(id)
	return true
}

// Reset tears down every session and stream and clears the list.
func (p *PresenceView) Reset(reason CloseReason) {
	p.conns.CloseEverything(reason)
	p.tracks.Reset()
	p.byID = make(map[domain.UserID]*presenceEntry)
	p.order = nil
}

// SetMessage records the last chat message of a member.
func (p *PresenceView) SetMessage(from domain.UserID, text string, command *string, at time.Time) (*ChatMessage, bool) {
	e, ok := p.byID[from]
	if !ok {
		return nil, false
	}
	msg := &ChatMessage{
		Text:    text,
		Command: command,
		Silent:  IsQuiet(command),
		At:      at,
	}
	e.last = msg
	return msg, true
}

func (p *PresenceView) Snapshot() []Participant {
	out := make([]Participant, 0, len(p.order))
	for _, id := range p.order {
		e := p.byID[id]
		part := Participant{
			ID:          id,
			Name:        e.user.Name,
			Connected:   p.conns.IsConnected(id),
			Sessions:    len(p.conns.ListSessions(id)),
			LastMessage: e.last,
		}
		if s, ok := p.tracks.Stream(id); ok {
			part.Tracks = len(s.Tracks)
		}
		out = append(out, part)
	}
	return out
}

func (p *PresenceView) drop(id domain.UserID) {
	p.conns.CloseAll(id, ReasonDeparted)
	p.tracks.Forget(id)
}

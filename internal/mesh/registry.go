package mesh

import (
	"slices"
	"strings"

	"github.com/dkeye/Huddle/internal/domain"
)

// ConnectionRegistry indexes live sessions by remote participant and
// attempt id. It is owned by the Mesh loop and is not safe for concurrent
// use. Connection status is never stored: it is computed from the sessions
// on every read.
type ConnectionRegistry struct {
	peers map[domain.UserID]map[string]*PeerSession
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{peers: make(map[domain.UserID]map[string]*PeerSession)}
}

// Open registers s. A different session already holding the same attempt
// id is closed as Superseded; registering s twice is a no-op.
func (r *ConnectionRegistry) Open(remote domain.UserID, attempt string, s *PeerSession) {
	byAttempt, ok := r.peers[remote]
	if !ok {
		byAttempt = make(map[string]*PeerSession)
		r.peers[remote] = byAttempt
	}
	old := byAttempt[attempt]
	if old == s {
		return
	}
	byAttempt[attempt] = s
	if old != nil {
		old.Close(ReasonSuperseded)
	}
}

func (r *ConnectionRegistry) Get(remote domain.UserID, attempt string) (*PeerSession, bool) {
	s, ok := r.peers[remote][attempt]
	return s, ok
}

// Remove drops the entry only if it still points at s.
func (r *ConnectionRegistry) Remove(remote domain.UserID, attempt string, s *PeerSession) bool {
	byAttempt, ok := r.peers[remote]
	if !ok || byAttempt[attempt] != s {
		return false
	}
	delete(byAttempt, attempt)
	if len(byAttempt) == 0 {
		delete(r.peers, remote)
	}
	return true
}

// Close removes and then destroys one session.
func (r *ConnectionRegistry) Close(remote domain.UserID, attempt string) {
	s, ok := r.Get(remote, attempt)
	if !ok {
		return
	}
	r.Remove(remote, attempt, s)
	s.Close(ReasonLocal)
}

// CloseAll destroys every session toward remote.
func (r *ConnectionRegistry) CloseAll(remote domain.UserID, reason CloseReason) {
	byAttempt, ok := r.peers[remote]
	if !ok {
		return
	}
	delete(r.peers, remote)
	for _, s := range byAttempt {
		s.Close(reason)
	}
}

func (r *ConnectionRegistry) CloseEverything(reason CloseReason) {
	peers := r.peers
	r.peers = make(map[domain.UserID]map[string]*PeerSession)
	for _, byAttempt := range peers {
		for _, s := range byAttempt {
			s.Close(reason)
		}
	}
}

// IsConnected reports whether at least one session toward remote is Connected.
func (r *ConnectionRegistry) IsConnected(remote domain.UserID) bool {
	for _, s := range r.peers[remote] {
		if s.Connected() {
			return true
		}
	}
	return false
}

func (r *ConnectionRegistry) Has(remote domain.UserID) bool {
	return len(r.peers[remote]) > 0
}

// ListSessions returns the sessions toward remote ordered by attempt id.
func (r *ConnectionRegistry) ListSessions(remote domain.UserID) []*PeerSession {
	byAttempt := r.peers[remote]
	out := make([]*PeerSession, 0, len(byAttempt))
	for _, s := range byAttempt {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *PeerSession) int { return strings.Compare(a.Attempt, b.Attempt) })
	return out
}

// Len is the total number of registered sessions.
func (r *ConnectionRegistry) Len() int {
	n := 0
	for _, byAttempt := range r.peers {
		n += len(byAttempt)
	}
	return n
}

package mesh

import (
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

func newPresence() (*PresenceView, *ConnectionRegistry, *TrackAggregator) {
	conns := NewConnectionRegistry()
	tracks := NewTrackAggregator()
	p := NewPresenceView(conns, tracks)
	p.SetSelf("me")
	return p, conns, tracks
}

func ids(ps []Participant) []domain.UserID {
	out := make([]domain.UserID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestPresenceView_Snapshot(t *testing.T) {
	p, conns, tracks := newPresence()
	p.ApplySnapshot([]domain.User{{ID: "a", Name: "A"}, {ID: "me", Name: "Me"}, {ID: "b", Name: "B"}})
	if got := ids(p.Snapshot()); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b] without self, got %v", got)
	}

	sa, na := registeredSession(t, conns, "a", "x1")
	na.opts.Events.OnConnect()
	sb, _ := registeredSession(t, conns, "b", "y1")
	tracks.OnTrack("a", fakeTrack{"t", "s"}, "s")
	tracks.OnTrack("b", fakeTrack{"t", "s"}, "s")

	p.ApplySnapshot([]domain.User{{ID: "a", Name: "A"}, {ID: "c", Name: "C"}})

	if sa.Closed() {
		t.Error("a is in both lists, its session must survive")
	}
	if _, ok := tracks.Stream("a"); !ok {
		t.Error("a's stream must survive")
	}
	if sb.Reason() != ReasonDeparted {
		t.Errorf("b vanished, expected departed, got %s", sb.Reason())
	}
	if _, ok := tracks.Stream("b"); ok {
		t.Error("b's stream should be forgotten")
	}

	snap := p.Snapshot()
	if got := ids(snap); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("expected [a c], got %v", got)
	}
	if !snap[0].Connected || snap[0].Tracks != 1 || snap[0].Sessions != 1 {
		t.Errorf("unexpected view of a: %+v", snap[0])
	}
	if snap[1].Connected {
		t.Error("c has no session")
	}
}

func TestPresenceView_JoinLeave(t *testing.T) {
	p, conns, _ := newPresence()
	if !p.Joined(domain.User{ID: "a", Name: "A"}) {
		t.Fatal("first join should apply")
	}
	if p.Joined(domain.User{ID: "a", Name: "A"}) {
		t.Error("duplicate user-connected must be a no-op")
	}
	if p.Joined(domain.User{ID: "me"}) {
		t.Error("self is never listed")
	}
	if n := len(p.Snapshot()); n != 1 {
		t.Errorf("expected 1 participant, got %d", n)
	}

	s1, _ := registeredSession(t, conns, "a", "x1")
	s2, _ := registeredSession(t, conns, "a", "x2")
	if !p.Left("a") {
		t.Fatal("leave should apply")
	}
	if s1.Reason() != ReasonDeparted || s2.Reason() != ReasonDeparted {
		t.Error("every session toward a departed member must close")
	}
	if p.Left("a") {
		t.Error("second leave must be a no-op")
	}
}

func TestPresenceView_Reset(t *testing.T) {
	p, conns, tracks := newPresence()
	p.ApplySnapshot([]domain.User{{ID: "a"}, {ID: "b"}})
	registeredSession(t, conns, "a", "x1")
	registeredSession(t, conns, "b", "y1")
	tracks.OnTrack("a", fakeTrack{"t", "s"}, "s")

	p.Reset(ReasonLocal)
	if len(p.Snapshot()) != 0 || conns.Len() != 0 {
		t.Errorf("reset left %d participants and %d sessions", len(p.Snapshot()), conns.Len())
	}
	if _, ok := tracks.Stream("a"); ok {
		t.Error("streams should be reset")
	}
}

func TestPresenceView_Messages(t *testing.T) {
	p, _, _ := newPresence()
	p.Joined(domain.User{ID: "a", Name: "A"})
	at := time.Unix(100, 0)

	quiet, legacy, other := QuietCommand, "/quite", "/shout"
	tests := []struct {
		name    string
		command *string
		silent  bool
	}{
		{"plain", nil, false},
		{"quiet", &quiet, true},
		{"browser spelling", &legacy, true},
		{"other command", &other, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := p.SetMessage("a", "hello", tt.command, at)
			if !ok {
				t.Fatal("message from a member should be recorded")
			}
			if msg.Silent != tt.silent {
				t.Errorf("silent: got %v, expected %v", msg.Silent, tt.silent)
			}
			if last := p.Snapshot()[0].LastMessage; last != msg {
				t.Error("snapshot should expose the last message")
			}
		})
	}

	if _, ok := p.SetMessage("ghost", "hi", nil, at); ok {
		t.Error("message from a non-member should be ignored")
	}

	p.ApplySnapshot([]domain.User{{ID: "a", Name: "A"}})
	if p.Snapshot()[0].LastMessage == nil {
		t.Error("snapshot refresh must keep the last message")
	}
}

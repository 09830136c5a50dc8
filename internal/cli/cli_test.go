package cli

import (
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mesh"
	"github.com/pion/rtp"
)

func TestParseChatLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		text    string
		command string
	}{
		{"plain", "  hello there ", "hello there", ""},
		{"quiet", "/quiet brb", "brb", mesh.QuietCommand},
		{"command only", "/quiet", "", mesh.QuietCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, cmd := parseChatLine(tt.line)
			if text != tt.text {
				t.Errorf("text = %q, expected %q", text, tt.text)
			}
			got := ""
			if cmd != nil {
				got = *cmd
			}
			if got != tt.command {
				t.Errorf("command = %q, expected %q", got, tt.command)
			}
		})
	}
}

func TestRoomsTable(t *testing.T) {
	if got := RoomsTable(nil); got != "No active rooms" {
		t.Errorf("unexpected empty rendering: %q", got)
	}
	out := RoomsTable([]core.RoomInfo{
		{ID: "abc", Users: []core.MemberDTO{{ID: "1", Name: "ann"}, {ID: "2", Name: "bob"}}},
	})
	for _, want := range []string{"abc", "ann, bob", "2"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestParticipantsTable(t *testing.T) {
	self := domain.User{ID: "me", Name: "me"}
	out := ParticipantsTable(self, []mesh.Participant{
		{ID: "b", Name: "bob", Connected: true, Sessions: 1, Tracks: 1},
		{ID: "c", Name: "cid"},
	}, func(id domain.UserID) uint64 {
		if id == "b" {
			return 4242
		}
		return 0
	})
	for _, want := range []string{"bob", "connected", "connecting", "4242"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if out := ParticipantsTable(self, nil, nil); !strings.Contains(out, "alone in the room") {
		t.Errorf("expected footer for empty room:\n%s", out)
	}
}

type fakeRoom struct {
	said     []string
	commands []string
	redials  []domain.UserID
	data     map[domain.UserID]string
}

func (r *fakeRoom) Say(text string, command *string) error {
	r.said = append(r.said, text)
	c := ""
	if command != nil {
		c = *command
	}
	r.commands = append(r.commands, c)
	return nil
}

func (r *fakeRoom) Redial(remote domain.UserID) error {
	if remote == "ghost" {
		return mesh.ErrUnknown
	}
	r.redials = append(r.redials, remote)
	return nil
}

func (r *fakeRoom) SendData(remote domain.UserID, data []byte) error {
	if r.data == nil {
		r.data = map[domain.UserID]string{}
	}
	r.data[remote] = string(data)
	return nil
}

func TestExecLine(t *testing.T) {
	r := &fakeRoom{}
	for _, line := range []string{"hi all", "", "/quiet brb", "/quiet", "/redial b", "/data b ping pong"} {
		if err := execLine(r, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	if len(r.said) != 2 || r.said[0] != "hi all" || r.said[1] != "brb" || r.commands[1] != mesh.QuietCommand {
		t.Errorf("unexpected chat %q / %q", r.said, r.commands)
	}
	if len(r.redials) != 1 || r.redials[0] != "b" {
		t.Errorf("expected one redial to b, got %v", r.redials)
	}
	if r.data["b"] != "ping pong" {
		t.Errorf("expected data to b, got %v", r.data)
	}

	t.Run("errors", func(t *testing.T) {
		for _, line := range []string{"/redial", "/data b", "/data"} {
			if err := execLine(r, line); err == nil {
				t.Errorf("%q: expected usage error", line)
			}
		}
		if err := execLine(r, "/redial ghost"); !errors.Is(err, mesh.ErrUnknown) {
			t.Errorf("expected ErrUnknown, got %v", err)
		}
	})
}

func TestMediaStats(t *testing.T) {
	s := &mediaStats{}
	first := s.sinks("b")
	second := s.sinks("b")
	if first["stats"] != second["stats"] {
		t.Fatal("attempts toward one remote should share a counter")
	}
	for i := 0; i < 3; i++ {
		_ = first["stats"].(*rtc.PacketCounter).WriteRTP(&rtp.Packet{Payload: []byte{1}})
	}
	if got := s.packets("b"); got != 3 {
		t.Errorf("expected 3 packets for b, got %d", got)
	}
	if got := s.packets("c"); got != 0 {
		t.Errorf("unknown remote should report 0, got %d", got)
	}
}

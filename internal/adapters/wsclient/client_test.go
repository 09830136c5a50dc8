package wsclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/protocol"
)

func TestSignalURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
		fail   bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/api/ws/signal?name=bob+b", false},
		{"https://huddle.example/", "wss://huddle.example/api/ws/signal?name=bob+b", false},
		{"wss://huddle.example/base", "wss://huddle.example/base/api/ws/signal?name=bob+b", false},
		{"ftp://nope", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			got, err := SignalURL(tt.server, "bob b")
			if tt.fail {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignalURL: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %s, expected %s", got, tt.want)
			}
		})
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Mode = "test"
	cfg.StaticPath = t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	gw := app.NewGateway(app.NewRegistry(), app.NewRoomManager(), app.SimplePolicy{}, 0)
	go gw.Run(ctx)
	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, gw))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv.URL
}

// connect dials and returns the client with a channel of inbound messages.
func connect(t *testing.T, server, name string) (*Client, <-chan any) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c, err := Dial(ctx, server, name, Options{DialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	inbox := make(chan any, 32)
	c.OnMessage = func(msg any) { inbox <- msg }
	go func() { _ = c.Run(ctx) }()
	return c, inbox
}

func next(t *testing.T, inbox <-chan any) any {
	t.Helper()
	select {
	case msg := <-inbox:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func TestClient_CallAck(t *testing.T) {
	server := startServer(t)
	a, ain := connect(t, server, "alice")
	wa := next(t, ain).(*protocol.Welcome)
	b, bin := connect(t, server, "bob")
	wb := next(t, bin).(*protocol.Welcome)

	if err := a.JoinRoom("abc"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	next(t, ain)
	if err := b.JoinRoom("abc"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	next(t, bin)
	next(t, ain)

	acked := make(chan struct{})
	if err := b.Call(wa.User.ID, "x1", func() { close(acked) }); err != nil {
		t.Fatalf("Call: %v", err)
	}
	cr := next(t, ain).(*protocol.CallReceived)
	if cr.Caller != wb.User.ID || cr.ID != "x1" {
		t.Errorf("unexpected call-received %+v", cr)
	}
	select {
	case <-acked:
	case <-time.After(5 * time.Second):
		t.Fatal("call was never acknowledged")
	}

	rooms, err := FetchRooms(context.Background(), server)
	if err != nil {
		t.Fatalf("FetchRooms: %v", err)
	}
	if len(rooms) != 1 || len(rooms[0].Users) != 2 {
		t.Errorf("unexpected rooms %+v", rooms)
	}

	a.Close()
	if ud := next(t, bin).(*protocol.UserDisconnected); ud.User.ID != wa.User.ID {
		t.Errorf("expected alice to leave, got %+v", ud.User)
	}
	if err := a.JoinRoom("abc"); err == nil {
		t.Error("write after Close should fail")
	}
}

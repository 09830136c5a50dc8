package signal

import (
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

func TestHandleSignal_JoinRateLimitReplies(t *testing.T) {
	cfg := config.Default()
	ctl := &SignalWSController{
		Gateway: app.NewGateway(app.NewRegistry(), app.NewRoomManager(), app.SimplePolicy{}, 0),
		Cfg:     cfg,
		Joins:   NewRoomRateLimiter(1, time.Minute),
	}
	conn := newWsSignalConn(nil, 4)
	join := []byte(`{"type":"join-room","room":"abc"}`)

	ctl.handleSignal(core.SessionID("u1"), conn, join)
	if n := len(conn.send); n != 0 {
		t.Fatalf("allowed join should go to the gateway, got %d direct frames", n)
	}

	ctl.handleSignal(core.SessionID("u1"), conn, join)
	if n := len(conn.send); n != 1 {
		t.Fatalf("expected one error frame, got %d", n)
	}
	msg, err := protocol.Decode(<-conn.send)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	e, ok := msg.(*protocol.Error)
	if !ok || e.Op != protocol.TypeJoinRoom {
		t.Errorf("expected join-room error, got %#v", msg)
	}
}

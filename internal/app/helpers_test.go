package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

var errFull = errors.New("send buffer full")

// fakeConn records every frame handed to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) setFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// take decodes and clears the recorded frames.
func (c *fakeConn) take(t *testing.T) []any {
	t.Helper()
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()
	out := make([]any, 0, len(frames))
	for _, f := range frames {
		msg, err := protocol.Decode(f)
		if err != nil {
			t.Fatalf("decode %s: %v", f, err)
		}
		out = append(out, msg)
	}
	return out
}

func startGateway(t *testing.T, policy Policy) *Gateway {
	t.Helper()
	g := NewGateway(NewRegistry(), NewRoomManager(), policy, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go g.Run(ctx)
	t.Cleanup(cancel)
	return g
}

// flush waits until every event queued so far has been handled.
func flush(t *testing.T, g *Gateway) {
	t.Helper()
	done := make(chan struct{})
	if !g.enqueue(func() { close(done) }) {
		t.Fatal("gateway stopped")
	}
	<-done
}

type peer struct {
	user *domain.User
	conn *fakeConn
	sid  core.SessionID
}

func connectConn(t *testing.T, g *Gateway, name string, conn core.SignalConnection) *domain.User {
	t.Helper()
	u, err := domain.NewUser(name)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	g.Connect(core.NewMemberSession(domain.NewMember(u), conn))
	flush(t, g)
	return u
}

// connect attaches a new participant and discards its welcome.
func connect(t *testing.T, g *Gateway, name string) *peer {
	t.Helper()
	conn := &fakeConn{}
	u := connectConn(t, g, name, conn)
	conn.take(t)
	return &peer{user: u, conn: conn, sid: core.SessionID(u.ID)}
}

func (p *peer) send(t *testing.T, g *Gateway, msg any) {
	t.Helper()
	g.Dispatch(p.sid, msg)
	flush(t, g)
}

func joinMsg(room string) *protocol.JoinRoom {
	m := protocol.NewJoinRoom(room)
	return &m
}

func leaveMsg(room string) *protocol.LeaveRoom {
	m := protocol.NewLeaveRoom(room)
	return &m
}

package mesh

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
)

var errBoom = errors.New("boom")

type fakeTrack struct{ id, stream string }

func (t fakeTrack) ID() string       { return t.id }
func (t fakeTrack) StreamID() string { return t.stream }

type fakeNegotiator struct {
	mu        sync.Mutex
	opts      NegotiatorOptions
	begun     int
	accepted  []string
	sent      [][]byte
	closed    int
	beginErr  error
	acceptErr error

	// beginSignal is emitted from inside Begin, as the pion peer does.
	beginSignal json.RawMessage
}

func (n *fakeNegotiator) Begin() error {
	n.mu.Lock()
	n.begun++
	err, payload := n.beginErr, n.beginSignal
	n.mu.Unlock()
	if payload != nil && n.opts.Events.OnSignal != nil {
		n.opts.Events.OnSignal(payload)
	}
	return err
}

func (n *fakeNegotiator) AcceptSignal(p json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.accepted = append(n.accepted, string(p))
	return n.acceptErr
}

func (n *fakeNegotiator) SendData(d []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, d)
	return nil
}

func (n *fakeNegotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed++
	return nil
}

func (n *fakeNegotiator) stats() (begun, closed int, accepted []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.begun, n.closed, append([]string(nil), n.accepted...)
}

// fakeFactory hands out fakeNegotiators and remembers them in order.
type fakeFactory struct {
	mu          sync.Mutex
	negs        []*fakeNegotiator
	beginSignal json.RawMessage
}

func (f *fakeFactory) New(opts NegotiatorOptions) (Negotiator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := &fakeNegotiator{opts: opts, beginSignal: f.beginSignal}
	f.negs = append(f.negs, n)
	return n, nil
}

func (f *fakeFactory) last() *fakeNegotiator {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.negs) == 0 {
		return nil
	}
	return f.negs[len(f.negs)-1]
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.negs)
}

func syncPost(fn func()) { fn() }

func newTestSession(t interface{ Fatalf(string, ...any) }, remote domain.UserID, attempt string, hooks SessionHooks) (*PeerSession, *fakeNegotiator) {
	f := &fakeFactory{}
	s, err := NewPeerSession(remote, attempt, true, f.New, hooks, syncPost)
	if err != nil {
		t.Fatalf("NewPeerSession: %v", err)
	}
	return s, f.last()
}

type sentCall struct {
	target  domain.UserID
	attempt string
	onAck   func()
}

type sentSignal struct {
	target  domain.UserID
	attempt string
	payload string
}

type fakeSignaler struct {
	mu       sync.Mutex
	joined   []string
	left     []string
	calls    []sentCall
	signals  []sentSignal
	messages []string
}

func (s *fakeSignaler) JoinRoom(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined = append(s.joined, room)
	return nil
}

func (s *fakeSignaler) LeaveRoom(room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left = append(s.left, room)
	return nil
}

func (s *fakeSignaler) Call(target domain.UserID, attempt string, onAck func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sentCall{target, attempt, onAck})
	return nil
}

func (s *fakeSignaler) Signal(target domain.UserID, attempt string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sentSignal{target, attempt, string(payload)})
	return nil
}

func (s *fakeSignaler) Message(text string, command *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
	return nil
}

func (s *fakeSignaler) snapshotCalls() []sentCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentCall(nil), s.calls...)
}

func (s *fakeSignaler) snapshotSignals() []sentSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentSignal(nil), s.signals...)
}

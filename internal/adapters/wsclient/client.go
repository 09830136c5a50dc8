// Package wsclient is the participant side of the signaling websocket.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/go4org/hashtriemap"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrClosed   = errors.New("signaling connection closed")
	ErrSendFull = errors.New("signaling send buffer full")
)

type Options struct {
	DialTimeout time.Duration
	AckTimeout  time.Duration
	SendBuffer  int
}

// Client owns one signaling websocket. Inbound messages are decoded and
// handed to OnMessage from the read goroutine.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	ackTimeout time.Duration
	nextAck    atomic.Uint64
	pending    hashtriemap.HashTrieMap[uint64, func()]

	OnMessage func(msg any)

	done      chan struct{}
	closeOnce sync.Once
}

// SignalURL turns a server base URL into the websocket endpoint for name.
func SignalURL(server, name string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws/signal"
	u.RawQuery = url.Values{"name": {name}}.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, server, name string, opts Options) (*Client, error) {
	target, err := SignalURL(server, name)
	if err != nil {
		return nil, err
	}
	if opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}
	return &Client{
		conn:       conn,
		send:       make(chan []byte, opts.SendBuffer),
		ackTimeout: opts.AckTimeout,
		done:       make(chan struct{}),
	}, nil
}

// Run pumps the connection until it fails, ctx is done or Close is
// called. It always returns a non-nil error.
func (c *Client) Run(ctx context.Context) error {
	go c.writePump(ctx)
	defer c.Close()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	return c.readPump()
}

func (c *Client) readPump() error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return ErrClosed
			default:
			}
			return fmt.Errorf("read: %w", err)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("bad frame")
			continue
		}
		if ack, ok := msg.(*protocol.Ack); ok {
			if fn, ok := c.pending.LoadAndDelete(ack.Ack); ok {
				fn()
			}
			continue
		}
		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "wsclient").Msg("write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) write(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendFull
	}
}

func (c *Client) JoinRoom(room string) error  { return c.write(protocol.NewJoinRoom(room)) }
func (c *Client) LeaveRoom(room string) error { return c.write(protocol.NewLeaveRoom(room)) }
func (c *Client) Rename(name string) error    { return c.write(protocol.NewRename(name)) }
func (c *Client) Ping() error                 { return c.write(protocol.NewPing()) }

func (c *Client) Message(text string, command *string) error {
	return c.write(protocol.NewMessage(text, command))
}

func (c *Client) Signal(target domain.UserID, attempt string, payload json.RawMessage) error {
	return c.write(protocol.NewSignal(target, attempt, payload))
}

// Call sends a call and runs onAck when the gateway acknowledges it. An
// ack that does not come within the ack timeout is forgotten.
func (c *Client) Call(target domain.UserID, attempt string, onAck func()) error {
	n := c.nextAck.Add(1)
	if onAck != nil {
		c.pending.Store(n, onAck)
		time.AfterFunc(c.ackTimeout, func() {
			if _, ok := c.pending.LoadAndDelete(n); ok {
				log.Warn().Str("module", "wsclient").Str("target", string(target)).Str("attempt", attempt).Msg("call not acknowledged")
			}
		})
	}
	if err := c.write(protocol.NewCall(target, attempt, n)); err != nil {
		c.pending.Delete(n)
		return err
	}
	return nil
}

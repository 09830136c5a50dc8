// Package protocol defines the JSON messages exchanged over the signaling
// websocket. Every frame is a JSON object carrying a "type" field.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadPayload  = errors.New("bad payload")
)

// Client -> server.
const (
	TypeJoinRoom  = "join-room"
	TypeLeaveRoom = "leave-room"
	TypeCall      = "call"
	TypeSignal    = "signal"
	TypeMessage   = "message"
	TypeRename    = "rename"
	TypePing      = "ping"
)

// Server -> client.
const (
	TypeWelcome          = "welcome"
	TypeRoomUsers        = "room-users"
	TypeUserConnected    = "user-connected"
	TypeUserDisconnected = "user-disconnected"
	TypeCallReceived     = "call-received"
	TypeSignalReceived   = "signal-received"
	TypeMessageReceived  = "message-received"
	TypeAck              = "ack"
	TypePong             = "pong"
	TypeError            = "error"
)

type Envelope struct {
	Type string `json:"type"`
}

type JoinRoom struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type LeaveRoom struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// Call asks the gateway to announce a new connection attempt to User.
// Ack is an optional correlation number echoed back once relayed.
type Call struct {
	Type string        `json:"type"`
	User domain.UserID `json:"user"`
	ID   string        `json:"id"`
	Ack  uint64        `json:"ack,omitempty"`
}

// Signal carries an opaque negotiation payload for attempt ID toward User.
type Signal struct {
	Type   string          `json:"type"`
	User   domain.UserID   `json:"user"`
	ID     string          `json:"id"`
	Signal json.RawMessage `json:"signal"`
}

type Message struct {
	Type    string  `json:"type"`
	Text    string  `json:"text"`
	Command *string `json:"command"`
}

type Rename struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type Ping struct {
	Type string `json:"type"`
}

type Welcome struct {
	Type string      `json:"type"`
	User domain.User `json:"user"`
}

type RoomUsers struct {
	Type  string        `json:"type"`
	Room  domain.RoomID `json:"room"`
	Users []domain.User `json:"users"`
}

type UserConnected struct {
	Type string      `json:"type"`
	User domain.User `json:"user"`
}

type UserDisconnected struct {
	Type string      `json:"type"`
	User domain.User `json:"user"`
}

type CallReceived struct {
	Type   string        `json:"type"`
	Caller domain.UserID `json:"caller"`
	ID     string        `json:"id"`
}

type SignalReceived struct {
	Type   string          `json:"type"`
	Caller domain.UserID   `json:"caller"`
	ID     string          `json:"id"`
	Signal json.RawMessage `json:"signal"`
}

type MessageReceived struct {
	Type    string      `json:"type"`
	User    domain.User `json:"user"`
	Text    string      `json:"text"`
	Command *string     `json:"command"`
}

type Ack struct {
	Type string `json:"type"`
	Ack  uint64 `json:"ack"`
}

type Pong struct {
	Type string `json:"type"`
}

// Error is terminal when sent at connect. With Op set it only reports that
// one request of that type was refused.
type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Op    string `json:"op,omitempty"`
}

// Decode reads the envelope type and unmarshals data into the matching
// message struct. The returned value is always a pointer.
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	var msg any
	switch env.Type {
	case TypeJoinRoom:
		msg = &JoinRoom{}
	case TypeLeaveRoom:
		msg = &LeaveRoom{}
	case TypeCall:
		msg = &Call{}
	case TypeSignal:
		msg = &Signal{}
	case TypeMessage:
		msg = &Message{}
	case TypeRename:
		msg = &Rename{}
	case TypePing:
		msg = &Ping{}
	case TypeWelcome:
		msg = &Welcome{}
	case TypeRoomUsers:
		msg = &RoomUsers{}
	case TypeUserConnected:
		msg = &UserConnected{}
	case TypeUserDisconnected:
		msg = &UserDisconnected{}
	case TypeCallReceived:
		msg = &CallReceived{}
	case TypeSignalReceived:
		msg = &SignalReceived{}
	case TypeMessageReceived:
		msg = &MessageReceived{}
	case TypeAck:
		msg = &Ack{}
	case TypePong:
		msg = &Pong{}
	case TypeError:
		msg = &Error{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
	}
	return msg, nil
}

// Encode marshals a message struct. Callers are expected to set Type.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol encode %T: %w", v, err)
	}
	return b, nil
}

package protocol

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
)

func NewJoinRoom(room string) JoinRoom   { return JoinRoom{Type: TypeJoinRoom, Room: room} }
func NewLeaveRoom(room string) LeaveRoom { return LeaveRoom{Type: TypeLeaveRoom, Room: room} }

func NewCall(target domain.UserID, attempt string, ack uint64) Call {
	return Call{Type: TypeCall, User: target, ID: attempt, Ack: ack}
}

func NewSignal(target domain.UserID, attempt string, payload json.RawMessage) Signal {
	return Signal{Type: TypeSignal, User: target, ID: attempt, Signal: payload}
}

func NewMessage(text string, command *string) Message {
	return Message{Type: TypeMessage, Text: text, Command: command}
}

func NewRename(name string) Rename { return Rename{Type: TypeRename, Name: name} }

func NewWelcome(u domain.User) Welcome { return Welcome{Type: TypeWelcome, User: u} }

func NewRoomUsers(room domain.RoomID, users []domain.User) RoomUsers {
	if users == nil {
		users = []domain.User{}
	}
	return RoomUsers{Type: TypeRoomUsers, Room: room, Users: users}
}

func NewUserConnected(u domain.User) UserConnected {
	return UserConnected{Type: TypeUserConnected, User: u}
}

func NewUserDisconnected(u domain.User) UserDisconnected {
	return UserDisconnected{Type: TypeUserDisconnected, User: u}
}

func NewCallReceived(caller domain.UserID, attempt string) CallReceived {
	return CallReceived{Type: TypeCallReceived, Caller: caller, ID: attempt}
}

func NewSignalReceived(caller domain.UserID, attempt string, payload json.RawMessage) SignalReceived {
	return SignalReceived{Type: TypeSignalReceived, Caller: caller, ID: attempt, Signal: payload}
}

func NewMessageReceived(u domain.User, text string, command *string) MessageReceived {
	return MessageReceived{Type: TypeMessageReceived, User: u, Text: text, Command: command}
}

func NewAck(n uint64) Ack       { return Ack{Type: TypeAck, Ack: n} }
func NewError(msg string) Error { return Error{Type: TypeError, Error: msg} }

func NewOpError(op, msg string) Error { return Error{Type: TypeError, Error: msg, Op: op} }
func NewPong() Pong                   { return Pong{Type: TypePong} }
func NewPing() Ping                   { return Ping{Type: TypePing} }

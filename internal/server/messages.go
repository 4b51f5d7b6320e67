package server

import (
	"time"

	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/types"
)

type MessageType string

const (
	// inbound
	TypeChatMessage MessageType = "chat_message"
	TypeTyping      MessageType = "typing"

	// outbound
	TypeUserJoin   MessageType = "user_join"
	TypeUserLeave  MessageType = "user_leave"
	TypeUserTyping MessageType = "user_typing"
	TypeError      MessageType = "error"

	// queued by the connection itself on disconnect, never read off the wire
	typeLeave MessageType = "leave"
)

const (
	errRoomClosed      = "room closed"
	errInternal        = "internal server error"
	errInvalidMessage  = "invalid message format"
	errUnsupportedType = "unsupported message type"
	errEmptyMessage    = "message cannot be empty"
	errUnavailable     = "service unavailable"
)

// ClientMessage is an inbound event. It is also the envelope the room actor
// consumes, so messages submitted outside a WebSocket session share the same
// ordered inbox.
type ClientMessage struct {
	Type     MessageType `json:"type"`
	Message  string      `json:"message"`
	IsTyping bool        `json:"is_typing"`

	sender types.User
	client *Client
	reply  chan relayResult
}

type relayResult struct {
	msg database.Message
	err error
}

type ServerMessage struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message,omitempty"`
	UserId    int         `json:"user_id,omitempty"`
	Username  string      `json:"username,omitempty"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	MessageId int         `json:"message_id,omitempty"`
	IsTyping  *bool       `json:"is_typing,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func ChatMessageEvent(msg database.Message, sender types.User) *ServerMessage {
	ts := msg.CreatedAt
	return &ServerMessage{
		Type:      TypeChatMessage,
		Message:   msg.Content,
		UserId:    sender.Id,
		Username:  sender.Username,
		Timestamp: &ts,
		MessageId: msg.Id,
	}
}

func PresenceEvent(t MessageType, user types.User) *ServerMessage {
	ts := Now()
	return &ServerMessage{
		Type:      t,
		UserId:    user.Id,
		Username:  user.Username,
		Timestamp: &ts,
	}
}

func TypingEvent(user types.User, isTyping bool) *ServerMessage {
	return &ServerMessage{
		Type:     TypeUserTyping,
		UserId:   user.Id,
		Username: user.Username,
		IsTyping: &isTyping,
	}
}

func ErrorEvent(msg string) *ServerMessage {
	return &ServerMessage{
		Type:  TypeError,
		Error: msg,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

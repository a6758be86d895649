package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoinRoom    = "JOIN_ROOM"
	InboundTypeLeaveRoom   = "LEAVE_ROOM"
	InboundTypeSendMessage = "SEND_MESSAGE"

	OutboundTypeNewMessage = "NEW_MESSAGE"
	OutboundTypeRoomJoined = "ROOM_JOINED"
	OutboundTypeRoomLeft   = "ROOM_LEFT"
	OutboundTypeError      = "ERROR"
)

// RoomData names the room for JOIN_ROOM and LEAVE_ROOM, and for their acks.
type RoomData struct {
	RoomKey string `json:"roomKey"`
}

// SendData asks the server to relay an already persisted message.
type SendData struct {
	RoomKey string   `json:"roomKey"`
	Message *Message `json:"message"`
}

// Message is the wire form of a stored chat message.
type Message struct {
	ID         string    `json:"id"`
	RoomKey    string    `json:"roomKey"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// NewInbound marshals data into an inbound envelope.
func NewInbound(typ string, data any) (Inbound, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{Type: typ, Data: raw}, nil
}

// NewOutbound marshals data into an outbound envelope.
func NewOutbound(typ string, data any) (Outbound, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Outbound{}, err
	}
	return Outbound{Type: typ, Data: raw}, nil
}

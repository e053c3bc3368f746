package model

import "encoding/json"

// Client to server event names.
const (
	EventJoin           = "join"
	EventJoinRoom       = "joinRoom"
	EventRoomMessage    = "roomMessage"
	EventPrivateMessage = "privateMessage"
	EventTyping         = "typing"
	EventMarkSeen       = "markSeen"
)

// Server to client push names. EventPrivateMessage and EventTyping are
// pushed back under the same name they are received with.
const (
	EventMessage       = "message"
	EventSystemMessage = "systemMessage"
	EventPresence      = "presence"
	EventMessageSeen   = "messageSeen"
	EventAck           = "ack"
)

// Envelope is the JSON frame exchanged over the websocket in both
// directions. Ack is set on requests that expect a reply and echoed back
// on the matching "ack" frame.
type Envelope struct {
	Event string          `json:"event"`
	Ack   int64           `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of a join event.
type JoinRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// RoomMessageRequest is the payload of a roomMessage event.
type RoomMessageRequest struct {
	Text    string `json:"text"`
	FileURL string `json:"fileUrl"`
}

// PrivateMessageRequest is the payload of a privateMessage event.
type PrivateMessageRequest struct {
	To      string `json:"to"`
	Text    string `json:"text"`
	FileURL string `json:"fileUrl"`
}

// TypingRequest is the payload of a typing event. Type is "room" or "private".
type TypingRequest struct {
	Type string `json:"type"`
	To   string `json:"to"`
}

// MarkSeenRequest is the payload of a markSeen event.
type MarkSeenRequest struct {
	ConvWith  string `json:"convWith"`
	MessageID string `json:"messageId"`
}

// HistoryAck answers join and joinRoom.
type HistoryAck struct {
	OK      bool      `json:"ok"`
	History []Message `json:"history,omitempty"`
}

// StatusAck answers roomMessage, privateMessage and any ignored request.
type StatusAck struct {
	OK bool `json:"ok"`
}

// SystemNotice is pushed as a systemMessage.
type SystemNotice struct {
	Text string `json:"text"`
}

// TypingNotice is pushed as a typing event.
type TypingNotice struct {
	User    string `json:"user"`
	Private bool   `json:"private,omitempty"`
}

// SeenNotice is pushed as a messageSeen event to the original sender.
type SeenNotice struct {
	MessageID string `json:"messageId"`
	By        string `json:"by"`
}

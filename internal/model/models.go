// Package model defines data structure.
package model

// Profile is the identity attached to a joined connection.
type Profile struct {
	ConnID      string `json:"-"`
	DisplayName string `json:"username"`
	Avatar      string `json:"avatar,omitempty"`
	CurrentRoom string `json:"room"`
}

// PresenceEntry is one row of the online-user list.
type PresenceEntry struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Room     string `json:"room"`
}

// Message holds information about a single room or private message.
//
// Room messages carry Room and leave To empty. Private messages carry To
// and use Seen; Seen only ever flips from false to true.
type Message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Room      string `json:"room,omitempty"`
	Text      string `json:"text"`
	FileURL   string `json:"fileUrl,omitempty"`
	Timestamp int64  `json:"ts"`
	Seen      bool   `json:"seen"`
}

// IsPrivate reports whether m belongs to a private conversation.
func (m Message) IsPrivate() bool {
	return m.To != ""
}

// RoomSummary describes a room log for listing purposes.
type RoomSummary struct {
	Name     string `json:"name"`
	Messages int    `json:"messages"`
}

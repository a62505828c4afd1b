package store

import "time"

// Channel identifies one of the two logical chat channels.
type Channel string

const (
	ChannelParty Channel = "party"
	ChannelDM    Channel = "dm"
)

// MessageKind classifies a message within a room.
type MessageKind string

const (
	KindChat   MessageKind = "chat"
	KindSystem MessageKind = "system"
	KindJoin   MessageKind = "join"
	KindLeave  MessageKind = "leave"
	KindReady  MessageKind = "ready"
)

// Message is one entry in a room's cache. SenderID is empty for
// system-generated messages.
type Message struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId"`
	SenderID   string      `json:"senderId,omitempty"`
	SenderName string      `json:"senderName"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind"`
	Timestamp  time.Time   `json:"timestamp"`
}

// PartyRoom is a group chat room attached to a party post.
type PartyRoom struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"displayName"`
	MemberNames   []string  `json:"memberNames"`
	UnreadCount   int       `json:"unreadCount"`
	LastMessage   string    `json:"lastMessage"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// DmRoom is a one-to-one conversation between two characters.
type DmRoom struct {
	ID             string    `json:"id"`
	PostID         string    `json:"postId,omitempty"`
	PartnerID      string    `json:"partnerId"`
	PartnerName    string    `json:"partnerName"`
	OwnCharacterID string    `json:"ownCharacterId"`
	OwnCharacter   string    `json:"ownCharacter"`
	UnreadCount    int       `json:"unreadCount"`
	LastMessage    string    `json:"lastMessage"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
}

// DraftDm is an ephemeral placeholder for a conversation whose room does
// not exist server-side yet. At most one draft exists at a time, and a
// draft and a selected room are mutually exclusive.
type DraftDm struct {
	ID             string `json:"id"`
	PostID         string `json:"postId,omitempty"`
	PartnerID      string `json:"partnerId"`
	PartnerName    string `json:"partnerName"`
	OwnCharacterID string `json:"ownCharacterId"`
}

// Notification is one entry in the recent-activity log.
type Notification struct {
	Channel    Channel   `json:"channel"`
	RoomID     string    `json:"roomId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// RoomRef identifies the room a user currently has open, if any.
type RoomRef struct {
	Channel Channel
	RoomID  string
}

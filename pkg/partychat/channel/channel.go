// Package channel binds the socket, store, REST client and history
// paginator together into the two logical chat channels: party rooms and
// direct messages.
package channel

import (
	"time"

	"github.com/lfgparty/partychat/pkg/partychat/socket"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

// Transport is the slice of the connection manager the bindings use.
// *socket.Manager satisfies it.
type Transport interface {
	Send(destination string, payload any) error
	Connected() bool
	Subscribe(destination string, handler socket.Handler) socket.SubscriptionID
	Unsubscribe(id socket.SubscriptionID)
}

// Destinations spoken by the chat server.
const (
	partyNotificationsQueue = "/user/queue/party-notifications"
	dmNotificationsQueue    = "/user/queue/notifications"
)

func partyTopic(roomID string) string { return "/topic/party/" + roomID }

func dmTopic(roomID string) string { return "/topic/dm/" + roomID }

func partyAppDest(roomID string) string { return "/app/chat/" + roomID }

func dmAppDest(roomID string) string { return "/app/dm/" + roomID }

// MessageEvent is the push payload delivered on a room topic.
type MessageEvent struct {
	ID         string            `json:"id"`
	RoomID     string            `json:"roomId"`
	SenderID   string            `json:"senderId"`
	SenderName string            `json:"senderName"`
	Content    string            `json:"content"`
	Kind       store.MessageKind `json:"kind"`
	Timestamp  time.Time         `json:"timestamp"`
}

func (e MessageEvent) message() store.Message {
	kind := e.Kind
	if kind == "" {
		kind = store.KindChat
	}
	return store.Message{
		ID:         e.ID,
		RoomID:     e.RoomID,
		SenderID:   e.SenderID,
		SenderName: e.SenderName,
		Content:    e.Content,
		Kind:       kind,
		Timestamp:  e.Timestamp,
	}
}

// NotificationEvent is the push payload delivered on the user queues for
// rooms the client is not subscribed to.
type NotificationEvent struct {
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Preview    string    `json:"preview"`
	Timestamp  time.Time `json:"timestamp"`
}

// sendPayload is the body of an outgoing chat message.
type sendPayload struct {
	Content string `json:"content"`
}

package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lfgparty/partychat/pkg/partychat/history"
	"github.com/lfgparty/partychat/pkg/partychat/rest"
	"github.com/lfgparty/partychat/pkg/partychat/socket"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

// ErrNoDraft is returned by SendDraft when no draft conversation is staged.
var ErrNoDraft = errors.New("channel: no draft conversation")

// DmAPI is the slice of the REST client the DM binding uses.
type DmAPI interface {
	ListDmRooms(ctx context.Context) ([]store.DmRoom, error)
	MarkRead(ctx context.Context, channel store.Channel, roomID string) error
	CreateDmRoom(ctx context.Context, req rest.CreateDmRoomRequest) (*store.DmRoom, error)
}

// DM binds the direct-message channel: one-to-one conversations between
// characters, including the draft flow for conversations whose room does
// not exist server-side yet.
type DM struct {
	transport Transport
	api       DmAPI
	st        *store.Store
	pager     *history.Paginator
	logger    *zap.Logger

	mu         sync.Mutex
	attached   bool
	notifSub   socket.SubscriptionID
	roomSubbed bool
	roomSub    socket.SubscriptionID
}

// DmBuilder configures a DM binding.
type DmBuilder struct {
	transport Transport
	api       DmAPI
	st        *store.Store
	pager     *history.Paginator
	logger    *zap.Logger
}

// NewDM creates a new DM binding builder.
func NewDM() *DmBuilder {
	return &DmBuilder{logger: zap.NewNop()}
}

// WithTransport sets the socket transport.
func (b *DmBuilder) WithTransport(transport Transport) *DmBuilder {
	b.transport = transport
	return b
}

// WithAPI sets the REST client.
func (b *DmBuilder) WithAPI(api DmAPI) *DmBuilder {
	b.api = api
	return b
}

// WithStore sets the chat store.
func (b *DmBuilder) WithStore(st *store.Store) *DmBuilder {
	b.st = st
	return b
}

// WithPaginator sets the history paginator for this channel.
func (b *DmBuilder) WithPaginator(pager *history.Paginator) *DmBuilder {
	b.pager = pager
	return b
}

// WithLogger sets the logger for the binding.
func (b *DmBuilder) WithLogger(logger *zap.Logger) *DmBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Build creates the DM binding.
func (b *DmBuilder) Build() (*DM, error) {
	if b.transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if b.api == nil {
		return nil, fmt.Errorf("api is required")
	}
	if b.st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if b.pager == nil {
		return nil, fmt.Errorf("paginator is required")
	}
	return &DM{
		transport: b.transport,
		api:       b.api,
		st:        b.st,
		pager:     b.pager,
		logger:    b.logger,
	}, nil
}

// Attach subscribes the DM notification queue. Safe to call more than
// once; only the first call subscribes.
func (d *DM) Attach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return
	}
	d.attached = true
	d.notifSub = d.transport.Subscribe(dmNotificationsQueue, d.handleNotification)
}

// Detach unsubscribes everything the binding holds.
func (d *DM) Detach() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		d.transport.Unsubscribe(d.notifSub)
		d.attached = false
	}
	if d.roomSubbed {
		d.transport.Unsubscribe(d.roomSub)
		d.roomSubbed = false
	}
}

// Refresh replaces the DM room list from the server.
func (d *DM) Refresh(ctx context.Context) error {
	rooms, err := d.api.ListDmRooms(ctx)
	if err != nil {
		return fmt.Errorf("list dm rooms: %w", err)
	}
	d.st.SetDmRooms(rooms)
	return nil
}

// OpenRoom selects a conversation, loads its recent history and subscribes
// its topic. Selecting a room discards any staged draft.
func (d *DM) OpenRoom(ctx context.Context, roomID string) error {
	d.unsubscribeRoom()

	d.st.SelectRoom(store.ChannelDM, roomID)
	if err := d.pager.Load(ctx, roomID); err != nil {
		return err
	}

	d.mu.Lock()
	d.roomSub = d.transport.Subscribe(dmTopic(roomID), d.handleRoomMessage)
	d.roomSubbed = true
	d.mu.Unlock()

	if err := d.api.MarkRead(ctx, store.ChannelDM, roomID); err != nil {
		d.logger.Warn("mark read failed", zap.String("room_id", roomID), zap.Error(err))
	}
	return nil
}

// LeaveRoom unsubscribes the open conversation's topic and clears the
// selection.
func (d *DM) LeaveRoom() {
	d.unsubscribeRoom()
	d.pager.Reset()
	d.st.ClearSelection()
}

// Send publishes a message to an existing conversation.
func (d *DM) Send(roomID, text string) error {
	return d.transport.Send(dmAppDest(roomID), sendPayload{Content: text})
}

// StartDraft stages a conversation with a partner before any room exists.
// The draft replaces whatever room selection was active. A missing draft id
// is filled in with a fresh UUID.
func (d *DM) StartDraft(draft store.DraftDm) {
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	d.unsubscribeRoom()
	d.pager.Reset()
	d.st.SetDraftDm(draft)
}

// SendDraft creates the room for the staged draft, delivering text as its
// first message, then opens the new conversation. The draft is discarded
// only on success.
func (d *DM) SendDraft(ctx context.Context, text string) (*store.DmRoom, error) {
	draft := d.st.DraftDm()
	if draft == nil {
		return nil, ErrNoDraft
	}

	room, err := d.api.CreateDmRoom(ctx, rest.CreateDmRoomRequest{
		PostID:         draft.PostID,
		PartnerID:      draft.PartnerID,
		OwnCharacterID: draft.OwnCharacterID,
		FirstMessage:   text,
	})
	if err != nil {
		return nil, fmt.Errorf("create dm room: %w", err)
	}

	d.st.AddDmRoom(*room)
	if err := d.OpenRoom(ctx, room.ID); err != nil {
		d.logger.Warn("open created room failed", zap.String("room_id", room.ID), zap.Error(err))
	}
	return room, nil
}

// Connected reports whether the underlying socket is connected.
func (d *DM) Connected() bool {
	return d.transport.Connected()
}

func (d *DM) unsubscribeRoom() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.roomSubbed {
		d.transport.Unsubscribe(d.roomSub)
		d.roomSubbed = false
	}
}

// ownSender reports whether a sender id is the user's own character in a
// conversation. Own character ids differ per room.
func (d *DM) ownSender(roomID, senderID string) bool {
	for _, room := range d.st.DmRooms() {
		if room.ID == roomID {
			return room.OwnCharacterID == senderID
		}
	}
	return false
}

func (d *DM) handleRoomMessage(destination string, payload json.RawMessage) {
	var event MessageEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.logger.Warn("bad dm message payload",
			zap.String("destination", destination), zap.Error(err))
		return
	}

	d.st.AddMessage(store.ChannelDM, event.RoomID, event.message())

	if d.ownSender(event.RoomID, event.SenderID) || d.st.IsOpen(store.ChannelDM, event.RoomID) {
		return
	}
	d.st.IncrementUnread(store.ChannelDM, event.RoomID)
	d.st.PushNotification(store.Notification{
		Channel:    store.ChannelDM,
		RoomID:     event.RoomID,
		SenderName: event.SenderName,
		Message:    event.Content,
		Timestamp:  event.Timestamp,
	})
}

func (d *DM) handleNotification(destination string, payload json.RawMessage) {
	var event NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.logger.Warn("bad dm notification payload",
			zap.String("destination", destination), zap.Error(err))
		return
	}

	if d.ownSender(event.RoomID, event.SenderID) || d.st.IsOpen(store.ChannelDM, event.RoomID) {
		return
	}

	d.st.UpdateDmRoom(event.RoomID, func(room *store.DmRoom) {
		room.LastMessage = event.Preview
		room.LastMessageAt = event.Timestamp
	})
	d.st.IncrementUnread(store.ChannelDM, event.RoomID)
	d.st.PushNotification(store.Notification{
		Channel:    store.ChannelDM,
		RoomID:     event.RoomID,
		SenderName: event.SenderName,
		Message:    event.Preview,
		Timestamp:  event.Timestamp,
	})
}

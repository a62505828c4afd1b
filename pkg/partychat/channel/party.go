package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lfgparty/partychat/pkg/partychat/history"
	"github.com/lfgparty/partychat/pkg/partychat/socket"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

// PartyAPI is the slice of the REST client the party binding uses.
type PartyAPI interface {
	ListPartyRooms(ctx context.Context) ([]store.PartyRoom, error)
	MarkRead(ctx context.Context, channel store.Channel, roomID string) error
}

// Party binds the party-room channel: group chat rooms attached to a
// looking-for-group post.
type Party struct {
	transport Transport
	api       PartyAPI
	st        *store.Store
	pager     *history.Paginator
	logger    *zap.Logger
	selfID    string

	mu         sync.Mutex
	attached   bool
	notifSub   socket.SubscriptionID
	roomSubbed bool
	roomSub    socket.SubscriptionID
}

// PartyBuilder configures a Party binding.
type PartyBuilder struct {
	transport Transport
	api       PartyAPI
	st        *store.Store
	pager     *history.Paginator
	logger    *zap.Logger
	selfID    string
}

// NewParty creates a new party binding builder.
func NewParty() *PartyBuilder {
	return &PartyBuilder{logger: zap.NewNop()}
}

// WithTransport sets the socket transport.
func (b *PartyBuilder) WithTransport(transport Transport) *PartyBuilder {
	b.transport = transport
	return b
}

// WithAPI sets the REST client.
func (b *PartyBuilder) WithAPI(api PartyAPI) *PartyBuilder {
	b.api = api
	return b
}

// WithStore sets the chat store.
func (b *PartyBuilder) WithStore(st *store.Store) *PartyBuilder {
	b.st = st
	return b
}

// WithPaginator sets the history paginator for this channel.
func (b *PartyBuilder) WithPaginator(pager *history.Paginator) *PartyBuilder {
	b.pager = pager
	return b
}

// WithLogger sets the logger for the binding.
func (b *PartyBuilder) WithLogger(logger *zap.Logger) *PartyBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithSelfID sets the current user's id, used to ignore own pushes when
// counting unread.
func (b *PartyBuilder) WithSelfID(selfID string) *PartyBuilder {
	b.selfID = selfID
	return b
}

// Build creates the Party binding.
func (b *PartyBuilder) Build() (*Party, error) {
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
	return &Party{
		transport: b.transport,
		api:       b.api,
		st:        b.st,
		pager:     b.pager,
		logger:    b.logger,
		selfID:    b.selfID,
	}, nil
}

// Attach subscribes the party notification queue. Safe to call more than
// once; only the first call subscribes.
func (p *Party) Attach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		return
	}
	p.attached = true
	p.notifSub = p.transport.Subscribe(partyNotificationsQueue, p.handleNotification)
}

// Detach unsubscribes everything the binding holds.
func (p *Party) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attached {
		p.transport.Unsubscribe(p.notifSub)
		p.attached = false
	}
	if p.roomSubbed {
		p.transport.Unsubscribe(p.roomSub)
		p.roomSubbed = false
	}
}

// Refresh replaces the party room list from the server.
func (p *Party) Refresh(ctx context.Context) error {
	rooms, err := p.api.ListPartyRooms(ctx)
	if err != nil {
		return fmt.Errorf("list party rooms: %w", err)
	}
	p.st.SetPartyRooms(rooms)
	return nil
}

// OpenRoom selects a room, loads its recent history and subscribes its
// topic. Any previously open party room is unsubscribed first.
func (p *Party) OpenRoom(ctx context.Context, roomID string) error {
	p.unsubscribeRoom()

	p.st.SelectRoom(store.ChannelParty, roomID)
	if err := p.pager.Load(ctx, roomID); err != nil {
		return err
	}

	p.mu.Lock()
	p.roomSub = p.transport.Subscribe(partyTopic(roomID), p.handleRoomMessage)
	p.roomSubbed = true
	p.mu.Unlock()

	// Server-side read marker is best effort; local state already cleared.
	if err := p.api.MarkRead(ctx, store.ChannelParty, roomID); err != nil {
		p.logger.Warn("mark read failed", zap.String("room_id", roomID), zap.Error(err))
	}
	return nil
}

// LeaveRoom unsubscribes the open room's topic and clears the selection.
func (p *Party) LeaveRoom() {
	p.unsubscribeRoom()
	p.pager.Reset()
	p.st.ClearSelection()
}

// Send publishes a chat message to a party room.
func (p *Party) Send(roomID, text string) error {
	return p.transport.Send(partyAppDest(roomID), sendPayload{Content: text})
}

// Connected reports whether the underlying socket is connected.
func (p *Party) Connected() bool {
	return p.transport.Connected()
}

func (p *Party) unsubscribeRoom() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roomSubbed {
		p.transport.Unsubscribe(p.roomSub)
		p.roomSubbed = false
	}
}

// handleRoomMessage appends a pushed message to the open room's cache.
func (p *Party) handleRoomMessage(destination string, payload json.RawMessage) {
	var event MessageEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		p.logger.Warn("bad party message payload",
			zap.String("destination", destination), zap.Error(err))
		return
	}

	p.st.AddMessage(store.ChannelParty, event.RoomID, event.message())

	if event.SenderID == p.selfID || p.st.IsOpen(store.ChannelParty, event.RoomID) {
		return
	}
	p.st.IncrementUnread(store.ChannelParty, event.RoomID)
	p.st.PushNotification(store.Notification{
		Channel:    store.ChannelParty,
		RoomID:     event.RoomID,
		SenderName: event.SenderName,
		Message:    event.Content,
		Timestamp:  event.Timestamp,
	})
}

// handleNotification processes activity pushes for rooms whose topics the
// client is not subscribed to.
func (p *Party) handleNotification(destination string, payload json.RawMessage) {
	var event NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		p.logger.Warn("bad party notification payload",
			zap.String("destination", destination), zap.Error(err))
		return
	}

	if event.SenderID == p.selfID || p.st.IsOpen(store.ChannelParty, event.RoomID) {
		return
	}

	p.st.UpdatePartyRoom(event.RoomID, func(room *store.PartyRoom) {
		room.LastMessage = event.Preview
		room.LastMessageAt = event.Timestamp
	})
	p.st.IncrementUnread(store.ChannelParty, event.RoomID)
	p.st.PushNotification(store.Notification{
		Channel:    store.ChannelParty,
		RoomID:     event.RoomID,
		SenderName: event.SenderName,
		Message:    event.Preview,
		Timestamp:  event.Timestamp,
	})
}

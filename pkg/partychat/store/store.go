// Package store holds the client-side chat state: room lists, per-room
// message caches, unread counters, the notification log and the draft DM.
// It is the single source of truth consumed by the UI layer; every mutation
// goes through a Store method and change listeners fire after each one.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lfgparty/partychat/pkg/partychat/o11y"
)

// notificationCap bounds the recent-activity log; the oldest entry is
// evicted first.
const notificationCap = 10

// Store is an explicit, injectable state container. Construct one per
// session with NewStore; there is no package-level instance.
type Store struct {
	mu     sync.Mutex
	logger *zap.Logger

	partyRooms []PartyRoom
	dmRooms    []DmRoom
	messages   map[Channel]map[string][]Message

	notifications []Notification
	draft         *DraftDm
	selected      *RoomRef

	listenerMu   sync.Mutex
	listeners    map[int]func()
	nextListener int

	unreadGauge o11y.Gauge
}

// Builder configures a Store.
type Builder struct {
	logger  *zap.Logger
	metrics o11y.MetricsProvider
}

// NewStore creates a new Store builder.
func NewStore() *Builder {
	return &Builder{logger: zap.NewNop()}
}

// WithLogger sets the logger for the store.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithMetrics sets an optional metrics provider.
func (b *Builder) WithMetrics(provider o11y.MetricsProvider) *Builder {
	b.metrics = provider
	return b
}

// Build creates the Store.
func (b *Builder) Build() *Store {
	s := &Store{
		logger:    b.logger,
		messages:  make(map[Channel]map[string][]Message),
		listeners: make(map[int]func()),
	}
	if b.metrics != nil {
		s.unreadGauge = b.metrics.Gauge("chat_unread_total")
	}
	return s
}

// Subscribe registers a change listener fired synchronously after every
// mutation. The returned function cancels the registration.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

// notify runs all listeners. Called after the data lock is released so a
// listener may read the store.
func (s *Store) notify() {
	s.listenerMu.Lock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// --- Rooms ---

// SetPartyRooms replaces the party room list, as after a REST refresh.
func (s *Store) SetPartyRooms(rooms []PartyRoom) {
	s.mu.Lock()
	s.partyRooms = append([]PartyRoom(nil), rooms...)
	s.publishUnread()
	s.mu.Unlock()
	s.notify()
}

// SetDmRooms replaces the DM room list.
func (s *Store) SetDmRooms(rooms []DmRoom) {
	s.mu.Lock()
	s.dmRooms = append([]DmRoom(nil), rooms...)
	s.publishUnread()
	s.mu.Unlock()
	s.notify()
}

// UpdatePartyRoom patches one party room in place. It reports whether the
// room was found.
func (s *Store) UpdatePartyRoom(roomID string, patch func(*PartyRoom)) bool {
	s.mu.Lock()
	found := false
	for i := range s.partyRooms {
		if s.partyRooms[i].ID == roomID {
			patch(&s.partyRooms[i])
			found = true
			break
		}
	}
	s.publishUnread()
	s.mu.Unlock()
	if found {
		s.notify()
	}
	return found
}

// UpdateDmRoom patches one DM room in place.
func (s *Store) UpdateDmRoom(roomID string, patch func(*DmRoom)) bool {
	s.mu.Lock()
	found := false
	for i := range s.dmRooms {
		if s.dmRooms[i].ID == roomID {
			patch(&s.dmRooms[i])
			found = true
			break
		}
	}
	s.publishUnread()
	s.mu.Unlock()
	if found {
		s.notify()
	}
	return found
}

// AddDmRoom appends a newly created DM room, as after promoting a draft.
func (s *Store) AddDmRoom(room DmRoom) {
	s.mu.Lock()
	s.dmRooms = append(s.dmRooms, room)
	s.publishUnread()
	s.mu.Unlock()
	s.notify()
}

// PartyRooms returns a snapshot of the party room list.
func (s *Store) PartyRooms() []PartyRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PartyRoom(nil), s.partyRooms...)
}

// DmRooms returns a snapshot of the DM room list.
func (s *Store) DmRooms() []DmRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DmRoom(nil), s.dmRooms...)
}

// --- Messages ---

// SetMessages replaces a room's message cache, as after an initial history
// fetch. Messages must already be ascending by timestamp.
func (s *Store) SetMessages(channel Channel, roomID string, msgs []Message) {
	s.mu.Lock()
	s.roomMessages(channel)[roomID] = append([]Message(nil), msgs...)
	s.mu.Unlock()
	s.notify()
}

// AddMessage appends a pushed or optimistic message and updates the room's
// preview and last-activity time in the same mutation, keeping both views
// consistent. The per-room cache stays non-decreasing by timestamp.
func (s *Store) AddMessage(channel Channel, roomID string, msg Message) {
	s.mu.Lock()
	cache := s.roomMessages(channel)[roomID]
	cache = insertOrdered(cache, msg)
	s.roomMessages(channel)[roomID] = cache

	switch channel {
	case ChannelParty:
		for i := range s.partyRooms {
			if s.partyRooms[i].ID == roomID {
				s.partyRooms[i].LastMessage = msg.Content
				s.partyRooms[i].LastMessageAt = msg.Timestamp
				break
			}
		}
	case ChannelDM:
		for i := range s.dmRooms {
			if s.dmRooms[i].ID == roomID {
				s.dmRooms[i].LastMessage = msg.Content
				s.dmRooms[i].LastMessageAt = msg.Timestamp
				break
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}

// PrependMessages merges an older history page in front of the cache.
// Pages arrive ascending by timestamp, so prepending preserves ordering.
func (s *Store) PrependMessages(channel Channel, roomID string, msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	existing := s.roomMessages(channel)[roomID]
	merged := make([]Message, 0, len(msgs)+len(existing))
	merged = append(merged, msgs...)
	merged = append(merged, existing...)
	s.roomMessages(channel)[roomID] = merged
	s.mu.Unlock()
	s.notify()
}

// Messages returns a snapshot of a room's cache.
func (s *Store) Messages(channel Channel, roomID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.roomMessages(channel)[roomID]...)
}

// roomMessages returns the per-room map for a channel. Caller holds s.mu.
func (s *Store) roomMessages(channel Channel) map[string][]Message {
	m, ok := s.messages[channel]
	if !ok {
		m = make(map[string][]Message)
		s.messages[channel] = m
	}
	return m
}

// insertOrdered appends msg, walking back past any entries with a later
// timestamp so the cache stays non-decreasing.
func insertOrdered(cache []Message, msg Message) []Message {
	i := len(cache)
	for i > 0 && cache[i-1].Timestamp.After(msg.Timestamp) {
		i--
	}
	cache = append(cache, Message{})
	copy(cache[i+1:], cache[i:])
	cache[i] = msg
	return cache
}

// --- Unread counters ---

// IncrementUnread bumps a room's unread count. Callers only invoke this for
// pushes from other users landing in rooms that are not currently open.
func (s *Store) IncrementUnread(channel Channel, roomID string) {
	s.mu.Lock()
	switch channel {
	case ChannelParty:
		for i := range s.partyRooms {
			if s.partyRooms[i].ID == roomID {
				s.partyRooms[i].UnreadCount++
				break
			}
		}
	case ChannelDM:
		for i := range s.dmRooms {
			if s.dmRooms[i].ID == roomID {
				s.dmRooms[i].UnreadCount++
				break
			}
		}
	}
	s.publishUnread()
	s.mu.Unlock()
	s.notify()
}

// ClearUnread zeroes a room's unread count. Idempotent.
func (s *Store) ClearUnread(channel Channel, roomID string) {
	s.mu.Lock()
	switch channel {
	case ChannelParty:
		for i := range s.partyRooms {
			if s.partyRooms[i].ID == roomID {
				s.partyRooms[i].UnreadCount = 0
				break
			}
		}
	case ChannelDM:
		for i := range s.dmRooms {
			if s.dmRooms[i].ID == roomID {
				s.dmRooms[i].UnreadCount = 0
				break
			}
		}
	}
	s.publishUnread()
	s.mu.Unlock()
	s.notify()
}

// ChannelUnread returns the unread total for one channel, recomputed from
// room state rather than tracked separately, so it cannot drift.
func (s *Store) ChannelUnread(channel Channel) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelUnreadLocked(channel)
}

// TotalUnread returns the unread total across both channels.
func (s *Store) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelUnreadLocked(ChannelParty) + s.channelUnreadLocked(ChannelDM)
}

func (s *Store) channelUnreadLocked(channel Channel) int {
	total := 0
	switch channel {
	case ChannelParty:
		for i := range s.partyRooms {
			total += s.partyRooms[i].UnreadCount
		}
	case ChannelDM:
		for i := range s.dmRooms {
			total += s.dmRooms[i].UnreadCount
		}
	}
	return total
}

// publishUnread pushes the recomputed global total to the gauge, if any.
// Caller holds s.mu.
func (s *Store) publishUnread() {
	if s.unreadGauge == nil {
		return
	}
	total := s.channelUnreadLocked(ChannelParty) + s.channelUnreadLocked(ChannelDM)
	s.unreadGauge.Set(context.Background(), float64(total))
}

// --- Selection and draft ---

// SelectRoom marks a room as the open one, clearing its unread count and
// any pending draft. Selecting the already-open room is a no-op beyond the
// idempotent unread clear.
func (s *Store) SelectRoom(channel Channel, roomID string) {
	s.mu.Lock()
	s.selected = &RoomRef{Channel: channel, RoomID: roomID}
	if s.draft != nil {
		s.logger.Debug("draft cleared by room selection", zap.String("roomId", roomID))
		s.draft = nil
	}
	s.mu.Unlock()

	s.ClearUnread(channel, roomID)
}

// ClearSelection closes the open room, as when the user navigates away.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	s.notify()
}

// SelectedRoom returns the open room, or nil.
func (s *Store) SelectedRoom() *RoomRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	ref := *s.selected
	return &ref
}

// IsOpen reports whether the given room is the currently open one.
func (s *Store) IsOpen(channel Channel, roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected != nil && s.selected.Channel == channel && s.selected.RoomID == roomID
}

// SetDraftDm stages a not-yet-created DM conversation. A draft and a
// selected room are mutually exclusive, so any selection is cleared.
func (s *Store) SetDraftDm(draft DraftDm) {
	s.mu.Lock()
	s.draft = &draft
	s.selected = nil
	s.mu.Unlock()
	s.notify()
}

// ClearDraftDm discards the draft, as when the first message succeeds in
// creating a real room or the user navigates away.
func (s *Store) ClearDraftDm() {
	s.mu.Lock()
	s.draft = nil
	s.mu.Unlock()
	s.notify()
}

// DraftDm returns the pending draft, or nil.
func (s *Store) DraftDm() *DraftDm {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return nil
	}
	draft := *s.draft
	return &draft
}

// --- Notifications ---

// PushNotification appends to the recent-activity log, evicting the oldest
// entry beyond the cap.
func (s *Store) PushNotification(n Notification) {
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > notificationCap {
		s.notifications = s.notifications[len(s.notifications)-notificationCap:]
	}
	s.mu.Unlock()
	s.notify()
}

// Notifications returns a snapshot of the log, oldest first.
func (s *Store) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification(nil), s.notifications...)
}

// --- Lifecycle ---

// Reset drops all state, as on logout. Listeners stay registered.
func (s *Store) Reset() {
	s.mu.Lock()
	s.partyRooms = nil
	s.dmRooms = nil
	s.messages = make(map[Channel]map[string][]Message)
	s.notifications = nil
	s.draft = nil
	s.selected = nil
	s.publishUnread()
	s.mu.Unlock()
	s.notify()
}

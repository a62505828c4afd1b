package channel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lfgparty/partychat/pkg/partychat/history"
	"github.com/lfgparty/partychat/pkg/partychat/rest"
	"github.com/lfgparty/partychat/pkg/partychat/socket"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type subEntry struct {
	destination string
	handler     socket.Handler
}

type sentMsg struct {
	destination string
	payload     any
}

// fakeTransport records subscriptions and sends, and lets tests push
// server events to the registered handlers.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	nextID    socket.SubscriptionID
	subs      map[socket.SubscriptionID]subEntry
	sent      []sentMsg
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: true,
		subs:      make(map[socket.SubscriptionID]subEntry),
	}
}

func (f *fakeTransport) Send(destination string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return socket.ErrNotConnected
	}
	f.sent = append(f.sent, sentMsg{destination, payload})
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Subscribe(destination string, handler socket.Handler) socket.SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.subs[f.nextID] = subEntry{destination, handler}
	return f.nextID
}

func (f *fakeTransport) Unsubscribe(id socket.SubscriptionID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, id)
}

func (f *fakeTransport) destinations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id := socket.SubscriptionID(1); id <= f.nextID; id++ {
		if sub, ok := f.subs[id]; ok {
			out = append(out, sub.destination)
		}
	}
	return out
}

// push delivers an event to the handler subscribed to a destination.
func (f *fakeTransport) push(t *testing.T, destination string, event any) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	f.mu.Lock()
	var handler socket.Handler
	for _, sub := range f.subs {
		if sub.destination == destination {
			handler = sub.handler
			break
		}
	}
	f.mu.Unlock()

	require.NotNil(t, handler, "no subscription for %s", destination)
	handler(destination, payload)
}

// fakeHistory serves one canned first page for every room.
type fakeHistory struct {
	mu    sync.Mutex
	pages map[string]*rest.MessagePage
	calls []string
}

func (f *fakeHistory) FetchMessages(ctx context.Context, channel store.Channel, roomID string, limit int, before string) (*rest.MessagePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, roomID)
	if page, ok := f.pages[roomID]; ok {
		return page, nil
	}
	return &rest.MessagePage{}, nil
}

func newPager(t *testing.T, channel store.Channel, st *store.Store, hist *fakeHistory) *history.Paginator {
	t.Helper()
	pager, err := history.NewPaginator().
		WithChannel(channel).
		WithFetcher(hist).
		WithStore(st).
		Build()
	require.NoError(t, err)
	return pager
}

type fakePartyAPI struct {
	mu        sync.Mutex
	rooms     []store.PartyRoom
	marksRead []string
}

func (f *fakePartyAPI) ListPartyRooms(ctx context.Context) ([]store.PartyRoom, error) {
	return f.rooms, nil
}

func (f *fakePartyAPI) MarkRead(ctx context.Context, channel store.Channel, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marksRead = append(f.marksRead, roomID)
	return nil
}

type fakeDmAPI struct {
	mu        sync.Mutex
	rooms     []store.DmRoom
	created   []rest.CreateDmRoomRequest
	createErr error
	marksRead []string
}

func (f *fakeDmAPI) ListDmRooms(ctx context.Context) ([]store.DmRoom, error) {
	return f.rooms, nil
}

func (f *fakeDmAPI) MarkRead(ctx context.Context, channel store.Channel, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marksRead = append(f.marksRead, roomID)
	return nil
}

func (f *fakeDmAPI) CreateDmRoom(ctx context.Context, req rest.CreateDmRoomRequest) (*store.DmRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &store.DmRoom{
		ID:             "d-created",
		PostID:         req.PostID,
		PartnerID:      req.PartnerID,
		OwnCharacterID: req.OwnCharacterID,
	}, nil
}

package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lfgparty/partychat/pkg/partychat/rest"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

func newTestParty(t *testing.T) (*Party, *fakeTransport, *fakePartyAPI, *store.Store, *fakeHistory) {
	t.Helper()
	transport := newFakeTransport()
	api := &fakePartyAPI{}
	st := store.NewStore().Build()
	hist := &fakeHistory{pages: map[string]*rest.MessagePage{}}

	party, err := NewParty().
		WithTransport(transport).
		WithAPI(api).
		WithStore(st).
		WithPaginator(newPager(t, store.ChannelParty, st, hist)).
		WithSelfID("me").
		Build()
	require.NoError(t, err)
	return party, transport, api, st, hist
}

func TestPartyAttach(t *testing.T) {
	party, transport, _, _, _ := newTestParty(t)

	party.Attach()
	party.Attach()
	assert.Equal(t, []string{"/user/queue/party-notifications"}, transport.destinations())

	party.Detach()
	assert.Empty(t, transport.destinations())
}

func TestPartyRefresh(t *testing.T) {
	party, _, api, st, _ := newTestParty(t)
	api.rooms = []store.PartyRoom{{ID: "p1", DisplayName: "Raid night"}}

	require.NoError(t, party.Refresh(context.Background()))
	require.Len(t, st.PartyRooms(), 1)
	assert.Equal(t, "Raid night", st.PartyRooms()[0].DisplayName)
}

func TestPartyOpenRoom(t *testing.T) {
	t.Run("selects, loads history, subscribes and marks read", func(t *testing.T) {
		party, transport, api, st, hist := newTestParty(t)
		hist.pages["p1"] = &rest.MessagePage{
			Messages: []store.Message{{ID: "m1", RoomID: "p1", Timestamp: base}},
		}
		party.Attach()

		require.NoError(t, party.OpenRoom(context.Background(), "p1"))

		assert.True(t, st.IsOpen(store.ChannelParty, "p1"))
		assert.Len(t, st.Messages(store.ChannelParty, "p1"), 1)
		assert.Contains(t, transport.destinations(), "/topic/party/p1")
		assert.Equal(t, []string{"p1"}, api.marksRead)
	})

	t.Run("switching rooms unsubscribes the previous topic", func(t *testing.T) {
		party, transport, _, _, _ := newTestParty(t)
		party.Attach()

		require.NoError(t, party.OpenRoom(context.Background(), "p1"))
		require.NoError(t, party.OpenRoom(context.Background(), "p2"))

		dests := transport.destinations()
		assert.Contains(t, dests, "/topic/party/p2")
		assert.NotContains(t, dests, "/topic/party/p1")
	})
}

func TestPartyLeaveRoom(t *testing.T) {
	party, transport, _, st, _ := newTestParty(t)
	require.NoError(t, party.OpenRoom(context.Background(), "p1"))

	party.LeaveRoom()

	assert.NotContains(t, transport.destinations(), "/topic/party/p1")
	assert.Nil(t, st.SelectedRoom())
}

func TestPartySend(t *testing.T) {
	party, transport, _, _, _ := newTestParty(t)
	require.NoError(t, party.Send("p1", "hello party"))

	require.Len(t, transport.sent, 1)
	assert.Equal(t, "/app/chat/p1", transport.sent[0].destination)
	assert.Equal(t, sendPayload{Content: "hello party"}, transport.sent[0].payload)
}

func TestPartyRoomPushes(t *testing.T) {
	t.Run("push to the open room appends without unread", func(t *testing.T) {
		party, transport, _, st, _ := newTestParty(t)
		st.SetPartyRooms([]store.PartyRoom{{ID: "p1"}})
		require.NoError(t, party.OpenRoom(context.Background(), "p1"))

		transport.push(t, "/topic/party/p1", MessageEvent{
			ID: "m1", RoomID: "p1", SenderID: "other", SenderName: "Riva",
			Content: "hi", Timestamp: base,
		})

		require.Len(t, st.Messages(store.ChannelParty, "p1"), 1)
		assert.Equal(t, 0, st.TotalUnread())
		assert.Empty(t, st.Notifications())
	})

	t.Run("push to a room no longer open counts as unread", func(t *testing.T) {
		party, transport, _, st, _ := newTestParty(t)
		st.SetPartyRooms([]store.PartyRoom{{ID: "p1"}})
		require.NoError(t, party.OpenRoom(context.Background(), "p1"))
		st.ClearSelection()

		transport.push(t, "/topic/party/p1", MessageEvent{
			ID: "m1", RoomID: "p1", SenderID: "other", SenderName: "Riva",
			Content: "hi", Timestamp: base,
		})

		assert.Equal(t, 1, st.PartyRooms()[0].UnreadCount)
		require.Len(t, st.Notifications(), 1)
		assert.Equal(t, "Riva", st.Notifications()[0].SenderName)
	})

	t.Run("own push never counts as unread", func(t *testing.T) {
		party, transport, _, st, _ := newTestParty(t)
		st.SetPartyRooms([]store.PartyRoom{{ID: "p1"}})
		require.NoError(t, party.OpenRoom(context.Background(), "p1"))
		st.ClearSelection()

		transport.push(t, "/topic/party/p1", MessageEvent{
			ID: "m1", RoomID: "p1", SenderID: "me", Content: "mine", Timestamp: base,
		})

		assert.Len(t, st.Messages(store.ChannelParty, "p1"), 1)
		assert.Equal(t, 0, st.TotalUnread())
		assert.Empty(t, st.Notifications())
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		party, transport, _, st, _ := newTestParty(t)
		require.NoError(t, party.OpenRoom(context.Background(), "p1"))

		transport.push(t, "/topic/party/p1", "not an object")
		assert.Empty(t, st.Messages(store.ChannelParty, "p1"))
	})
}

func TestPartyNotifications(t *testing.T) {
	t.Run("activity in an unwatched room updates preview and unread", func(t *testing.T) {
		party, transport, _, st, _ := newTestParty(t)
		st.SetPartyRooms([]store.PartyRoom{{ID: "p1"}, {ID: "p2"}})
		party.Attach()
		require.NoError(t, party.OpenRoom(context.Background(), "p1"))

		transport.push(t, "/user/queue/party-notifications", NotificationEvent{
			RoomID: "p2", SenderID: "other", SenderName: "Riva",
			Preview: "are you coming?", Timestamp: base.Add(time.Minute),
		})

		rooms := st.PartyRooms()
		assert.Equal(t, 1, rooms[1].UnreadCount)
		assert.Equal(t, "are you coming?", rooms[1].LastMessage)
		require.Len(t, st.Notifications(), 1)
		assert.Equal(t, store.ChannelParty, st.Notifications()[0].Channel)
	})

	t.Run("notification for the open room is ignored", func(t *testing.T) {
		party, transport, _, st, _ := newTestParty(t)
		st.SetPartyRooms([]store.PartyRoom{{ID: "p1"}})
		party.Attach()
		require.NoError(t, party.OpenRoom(context.Background(), "p1"))

		transport.push(t, "/user/queue/party-notifications", NotificationEvent{
			RoomID: "p1", SenderID: "other", Preview: "hi",
		})

		assert.Equal(t, 0, st.TotalUnread())
		assert.Empty(t, st.Notifications())
	})
}

package socket

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// SubscriptionID identifies one live subscription. Ids are monotonic and
// never reused for the lifetime of a manager.
type SubscriptionID int64

// String renders the id the way it appears in frame headers.
func (id SubscriptionID) String() string {
	return "sub-" + strconv.FormatInt(int64(id), 10)
}

// Handler receives pushed messages for one subscription. The payload is
// always valid JSON; a non-JSON body arrives as a JSON string value.
type Handler func(destination string, payload json.RawMessage)

type subscription struct {
	id          SubscriptionID
	destination string
	handler     Handler
}

// Registry tracks the destinations the client wants pushed messages for.
// Local state is authoritative: SUBSCRIBE frames go out only while the
// connection is up, and the manager replays the whole set after reconnect.
type Registry struct {
	mgr *Manager

	mu     sync.Mutex
	nextID int64
	subs   map[SubscriptionID]*subscription
}

func newRegistry(mgr *Manager) *Registry {
	return &Registry{
		mgr:  mgr,
		subs: make(map[SubscriptionID]*subscription),
	}
}

// Subscribe registers a handler for a destination. When the connection is
// down the subscription is staged and sent once the handshake completes.
func (r *Registry) Subscribe(destination string, handler Handler) SubscriptionID {
	r.mu.Lock()
	r.nextID++
	id := SubscriptionID(r.nextID)
	r.subs[id] = &subscription{id: id, destination: destination, handler: handler}
	count := len(r.subs)
	r.mu.Unlock()

	r.mgr.publishSubscriptions(count)
	r.mgr.logger.Debug("subscription registered",
		zap.Stringer("id", id), zap.String("destination", destination))

	if r.mgr.State() == StateConnected {
		r.mgr.sendSubscribe(id, destination)
	}
	return id
}

// Unsubscribe removes a subscription. Local removal always succeeds; the
// UNSUBSCRIBE frame is best-effort and only attempted while connected.
func (r *Registry) Unsubscribe(id SubscriptionID) {
	r.mu.Lock()
	_, exists := r.subs[id]
	delete(r.subs, id)
	count := len(r.subs)
	r.mu.Unlock()

	if !exists {
		return
	}
	r.mgr.publishSubscriptions(count)

	if r.mgr.State() == StateConnected {
		r.mgr.sendUnsubscribe(id)
	}
}

// Len returns the number of live subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// snapshot returns the live set ordered by id, for replay after reconnect.
func (r *Registry) snapshot() []*subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*subscription, 0, len(r.subs))
	for id := SubscriptionID(1); id <= SubscriptionID(r.nextID); id++ {
		if sub, ok := r.subs[id]; ok {
			out = append(out, sub)
		}
	}
	return out
}

// lookup resolves the subscription header of a MESSAGE frame to a handler.
func (r *Registry) lookup(headerID string) (Handler, bool) {
	raw, found := strings.CutPrefix(headerID, "sub-")
	if !found {
		return nil, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[SubscriptionID(n)]
	if !ok {
		return nil, false
	}
	return sub.handler, true
}

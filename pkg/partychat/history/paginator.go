// Package history pages backwards through a room's message log, feeding
// fetched pages into the chat store.
package history

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lfgparty/partychat/pkg/partychat/rest"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

// Fetcher is the slice of the REST client the paginator needs.
type Fetcher interface {
	FetchMessages(ctx context.Context, channel store.Channel, roomID string, limit int, before string) (*rest.MessagePage, error)
}

// Paginator tracks the backward-pagination cursor for one channel. Only one
// room is paged at a time; opening another room resets the cursor state.
type Paginator struct {
	channel  store.Channel
	fetcher  Fetcher
	st       *store.Store
	logger   *zap.Logger
	pageSize int

	mu      sync.Mutex
	roomID  string
	hasMore bool
	cursor  string
}

// Builder configures a Paginator.
type Builder struct {
	channel  store.Channel
	fetcher  Fetcher
	st       *store.Store
	logger   *zap.Logger
	pageSize int
}

// NewPaginator creates a new paginator builder.
func NewPaginator() *Builder {
	return &Builder{
		logger:   zap.NewNop(),
		pageSize: 30,
	}
}

// WithChannel sets the channel this paginator serves.
func (b *Builder) WithChannel(channel store.Channel) *Builder {
	b.channel = channel
	return b
}

// WithFetcher sets the history source.
func (b *Builder) WithFetcher(fetcher Fetcher) *Builder {
	b.fetcher = fetcher
	return b
}

// WithStore sets the store pages are merged into.
func (b *Builder) WithStore(st *store.Store) *Builder {
	b.st = st
	return b
}

// WithLogger sets the logger for the paginator.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithPageSize sets how many messages each page requests.
func (b *Builder) WithPageSize(size int) *Builder {
	if size > 0 {
		b.pageSize = size
	}
	return b
}

// Build creates the Paginator.
func (b *Builder) Build() (*Paginator, error) {
	if b.channel == "" {
		return nil, fmt.Errorf("channel is required")
	}
	if b.fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if b.st == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Paginator{
		channel:  b.channel,
		fetcher:  b.fetcher,
		st:       b.st,
		logger:   b.logger,
		pageSize: b.pageSize,
	}, nil
}

// Load fetches the most recent page for a room and seeds the store's cache
// with it. Any cursor state from a previously opened room is discarded.
func (p *Paginator) Load(ctx context.Context, roomID string) error {
	page, err := p.fetcher.FetchMessages(ctx, p.channel, roomID, p.pageSize, "")
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	p.st.SetMessages(p.channel, roomID, page.Messages)

	p.mu.Lock()
	p.roomID = roomID
	p.hasMore = page.HasMore
	p.cursor = page.NextCursor
	p.mu.Unlock()

	p.logger.Debug("history loaded",
		zap.String("channel", string(p.channel)),
		zap.String("room_id", roomID),
		zap.Int("messages", len(page.Messages)),
		zap.Bool("has_more", page.HasMore))
	return nil
}

// FetchMore loads the page before the current cursor and prepends it to the
// room's cache. Once the history is exhausted it becomes a terminal no-op:
// every further call returns (nil, nil) without touching the network.
func (p *Paginator) FetchMore(ctx context.Context) ([]store.Message, error) {
	p.mu.Lock()
	roomID, hasMore, cursor := p.roomID, p.hasMore, p.cursor
	p.mu.Unlock()

	if roomID == "" || !hasMore || cursor == "" {
		return nil, nil
	}

	page, err := p.fetcher.FetchMessages(ctx, p.channel, roomID, p.pageSize, cursor)
	if err != nil {
		return nil, fmt.Errorf("fetch older history: %w", err)
	}

	p.st.PrependMessages(p.channel, roomID, page.Messages)

	p.mu.Lock()
	// Guard against a room switch that raced the fetch.
	if p.roomID == roomID {
		p.hasMore = page.HasMore
		p.cursor = page.NextCursor
	}
	p.mu.Unlock()

	return page.Messages, nil
}

// HasMore reports whether older history remains for the current room.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Reset forgets the current room and cursor, the leave-room path.
func (p *Paginator) Reset() {
	p.mu.Lock()
	p.roomID = ""
	p.hasMore = false
	p.cursor = ""
	p.mu.Unlock()
}

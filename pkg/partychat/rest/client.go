// Package rest talks to the chat REST endpoints: room listings, cursor-based
// message history, mark-as-read and DM room creation. Failures are returned
// to the caller and never touch the socket connection state.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lfgparty/partychat/pkg/partychat/o11y"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

// TokenProvider returns the bearer token for the current session, or an
// error when no session is active.
type TokenProvider func(ctx context.Context) (string, error)

// MessagePage is one page of backward history.
type MessagePage struct {
	Messages   []store.Message `json:"messages"`
	HasMore    bool            `json:"hasMore"`
	NextCursor string          `json:"nextCursor"`
}

// CreateDmRoomRequest promotes a draft DM into a real room.
type CreateDmRoomRequest struct {
	PostID         string `json:"postId,omitempty"`
	PartnerID      string `json:"partnerId"`
	OwnCharacterID string `json:"ownCharacterId"`
	FirstMessage   string `json:"firstMessage"`
}

// Client calls the chat REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	token      TokenProvider
	tracing    o11y.TracingProvider
}

// Builder configures a REST Client.
type Builder struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	token      TokenProvider
	tracing    o11y.TracingProvider
}

// NewClient creates a new REST client builder.
func NewClient() *Builder {
	return &Builder{
		logger:     zap.NewNop(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL sets the API origin, e.g. "https://api.example.com".
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.baseURL = baseURL
	return b
}

// WithHTTPClient overrides the underlying http.Client.
func (b *Builder) WithHTTPClient(httpClient *http.Client) *Builder {
	if httpClient != nil {
		b.httpClient = httpClient
	}
	return b
}

// WithLogger sets the logger for the client.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithTokenProvider sets the session token source.
func (b *Builder) WithTokenProvider(provider TokenProvider) *Builder {
	b.token = provider
	return b
}

// WithTracing sets an optional tracing provider.
func (b *Builder) WithTracing(provider o11y.TracingProvider) *Builder {
	b.tracing = provider
	return b
}

// Build creates the Client.
func (b *Builder) Build() (*Client, error) {
	if b.baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return &Client{
		baseURL:    b.baseURL,
		httpClient: b.httpClient,
		logger:     b.logger,
		token:      b.token,
		tracing:    b.tracing,
	}, nil
}

// ListPartyRooms fetches the party rooms the user belongs to.
func (c *Client) ListPartyRooms(ctx context.Context) ([]store.PartyRoom, error) {
	body, err := c.request(ctx, http.MethodGet, "/api/chat/party/rooms", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Rooms []store.PartyRoom `json:"rooms"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode party rooms: %w", err)
	}
	return resp.Rooms, nil
}

// ListDmRooms fetches the user's direct-message rooms.
func (c *Client) ListDmRooms(ctx context.Context) ([]store.DmRoom, error) {
	body, err := c.request(ctx, http.MethodGet, "/api/chat/dm/rooms", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Rooms []store.DmRoom `json:"rooms"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode dm rooms: %w", err)
	}
	return resp.Rooms, nil
}

// FetchMessages loads one page of history, newest page first. An empty
// before cursor fetches the most recent page.
func (c *Client) FetchMessages(ctx context.Context, channel store.Channel, roomID string, limit int, before string) (*MessagePage, error) {
	path := fmt.Sprintf("/api/chat/%s/rooms/%s/messages?limit=%s",
		channel, url.PathEscape(roomID), strconv.Itoa(limit))
	if before != "" {
		path += "&before=" + url.QueryEscape(before)
	}

	body, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var page MessagePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode message page: %w", err)
	}
	return &page, nil
}

// MarkRead tells the server the user has seen a room.
func (c *Client) MarkRead(ctx context.Context, channel store.Channel, roomID string) error {
	path := fmt.Sprintf("/api/chat/%s/rooms/%s/read", channel, url.PathEscape(roomID))
	_, err := c.request(ctx, http.MethodPost, path, nil)
	return err
}

// CreateDmRoom creates a DM room from a draft, delivering the first message.
func (c *Client) CreateDmRoom(ctx context.Context, req CreateDmRoomRequest) (*store.DmRoom, error) {
	body, err := c.request(ctx, http.MethodPost, "/api/chat/dm/rooms", req)
	if err != nil {
		return nil, err
	}
	var room store.DmRoom
	if err := json.Unmarshal(body, &room); err != nil {
		return nil, fmt.Errorf("decode dm room: %w", err)
	}
	return &room, nil
}

func (c *Client) request(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	if c.tracing != nil {
		var span o11y.Span
		ctx, span = c.tracing.StartSpan(ctx, "chatapi.request")
		span.SetAttributes(
			o11y.Label{Key: "method", Value: method},
			o11y.Label{Key: "path", Value: path},
		)
		defer span.End()
	}

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("session token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("chat api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

// APIError is a non-2xx response from the chat API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Body)
}

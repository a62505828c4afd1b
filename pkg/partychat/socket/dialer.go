package socket

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// Conn is a minimal text-frame connection. The production implementation
// wraps a WebSocket; tests substitute an in-memory pipe.
type Conn interface {
	// Read blocks until a frame arrives, the context is canceled, or the
	// connection is closed.
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, data string) error
	Close() error
}

// Dialer establishes a Conn to the chat endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

type websocketDialer struct{}

func (websocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
}

func (c *websocketConn) Read(ctx context.Context) (string, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *websocketConn) Write(ctx context.Context, data string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(data))
}

func (c *websocketConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "client closed")
}

package socket

import "errors"

var (
	// ErrNotConnected is returned when a frame is sent while the connection
	// is down. Outgoing messages are never queued.
	ErrNotConnected = errors.New("socket: not connected")

	// ErrClosed is returned by Connect after Close has torn the manager down.
	ErrClosed = errors.New("socket: manager closed")

	// ErrNoSession is returned by Connect when no session is active.
	ErrNoSession = errors.New("socket: no active session")
)

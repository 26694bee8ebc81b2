package transport

import (
	"context"
)

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// IConn is one persistent duplex connection carrying whole frames.
// ReadFrame is called from a single goroutine, WriteFrame may be called concurrently.
type IConn interface {
	// ReadFrame blocks until the next frame arrives.
	// A closed or broken connection returns an error wrapping common.ErrConnectionLost
	ReadFrame() ([]byte, error)
	// WriteFrame writes one frame
	WriteFrame(frame []byte) error
	// Close closes the connection, unblocking a pending ReadFrame
	Close() error
	// RemoteAddr returns a printable address of the peer
	RemoteAddr() string
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IClientTransport dials connections to the relay
type IClientTransport interface {
	// Dial establishes a new connection to endpoint
	Dial(ctx context.Context, endpoint string) (IConn, error)
	// Name returns the name of the transport type (e.g., "unix", "tcp")
	Name() string
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IListener accepts connections for the relay
type IListener interface {
	// Accept blocks until a new connection arrives or the listener is closed
	Accept() (IConn, error)
	// Close stops listening
	Close() error
	// Addr returns the address the listener is bound to
	Addr() string
}

// IServerTransport creates listeners for the relay
type IServerTransport interface {
	// Listen starts listening on endpoint
	Listen(endpoint string) (IListener, error)
	// Name returns the name of the transport type (e.g., "unix", "tcp")
	Name() string
}

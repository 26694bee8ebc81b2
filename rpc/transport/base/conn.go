package base

import (
	"bufio"
	"context"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"sync"
)

var Logger = logger.GetLogger("transport")

// --------------------------------------------------------------------------
// Framed Connection
// --------------------------------------------------------------------------

// framedConn implements transport.IConn on top of a stream connection
type framedConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

// NewConn wraps a stream connection with length-prefixed framing
func NewConn(conn net.Conn) transport.IConn {
	return &framedConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 64*1024),
	}
}

func (c *framedConn) ReadFrame() ([]byte, error) {
	data, err := readFrame(c.reader)
	if err != nil {
		// a stream cannot resync after a failed read, so every read error ends the connection
		return nil, fmt.Errorf("%w: %v", common.ErrConnectionLost, err)
	}
	return data, nil
}

func (c *framedConn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.conn, frame); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConnectionLost, err)
	}
	return nil
}

func (c *framedConn) Close() error {
	return c.conn.Close()
}

func (c *framedConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return c.conn.LocalAddr().String()
}

// --------------------------------------------------------------------------
// Dialing
// --------------------------------------------------------------------------

// Upgrade applies protocol-specific settings to an established connection
type Upgrade func(conn net.Conn) error

// Dial connects to endpoint over network and applies upgrade
func Dial(ctx context.Context, network, endpoint string, upgrade Upgrade) (transport.IConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	if upgrade != nil {
		if err := upgrade(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to upgrade connection to %s: %w", endpoint, err)
		}
	}
	return NewConn(conn), nil
}

// --------------------------------------------------------------------------
// Listening
// --------------------------------------------------------------------------

// listener adapts a net.Listener to transport.IListener
type listener struct {
	ln      net.Listener
	upgrade Upgrade
}

// NewListener wraps ln, applying upgrade to every accepted connection
func NewListener(ln net.Listener, upgrade Upgrade) transport.IListener {
	return &listener{ln: ln, upgrade: upgrade}
}

func (l *listener) Accept() (transport.IConn, error) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return nil, err
		}
		if l.upgrade != nil {
			if err := l.upgrade(conn); err != nil {
				Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
				_ = conn.Close()
				continue
			}
		}
		return NewConn(conn), nil
	}
}

func (l *listener) Close() error {
	return l.ln.Close()
}

func (l *listener) Addr() string {
	return l.ln.Addr().String()
}

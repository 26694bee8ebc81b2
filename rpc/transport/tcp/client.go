package tcp

import (
	"context"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/base"
	"net"
	"time"
)

const (
	keepAlivePeriod = 15 * time.Second
)

// clientTransport implements the IClientTransport interface for TCP sockets
type clientTransport struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientTransport)
// --------------------------------------------------------------------------

func (c *clientTransport) Name() string {
	return "tcp"
}

func (c *clientTransport) Dial(ctx context.Context, endpoint string) (transport.IConn, error) {
	return base.Dial(ctx, "tcp", endpoint, upgradeConnection)
}

// upgradeConnection disables Nagle's algorithm and enables keep-alive.
// Bus frames are small and latency matters more than throughput.
func upgradeConnection(conn net.Conn) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		return err
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		return err
	}
	return tcpConn.SetKeepAlivePeriod(keepAlivePeriod)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IClientTransport {
	return &clientTransport{}
}

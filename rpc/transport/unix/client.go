package unix

import (
	"context"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/base"
)

// clientTransport implements the IClientTransport interface for Unix sockets
type clientTransport struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientTransport)
// --------------------------------------------------------------------------

func (c *clientTransport) Name() string {
	return "unix"
}

func (c *clientTransport) Dial(ctx context.Context, endpoint string) (transport.IConn, error) {
	return base.Dial(ctx, "unix", endpoint, nil)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a new Unix client transport
func NewUnixClientTransport() transport.IClientTransport {
	return &clientTransport{}
}

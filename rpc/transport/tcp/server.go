package tcp

import (
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/base"
	"net"
)

// serverTransport implements the IServerTransport interface for TCP sockets
type serverTransport struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerTransport)
// --------------------------------------------------------------------------

func (s *serverTransport) Name() string {
	return "tcp"
}

func (s *serverTransport) Listen(endpoint string) (transport.IListener, error) {
	ln, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}
	return base.NewListener(ln, upgradeConnection), nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport
func NewTCPServerTransport() transport.IServerTransport {
	return &serverTransport{}
}

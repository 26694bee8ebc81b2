package unix

import (
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/base"
	"net"
	"os"
)

// serverTransport implements the IServerTransport interface for Unix sockets
type serverTransport struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerTransport)
// --------------------------------------------------------------------------

func (s *serverTransport) Name() string {
	return "unix"
}

func (s *serverTransport) Listen(socketPath string) (transport.IListener, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %v", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %v", err)
	}
	return base.NewListener(ln, nil), nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixServerTransport creates a new Unix server transport
func NewUnixServerTransport() transport.IServerTransport {
	return &serverTransport{}
}

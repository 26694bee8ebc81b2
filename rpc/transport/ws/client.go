package ws

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"golang.org/x/net/websocket"
	"net/url"
	"strings"
)

const (
	// Path is the http path the relay serves the bus on
	Path = "/bus"

	maxPayloadBytes = 16 << 20
)

// clientTransport implements the IClientTransport interface for websockets
type clientTransport struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientTransport)
// --------------------------------------------------------------------------

func (c *clientTransport) Name() string {
	return "ws"
}

func (c *clientTransport) Dial(ctx context.Context, endpoint string) (transport.IConn, error) {
	target := endpointURL(endpoint)
	origin := "http://localhost/"
	if u, err := url.Parse(target); err == nil {
		origin = "http://" + u.Host + "/"
	}

	cfg, err := websocket.NewConfig(target, origin)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket endpoint %s: %w", endpoint, err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	ws.PayloadType = websocket.BinaryFrame
	return newConn(ws), nil
}

// endpointURL accepts a full ws:// url or a bare host:port
func endpointURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint
	}
	return "ws://" + endpoint + Path
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewWSClientTransport creates a new websocket client transport
func NewWSClientTransport() transport.IClientTransport {
	return &clientTransport{}
}

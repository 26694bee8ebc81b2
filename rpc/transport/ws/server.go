package ws

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/net/websocket"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

var Logger = logger.GetLogger("transport")

// serverTransport implements the IServerTransport interface for websockets
type serverTransport struct{}

// listener serves websocket upgrades on Path and hands the connections to Accept
type listener struct {
	ln        net.Listener
	server    *http.Server
	conns     chan *conn
	done      chan struct{}
	closeOnce sync.Once
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerTransport)
// --------------------------------------------------------------------------

func (s *serverTransport) Name() string {
	return "ws"
}

func (s *serverTransport) Listen(endpoint string) (transport.IListener, error) {
	endpoint = strings.TrimPrefix(endpoint, "ws://")
	endpoint = strings.TrimSuffix(endpoint, Path)

	ln, err := net.Listen("tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket listener: %v", err)
	}

	l := &listener{
		ln:    ln,
		conns: make(chan *conn),
		done:  make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.Handle(Path, websocket.Server{Handler: l.handle})
	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Websocket server stopped: %v", err)
		}
	}()
	return l, nil
}

// handle runs for the lifetime of one websocket connection.
// The http server closes the socket as soon as this returns.
func (l *listener) handle(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame
	c := newConn(ws)
	select {
	case l.conns <- c:
	case <-l.done:
		return
	}
	<-c.closed
}

func (l *listener) Accept() (transport.IConn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = l.server.Shutdown(ctx)
	})
	return err
}

func (l *listener) Addr() string {
	return l.ln.Addr().String()
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewWSServerTransport creates a new websocket server transport
func NewWSServerTransport() transport.IServerTransport {
	return &serverTransport{}
}

package ws

import (
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"golang.org/x/net/websocket"
	"sync"
)

// conn implements transport.IConn over a websocket. Every frame is one binary message.
type conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn) *conn {
	ws.MaxPayloadBytes = maxPayloadBytes
	return &conn{ws: ws, closed: make(chan struct{})}
}

func (c *conn) ReadFrame() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(c.ws, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConnectionLost, err)
	}
	return data, nil
}

func (c *conn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := websocket.Message.Send(c.ws, frame); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConnectionLost, err)
	}
	return nil
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.ws.Close()
		close(c.closed)
	})
	return err
}

func (c *conn) RemoteAddr() string {
	if req := c.ws.Request(); req != nil {
		return req.RemoteAddr
	}
	return c.ws.RemoteAddr().String()
}

package bus

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
	"sync/atomic"
)

var Logger = logger.GetLogger("bus")

// Handler handles one inbound envelope. Errors and panics are reported to the
// error hook of the bus as *common.HandlerFailure.
type Handler func(ctx context.Context, env common.Envelope) error

// Option configures a Bus
type Option func(*Bus)

// WithErrorHook receives handler failures
func WithErrorHook(hook common.ErrorHook) Option {
	return func(b *Bus) {
		if hook != nil {
			b.onError = hook
		}
	}
}

// WithFatalHook is called once when the connection is lost and the reconnect
// failed. The node maps it to a forced restart.
func WithFatalHook(hook func(error)) Option {
	return func(b *Bus) {
		if hook != nil {
			b.onFatal = hook
		}
	}
}

// WithRole overrides the role announced to the relay
func WithRole(role string) Option {
	return func(b *Bus) { b.config.Role = role }
}

// Bus owns the connection of one process to the relay
type Bus struct {
	config     common.ClientConfig
	transport  transport.IClientTransport
	serializer serializer.IEnvelopeSerializer
	onError    common.ErrorHook
	onFatal    func(error)

	connMu sync.RWMutex
	conn   transport.IConn
	closed atomic.Bool

	handlers *xsync.MapOf[common.Command, Handler]
	pending  *xsync.MapOf[string, *pendingRequest]
}

// New creates a bus. It does not connect yet, call Connect and then Run.
//
// Usage:
//
//	b := bus.New(cfg, tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
//	b.Handle(common.CmdReload, onReload)
//	if err := b.Connect(ctx); err != nil {
//		return err
//	}
//	go b.Run(ctx)
func New(
	config common.ClientConfig,
	transport transport.IClientTransport,
	serializer serializer.IEnvelopeSerializer,
	opts ...Option,
) *Bus {
	b := &Bus{
		config:     config.WithDefaults(),
		transport:  transport,
		serializer: serializer,
		onError:    common.NopErrorHook,
		onFatal:    func(error) {},
		handlers:   xsync.NewMapOf[common.Command, Handler](),
		pending:    xsync.NewMapOf[string, *pendingRequest](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NodeID returns the id this bus identifies with
func (b *Bus) NodeID() common.NodeID {
	return b.config.NodeID
}

// Config returns the client configuration
func (b *Bus) Config() common.ClientConfig {
	return b.config
}

// Handle registers the handler of cmd, replacing an earlier one.
// Responses are handled by the bus itself and cannot be registered.
func (b *Bus) Handle(cmd common.Command, h Handler) {
	if cmd == common.CmdResponse {
		panic("bus: responses are handled by the bus")
	}
	b.handlers.Store(cmd, h)
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Connect dials the relay and identifies this node
func (b *Bus) Connect(ctx context.Context) error {
	if b.closed.Load() {
		return common.ErrNotConnected
	}
	conn, err := b.dial(ctx)
	if err != nil {
		return err
	}
	b.swapConn(conn)
	Logger.Infof("Connected to relay at %s as %s %s (%s/%s)",
		b.config.Endpoint, b.config.Role, b.config.NodeID, b.transport.Name(), b.serializer.Name())
	return nil
}

// dial opens a new connection and sends the identify frame
func (b *Bus) dial(ctx context.Context) (transport.IConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, b.config.DialTimeout)
	defer cancel()

	conn, err := b.transport.Dial(dialCtx, b.config.Endpoint)
	if err != nil {
		return nil, err
	}
	frame, err := b.serializer.Serialize(common.NewIdentifyEnvelope(b.config.NodeID, b.config.Role))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := conn.WriteFrame(frame); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to identify: %w", err)
	}
	return conn, nil
}

// swapConn installs conn and closes the previous connection, if any
func (b *Bus) swapConn(conn transport.IConn) {
	b.connMu.Lock()
	old := b.conn
	b.conn = conn
	b.connMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (b *Bus) current() transport.IConn {
	b.connMu.RLock()
	defer b.connMu.RUnlock()
	return b.conn
}

// Close closes the connection. Run returns and later sends fail with ErrNotConnected.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.connMu.Lock()
	conn := b.conn
	b.conn = nil
	b.connMu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// --------------------------------------------------------------------------
// Sending
// --------------------------------------------------------------------------

// Send encodes env and writes it to the relay. If ctx ends before the frame is
// written, Send returns ctx.Err() and the connection is dropped.
func (b *Bus) Send(ctx context.Context, env common.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := b.current()
	if conn == nil || b.closed.Load() {
		return common.ErrNotConnected
	}
	frame, err := b.serializer.Serialize(env)
	if err != nil {
		return err
	}
	if err := b.write(ctx, conn, frame); err != nil {
		return err
	}
	metrics.BusFramesSent.Inc()
	Logger.Debugf("Sent %s", env)
	return nil
}

// write writes frame unless ctx ends first. A write that outlives ctx may have
// sent part of the frame, so the connection is closed and Run reconnects.
func (b *Bus) write(ctx context.Context, conn transport.IConn, frame []byte) error {
	if ctx.Done() == nil {
		return conn.WriteFrame(frame)
	}
	written := make(chan error, 1)
	go func() { written <- conn.WriteFrame(frame) }()
	select {
	case err := <-written:
		return err
	case <-ctx.Done():
		select {
		case err := <-written:
			return err
		default:
		}
		Logger.Warningf("Write to relay stalled, dropping connection: %v", ctx.Err())
		_ = conn.Close()
		return ctx.Err()
	}
}

// Broadcast sends cmd to every other node of the cluster
func (b *Bus) Broadcast(ctx context.Context, cmd common.Command, args common.Args) error {
	return b.Send(ctx, common.NewSendEnvelope(common.Broadcast, cmd, args))
}

// SendTo sends cmd to a single node
func (b *Bus) SendTo(ctx context.Context, node common.NodeID, cmd common.Command, args common.Args) error {
	return b.Send(ctx, common.NewSendEnvelope(node.String(), cmd, args))
}

// Respond answers the request with the given nonce
func (b *Bus) Respond(ctx context.Context, nonce string, results common.Args) error {
	return b.Send(ctx, common.NewResponseEnvelope(nonce, results))
}

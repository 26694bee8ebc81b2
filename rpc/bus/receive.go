package bus

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/rpc/common"
)

// Run reads frames from the relay until ctx is done or the bus is closed.
//
// Frames are decoded and dispatched one at a time; every handler runs in its own
// goroutine. Malformed frames and unknown commands are logged and dropped. When the
// connection is lost, Run reconnects exactly once. If that fails the fatal hook is
// called and Run returns an error wrapping common.ErrConnectionLost.
func (b *Bus) Run(ctx context.Context) error {
	// unblock the pending read when ctx ends
	stop := context.AfterFunc(ctx, func() {
		if conn := b.current(); conn != nil {
			_ = conn.Close()
		}
	})
	defer stop()

	for {
		conn := b.current()
		if conn == nil {
			if b.closed.Load() {
				return nil
			}
			return common.ErrNotConnected
		}

		frame, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if b.closed.Load() {
				return nil
			}
			if err := b.reconnect(ctx, err); err != nil {
				return err
			}
			continue
		}

		metrics.BusFramesReceived.Inc()
		b.dispatch(ctx, frame)
	}
}

// reconnect makes the single reconnect attempt after cause ended the connection
func (b *Bus) reconnect(ctx context.Context, cause error) error {
	Logger.Warningf("Lost connection to relay: %v", cause)

	conn, err := b.dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fatal := fmt.Errorf("%w: reconnect to %s failed: %v", common.ErrConnectionLost, b.config.Endpoint, err)
		Logger.Errorf("Giving up on the cluster: %v", fatal)
		b.onFatal(fatal)
		return fatal
	}
	if b.closed.Load() {
		_ = conn.Close()
		return nil
	}

	b.swapConn(conn)
	metrics.BusReconnects.Inc()
	Logger.Warningf("Reconnected to relay at %s", b.config.Endpoint)
	return nil
}

// dispatch decodes one frame and hands it to its handler
func (b *Bus) dispatch(ctx context.Context, frame []byte) {
	var env common.Envelope
	if err := b.serializer.Deserialize(frame, &env); err != nil {
		metrics.BusMalformed.Inc()
		Logger.Warningf("Dropped malformed frame (%d bytes): %v", len(frame), err)
		return
	}
	Logger.Debugf("Received %s", env)

	cmd, err := env.Kind()
	switch {
	case errors.Is(err, common.ErrUnknownCommand):
		metrics.BusUnknownCommand.Inc()
		Logger.Warningf("Dropped envelope with unknown command %q", env.Command)
		return
	case err != nil:
		metrics.BusMalformed.Inc()
		Logger.Warningf("Dropped malformed envelope: %v", err)
		return
	}

	if cmd == common.CmdResponse {
		b.handleResponse(env)
		return
	}

	h, ok := b.handlers.Load(cmd)
	if !ok {
		Logger.Debugf("No handler registered for %s", cmd)
		return
	}
	go b.invoke(ctx, cmd, h, env)
}

// invoke runs a handler, reporting errors and panics to the error hook
func (b *Bus) invoke(ctx context.Context, cmd common.Command, h Handler, env common.Envelope) {
	var err error
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			failure := &common.HandlerFailure{Command: cmd, Err: err}
			metrics.BusHandlerFailures.Inc()
			Logger.Errorf("%v", failure)
			b.onError(string(cmd), failure)
		}
	}()
	err = h(ctx, env)
}

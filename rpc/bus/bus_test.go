package bus

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/base"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// pipeTransport hands the relay side of every dialed connection to the test
type pipeTransport struct {
	relaySide chan transport.IConn
	failDial  atomic.Bool
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{relaySide: make(chan transport.IConn, 4)}
}

func (p *pipeTransport) Name() string { return "pipe" }

func (p *pipeTransport) Dial(context.Context, string) (transport.IConn, error) {
	if p.failDial.Load() {
		return nil, errors.New("relay unreachable")
	}
	a, b := net.Pipe()
	p.relaySide <- base.NewConn(b)
	return base.NewConn(a), nil
}

// fakeRelay plays the relay side of one connection
type fakeRelay struct {
	t    *testing.T
	conn transport.IConn
	s    serializer.IEnvelopeSerializer
}

func (r *fakeRelay) read() common.Envelope {
	frame, err := r.conn.ReadFrame()
	require.NoError(r.t, err)
	var env common.Envelope
	require.NoError(r.t, r.s.Deserialize(frame, &env))
	return env
}

func (r *fakeRelay) write(env common.Envelope) {
	frame, err := r.s.Serialize(env)
	require.NoError(r.t, err)
	require.NoError(r.t, r.conn.WriteFrame(frame))
}

func (r *fakeRelay) writeRaw(frame string) {
	require.NoError(r.t, r.conn.WriteFrame([]byte(frame)))
}

func accept(t *testing.T, p *pipeTransport) *fakeRelay {
	select {
	case conn := <-p.relaySide:
		r := &fakeRelay{t: t, conn: conn, s: serializer.NewJSONSerializer()}
		t.Cleanup(func() { _ = conn.Close() })
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("bus did not dial")
		return nil
	}
}

// connect creates a bus connected over a pipe and consumes its identify frame
func connect(t *testing.T, cfg common.ClientConfig, opts ...Option) (*Bus, *pipeTransport, *fakeRelay) {
	p := newPipeTransport()
	b := New(cfg, p, serializer.NewJSONSerializer(), opts...)
	t.Cleanup(func() { _ = b.Close() })

	errs := make(chan error, 1)
	go func() { errs <- b.Connect(context.Background()) }()
	relay := accept(t, p)
	identify := relay.read()
	require.Equal(t, "IDENTIFY", identify.Command)
	require.NoError(t, <-errs)
	return b, p, relay
}

func run(t *testing.T, b *Bus) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestConnectIdentifies(t *testing.T) {
	p := newPipeTransport()
	b := New(common.ClientConfig{Endpoint: "relay", NodeID: 3}, p, serializer.NewJSONSerializer())
	defer b.Close()

	errs := make(chan error, 1)
	go func() { errs <- b.Connect(context.Background()) }()
	relay := accept(t, p)
	env := relay.read()
	require.NoError(t, <-errs)

	require.Equal(t, "IDENTIFY", env.Command)
	require.Equal(t, []string{"node_id", "role"}, env.Args.Names())
	id, _ := env.Args.Get("node_id")
	require.Equal(t, "3", fmt.Sprint(id))
	role, _ := env.Args.Get("role")
	require.Equal(t, common.RoleNode, role)
}

func TestDispatchToHandler(t *testing.T) {
	b, _, relay := connect(t, common.ClientConfig{NodeID: 1})

	got := make(chan common.Envelope, 1)
	b.Handle(common.CmdReload, func(_ context.Context, env common.Envelope) error {
		got <- env
		return nil
	})
	run(t, b)

	relay.writeRaw(`{"c":"RELOAD","a":{"table":"guilds"},"s":"2"}`)
	select {
	case env := <-got:
		require.Equal(t, []any{"guilds"}, env.Positional())
		require.Equal(t, "2", env.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestBadFramesDoNotStopTheLoop(t *testing.T) {
	b, _, relay := connect(t, common.ClientConfig{NodeID: 1})

	got := make(chan struct{}, 1)
	b.Handle(common.CmdRestart, func(context.Context, common.Envelope) error {
		got <- struct{}{}
		return nil
	})
	run(t, b)

	malformed := metrics.BusMalformed.Get()
	unknown := metrics.BusUnknownCommand.Get()

	relay.writeRaw(`not json`)
	relay.writeRaw(`{"a":{}}`)
	relay.writeRaw(`{"c":"frobnicate","a":{}}`)
	relay.writeRaw(`{"c":"close_all","a":{}}`)
	relay.writeRaw(`{"c":"restart","a":{}}`)

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after bad frames")
	}
	require.Equal(t, malformed+2, metrics.BusMalformed.Get())
	require.Equal(t, unknown+2, metrics.BusUnknownCommand.Get())
}

func TestHandlerFailuresReachErrorHook(t *testing.T) {
	var mu sync.Mutex
	var failures []*common.HandlerFailure
	hook := func(event string, err error) {
		var f *common.HandlerFailure
		if errors.As(err, &f) {
			mu.Lock()
			failures = append(failures, f)
			mu.Unlock()
		}
	}
	b, _, relay := connect(t, common.ClientConfig{NodeID: 1}, WithErrorHook(hook))

	b.Handle(common.CmdReload, func(context.Context, common.Envelope) error {
		return errors.New("reload failed")
	})
	b.Handle(common.CmdChangeLogLevel, func(context.Context, common.Envelope) error {
		panic("bad level")
	})
	run(t, b)

	relay.writeRaw(`{"c":"reload","a":{}}`)
	relay.writeRaw(`{"c":"change_log_level","a":{"level":"x"}}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failures) == 2
	}, 2*time.Second, 10*time.Millisecond)

	commands := map[common.Command]bool{}
	for _, f := range failures {
		commands[f.Command] = true
	}
	require.True(t, commands[common.CmdReload])
	require.True(t, commands[common.CmdChangeLogLevel])
}

// answer reads the next request and lets each node in nodes respond
func answer(t *testing.T, relay *fakeRelay, nodes ...string) common.Envelope {
	req := relay.read()
	require.Equal(t, "REQUEST", req.Command)
	nonce, _ := req.Args.Get("nonce")
	for _, node := range nodes {
		resp := common.NewResponseEnvelope(nonce.(string), common.NewArgs("guild_count", len(node)*10))
		resp.Source = node
		relay.write(resp)
	}
	return req
}

func TestRequestCollectsAllNodes(t *testing.T) {
	b, _, relay := connect(t, common.ClientConfig{NodeID: 1, ClusterSize: 3})
	run(t, b)

	result := make(chan Responses, 1)
	go func() {
		res, err := b.Request(context.Background(), Request{Info: []string{"guild_count"}, Timeout: 5 * time.Second})
		assert.NoError(t, err)
		result <- res
	}()

	req := answer(t, relay, "1", "22", "22", "333")
	require.Equal(t, common.Broadcast, req.Target)

	select {
	case res := <-result:
		require.True(t, res.Complete)
		require.Len(t, res.Nodes, 3)
		count, _ := res.Nodes[333].Get("guild_count")
		require.Equal(t, "30", fmt.Sprint(count))
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete before its timeout")
	}
	require.Equal(t, 0, b.Pending())
}

func TestRequestTimeoutReturnsPartialResult(t *testing.T) {
	b, _, relay := connect(t, common.ClientConfig{NodeID: 1, ClusterSize: 3})
	run(t, b)

	result := make(chan Responses, 1)
	go func() {
		res, err := b.Request(context.Background(), Request{Info: []string{"guild_count"}, Timeout: 200 * time.Millisecond})
		assert.NoError(t, err)
		result <- res
	}()

	req := answer(t, relay, "1", "2")
	res := <-result
	require.False(t, res.Complete)
	require.Len(t, res.Nodes, 2)
	_, ok := res.Nodes[3]
	require.False(t, ok, "unresponsive node must be absent")

	// a late answer is discarded
	nonce, _ := req.Args.Get("nonce")
	late := common.NewResponseEnvelope(nonce.(string), common.NewArgs("guild_count", 1))
	late.Source = "3"
	relay.write(late)
	require.Equal(t, 0, b.Pending())
}

func TestTargetedRequestExpectsOneAnswer(t *testing.T) {
	b, _, relay := connect(t, common.ClientConfig{NodeID: 1, ClusterSize: 5})
	run(t, b)

	result := make(chan Responses, 1)
	go func() {
		res, _ := b.Request(context.Background(), Request{Info: []string{"guild_count"}, Target: "4", Timeout: 5 * time.Second})
		result <- res
	}()
	req := answer(t, relay, "4")
	require.Equal(t, "4", req.Target)

	select {
	case res := <-result:
		require.True(t, res.Complete)
	case <-time.After(2 * time.Second):
		t.Fatal("targeted request waited for more than one node")
	}
}

func TestReconnectOnceThenFatal(t *testing.T) {
	fatal := make(chan error, 1)
	b, p, relay := connect(t, common.ClientConfig{NodeID: 7}, WithFatalHook(func(err error) { fatal <- err }))
	_, done := run(t, b)

	// first loss: one reconnect succeeds
	require.NoError(t, relay.conn.Close())
	relay = accept(t, p)
	require.Equal(t, "IDENTIFY", relay.read().Command)

	got := make(chan struct{}, 1)
	b.Handle(common.CmdRestart, func(context.Context, common.Envelope) error {
		got <- struct{}{}
		return nil
	})
	relay.writeRaw(`{"c":"restart","a":{}}`)
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not resume after reconnect")
	}

	// second loss with the relay gone: fatal
	p.failDial.Store(true)
	require.NoError(t, relay.conn.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, common.ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	require.ErrorIs(t, <-fatal, common.ErrConnectionLost)
}

func TestRunStopsWithContext(t *testing.T) {
	b, _, _ := connect(t, common.ClientConfig{NodeID: 1})
	cancel, done := run(t, b)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSendAfterClose(t *testing.T) {
	b, _, _ := connect(t, common.ClientConfig{NodeID: 1})
	require.NoError(t, b.Close())
	err := b.Broadcast(context.Background(), common.CmdInvalidate, common.NewArgs("identifier", 1))
	require.ErrorIs(t, err, common.ErrNotConnected)
}

func TestBroadcastWrapsInSend(t *testing.T) {
	b, _, relay := connect(t, common.ClientConfig{NodeID: 1})

	go func() {
		_ = b.Broadcast(context.Background(), common.CmdInvalidate, common.NewArgs("identifier", 5, "table", "guilds"))
	}()
	env := relay.read()
	require.Equal(t, "SEND", env.Command)
	require.Equal(t, common.Broadcast, env.Target)
	inner, err := env.Unwrap()
	require.NoError(t, err)
	require.Equal(t, "invalidate_cache", inner.Command)
	require.Equal(t, []string{"identifier", "table"}, inner.Args.Names())
}

func TestSendGivesUpOnStalledRelay(t *testing.T) {
	fatal := make(chan error, 1)
	b, p, relay := connect(t, common.ClientConfig{NodeID: 1}, WithFatalHook(func(err error) { fatal <- err }))
	_, done := run(t, b)

	// the relay side never reads, so the write blocks
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := b.Broadcast(ctx, common.CmdInvalidate, common.NewArgs("identifier", 1, "table", "guilds"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)

	// the half written connection is dropped and replaced
	_, err = relay.conn.ReadFrame()
	require.ErrorIs(t, err, common.ErrConnectionLost)
	relay = accept(t, p)
	require.Equal(t, "IDENTIFY", relay.read().Command)

	go func() {
		_ = b.Broadcast(context.Background(), common.CmdInvalidate, common.NewArgs("identifier", 2, "table", "guilds"))
	}()
	env := relay.read()
	inner, err := env.Unwrap()
	require.NoError(t, err)
	require.Equal(t, "invalidate_cache", inner.Command)

	select {
	case err := <-done:
		t.Fatalf("Run stopped: %v", err)
	case err := <-fatal:
		t.Fatalf("bus gave up: %v", err)
	default:
	}
}

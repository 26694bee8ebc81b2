package node

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/cache"
	"github.com/ValentinKolb/dSync/lib/facts"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/ValentinKolb/dSync/rpc/bus"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/tcp"
	"github.com/lni/dragonboat/v4/logger"
	"time"
)

var Logger = logger.GetLogger("node")

// ExitCode tells the supervisor of the process what to do after Run returned
type ExitCode int

const (
	// ExitNormal is returned when the context of Run ended
	ExitNormal ExitCode = 0
	// ExitRestartCluster asks the supervisor to restart this node
	ExitRestartCluster ExitCode = 1
	// ExitKillEverything asks the supervisor to stop every node
	ExitKillEverything ExitCode = 2
)

func (c ExitCode) String() string {
	switch c {
	case ExitNormal:
		return "normal"
	case ExitRestartCluster:
		return "restart cluster"
	case ExitKillEverything:
		return "kill everything"
	default:
		return fmt.Sprintf("exit(%d)", int(c))
	}
}

// closeTimeout bounds the final flush of all tables
const closeTimeout = 30 * time.Second

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Option configures a Node
type Option func(*Node)

// WithTransport sets the transport used to reach the relay (default tcp)
func WithTransport(t transport.IClientTransport) Option {
	return func(n *Node) { n.transport = t }
}

// WithSerializer sets the envelope serializer (default json)
func WithSerializer(s serializer.IEnvelopeSerializer) Option {
	return func(n *Node) { n.serializer = s }
}

// WithErrorHook receives handler failures, failed writes and failed facts
func WithErrorHook(hook common.ErrorHook) Option {
	return func(n *Node) {
		if hook != nil {
			n.onError = hook
		}
	}
}

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is one member of the cluster. It owns the cached tables and, when clustering
// is enabled, the connection to the relay and the facts answered over it.
type Node struct {
	config     common.NodeConfig
	transport  transport.IClientTransport
	serializer serializer.IEnvelopeSerializer
	onError    common.ErrorHook

	tables  *cache.Registry
	facts   *facts.Registry
	bus     *bus.Bus
	started time.Time
	exit    chan ExitCode
}

// New creates a node serving tables from st.
//
// Usage:
//
//	n, err := node.New(cfg, st, tables)
//	if err != nil {
//		return err
//	}
//	n.Facts().Register("guild_count", countGuilds)
//	code, err := n.Run(ctx)
func New(cfg common.NodeConfig, st store.IStore, tables []cache.TableConfig, opts ...Option) (*Node, error) {
	n := &Node{
		config:  cfg,
		tables:  cache.NewRegistry(),
		started: time.Now(),
		exit:    make(chan ExitCode, 1),
		onError: func(event string, err error) {
			Logger.Warningf("%s failed: %v", event, err)
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.transport == nil {
		n.transport = tcp.NewTCPClientTransport()
	}
	if n.serializer == nil {
		n.serializer = serializer.NewJSONSerializer()
	}

	n.facts = facts.NewRegistry(facts.WithErrorHook(n.onError), facts.WithTimeout(cfg.RequestTimeout))

	var id common.NodeID
	if cfg.Clustered() {
		id = *cfg.ClusterID
		n.bus = bus.New(cfg.BusConfig(), n.transport, n.serializer,
			bus.WithErrorHook(n.onError),
			bus.WithFatalHook(func(err error) {
				Logger.Errorf("Lost the relay for good: %v", err)
				n.Exit(ExitRestartCluster)
			}),
		)
	}

	for _, tc := range tables {
		tableOpts := []cache.Option{
			cache.WithFlushInterval(cfg.FlushInterval),
			cache.WithErrorHook(n.onError),
		}
		if n.bus != nil {
			tableOpts = append(tableOpts, cache.WithInvalidator(n.bus))
		}
		h, err := cache.NewTableHandler(tc, st, tableOpts...)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", tc.Name, err)
		}
		if err := n.tables.Add(h); err != nil {
			return nil, err
		}
	}

	facts.RegisterBuiltins(n.facts, id, n.started, n.tables)

	Logger.Infof("Created node with tables %v", n.tables.Names())
	Logger.Infof(cfg.String())
	return n, nil
}

// Tables returns the cached tables of the node
func (n *Node) Tables() *cache.Registry {
	return n.tables
}

// Facts returns the registry answering requests of other nodes
func (n *Node) Facts() *facts.Registry {
	return n.facts
}

// Bus returns the connection to the relay, nil when clustering is disabled
func (n *Node) Bus() *bus.Bus {
	return n.bus
}

// Config returns the node configuration
func (n *Node) Config() common.NodeConfig {
	return n.config
}

// Exit ends Run with code. Only the first exit counts.
func (n *Node) Exit(code ExitCode) {
	select {
	case n.exit <- code:
	default:
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Run serves the node until ctx is done or a lifecycle command arrives. Before
// returning, pending writes of every table are flushed and the bus is closed.
func (n *Node) Run(ctx context.Context) (ExitCode, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if n.config.MetricsEndpoint != "" {
		go func() {
			if err := metrics.Serve(runCtx, n.config.MetricsEndpoint); err != nil {
				Logger.Errorf("%v", err)
			}
		}()
	}

	busDone := make(chan error, 1)
	if n.bus != nil {
		n.registerHandlers()
		if err := n.bus.Connect(runCtx); err != nil {
			n.shutdown()
			return ExitRestartCluster, fmt.Errorf("failed to connect to relay: %w", err)
		}
		go func() { busDone <- n.bus.Run(runCtx) }()
	} else {
		Logger.Infof("Clustering is disabled, running standalone")
	}

	code := ExitNormal
	var busErr error
	busStopped := false
	select {
	case <-ctx.Done():
	case code = <-n.exit:
	case busErr = <-busDone:
		busStopped = true
		code = ExitRestartCluster
	}
	Logger.Infof("Stopping node (%s)", code)

	n.shutdown()
	cancel()
	if n.bus != nil && !busStopped {
		busErr = <-busDone
	}
	if busErr != nil && !errors.Is(busErr, context.Canceled) {
		return ExitRestartCluster, busErr
	}
	return code, nil
}

// shutdown flushes every table while the bus can still announce the writes, then
// closes the bus
func (n *Node) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := n.tables.Close(ctx); err != nil {
		Logger.Errorf("Failed to flush tables: %v", err)
	}
	if n.bus != nil {
		_ = n.bus.Close()
	}
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/lib/util"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
	"time"
)

var Logger = logger.GetLogger("relay")

// peer is one identified connection
type peer struct {
	id   common.NodeID
	role string
	conn transport.IConn
	out  *util.Queue[[]byte]
}

func (p *peer) String() string {
	return fmt.Sprintf("%s %s (%s)", p.role, p.id, p.conn.RemoteAddr())
}

// close stops the writer and the connection
func (p *peer) close() {
	p.out.Close()
	_ = p.conn.Close()
}

// route remembers who sent the request with a nonce
type route struct {
	requester common.NodeID
	expires   time.Time
}

// Server is the relay. It accepts one connection per process of the cluster and
// forwards envelopes between them.
type Server struct {
	config     common.RelayConfig
	transport  transport.IServerTransport
	serializer serializer.IEnvelopeSerializer

	peers  *xsync.MapOf[common.NodeID, *peer]
	routes *xsync.MapOf[string, route]

	expiryMu sync.Mutex
	expiry   *util.ExpiryHeap[string] // deadlines of the routes

	mu       sync.Mutex
	listener transport.IListener
	conns    sync.WaitGroup
}

// NewServer creates a new relay
//
// Usage:
//
//	s := relay.NewServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewServer(
	config common.RelayConfig,
	transport transport.IServerTransport,
	serializer serializer.IEnvelopeSerializer,
) *Server {
	config = config.WithDefaults()
	Logger.Infof("Created relay")
	Logger.Infof(config.String())
	return &Server{
		config:     config,
		transport:  transport,
		serializer: serializer,
		peers:      xsync.NewMapOf[common.NodeID, *peer](),
		routes:     xsync.NewMapOf[string, route](),
		expiry:     util.NewExpiryHeap[string](),
	}
}

// Listen binds the endpoint. Serve calls it if it was not called before.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	ln, err := s.transport.Listen(s.config.Endpoint)
	if err != nil {
		return err
	}
	s.listener = ln
	Logger.Infof("Relay listening on %s (%s/%s)", ln.Addr(), s.transport.Name(), s.serializer.Name())
	return nil
}

// Addr returns the bound address, empty before Listen
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr()
}

// Peers returns the number of identified connections
func (s *Server) Peers() int {
	return s.peers.Size()
}

// Routes returns the number of requests whose responses are still routed
func (s *Server) Routes() int {
	return s.routes.Size()
}

// Serve accepts connections until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	go s.expireRoutes(ctx)
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		metrics.RelayConnections.Inc()
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			// also unblocks connections that never identified
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()
			s.handleConn(conn)
		}()
	}

	s.peers.Range(func(_ common.NodeID, p *peer) bool {
		p.close()
		return true
	})
	s.conns.Wait()
	Logger.Infof("Relay stopped")
	return nil
}

// --------------------------------------------------------------------------
// Connections
// --------------------------------------------------------------------------

// handleConn identifies the connection and then forwards its envelopes
func (s *Server) handleConn(conn transport.IConn) {
	p, err := s.identify(conn)
	if err != nil {
		Logger.Warningf("Rejected connection from %s: %v", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}

	if old, loaded := s.peers.LoadAndStore(p.id, p); loaded {
		Logger.Warningf("Node %s connected again, closing previous connection from %s", p.id, old.conn.RemoteAddr())
		old.close()
	}
	Logger.Infof("Connected %s", p)

	go s.write(p)
	defer func() {
		p.close()
		s.peers.Compute(p.id, func(cur *peer, loaded bool) (*peer, bool) {
			// a newer connection of the same node stays registered
			return cur, !loaded || cur == p
		})
		Logger.Infof("Disconnected %s", p)
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, common.ErrConnectionLost) {
				Logger.Warningf("Read from %s failed: %v", p, err)
			}
			return
		}
		var env common.Envelope
		if err := s.serializer.Deserialize(frame, &env); err != nil {
			Logger.Warningf("Dropped malformed frame from %s: %v", p, err)
			continue
		}
		s.route(p, env)
	}
}

// identify reads the first frame, which must be an IDENTIFY envelope
func (s *Server) identify(conn transport.IConn) (*peer, error) {
	frame, err := conn.ReadFrame()
	if err != nil {
		return nil, err
	}
	var env common.Envelope
	if err := s.serializer.Deserialize(frame, &env); err != nil {
		return nil, err
	}
	if cmd, err := env.Kind(); err != nil || cmd != common.CmdIdentify {
		return nil, fmt.Errorf("expected IDENTIFY, got %q", env.Command)
	}

	raw, _ := env.Args.Get("node_id")
	id, err := common.ParseNodeID(fmt.Sprint(raw))
	if err != nil {
		return nil, err
	}
	role := common.RoleNode
	if r, ok := env.Args.Get("role"); ok {
		if r, ok := r.(string); ok && r != "" {
			role = r
		}
	}
	if role != common.RoleNode && role != common.RoleClient {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	return &peer{
		id:   id,
		role: role,
		conn: conn,
		out:  util.NewQueue[[]byte](),
	}, nil
}

// write drains the outbound queue of p into its connection
func (s *Server) write(p *peer) {
	failed := false
	for frame := range p.out.Recv() {
		if failed {
			continue
		}
		if err := p.conn.WriteFrame(frame); err != nil {
			Logger.Warningf("Write to %s failed: %v", p, err)
			failed = true
			_ = p.conn.Close()
		}
	}
}

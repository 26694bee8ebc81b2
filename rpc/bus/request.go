package bus

import (
	"context"
	"errors"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/google/uuid"
	"sync"
	"time"
)

// Request asks one node or every node for facts
type Request struct {
	// Info lists the fact names to evaluate
	Info []string
	// Target is a node id or common.Broadcast (the default)
	Target string
	// Args holds keyword arguments per fact name
	Args common.Args
	// Timeout overrides the request timeout of the bus
	Timeout time.Duration
}

// Responses are the answers collected for a request
type Responses struct {
	// Nodes maps the id of every node that answered to its results
	Nodes map[common.NodeID]common.Args
	// Complete is true if every expected node answered before the timeout.
	// It is always false for broadcasts when the cluster size is unknown.
	Complete bool
}

// pendingRequest collects the responses to one nonce
type pendingRequest struct {
	mu        sync.Mutex
	expected  int
	responses map[common.NodeID]common.Args
	done      chan struct{}
	complete  bool
}

func newPendingRequest(expected int) *pendingRequest {
	return &pendingRequest{
		expected:  expected,
		responses: make(map[common.NodeID]common.Args),
		done:      make(chan struct{}),
	}
}

// add records the answer of node and reports whether it was new
func (p *pendingRequest) add(node common.NodeID, results common.Args) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dup := p.responses[node]; dup {
		return false
	}
	p.responses[node] = results
	if !p.complete && p.expected > 0 && len(p.responses) >= p.expected {
		p.complete = true
		close(p.done)
	}
	return true
}

func (p *pendingRequest) result() Responses {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes := make(map[common.NodeID]common.Args, len(p.responses))
	for k, v := range p.responses {
		nodes[k] = v
	}
	return Responses{Nodes: nodes, Complete: p.complete}
}

// Request sends a request and waits for the answers.
//
// A node target expects one answer, a broadcast expects one per node of the
// cluster (ClusterSize). Request returns as soon as all expected answers arrived or
// after the timeout with whatever was collected; a timeout is not an error. Answers
// arriving afterwards are dropped.
func (b *Bus) Request(ctx context.Context, req Request) (Responses, error) {
	if len(req.Info) == 0 {
		return Responses{}, errors.New("request without info")
	}
	target := req.Target
	if target == "" {
		target = common.Broadcast
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.config.RequestTimeout
	}
	expected := 1
	if target == common.Broadcast {
		expected = b.config.ClusterSize
	}

	nonce := uuid.NewString()
	p := newPendingRequest(expected)
	b.pending.Store(nonce, p)
	defer b.pending.Delete(nonce)
	defer metrics.RequestRoundTrip(time.Now())

	if err := b.Send(ctx, common.NewRequestEnvelope(target, nonce, req.Info, req.Args)); err != nil {
		return Responses{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		if expected > 0 {
			metrics.BusRequestsTimedOut.Inc()
			Logger.Debugf("Request %s for %v timed out after %s", nonce, req.Info, timeout)
		}
	case <-ctx.Done():
		return p.result(), ctx.Err()
	}
	return p.result(), nil
}

// handleResponse records a response under the node that sent it
func (b *Bus) handleResponse(env common.Envelope) {
	p, ok := b.pending.Load(env.Target)
	if !ok {
		Logger.Debugf("Discarded late or unknown response %q from node %s", env.Target, env.Source)
		return
	}
	node, err := env.SourceNode()
	if err != nil {
		Logger.Warningf("Discarded response without valid source: %v", err)
		return
	}
	if !p.add(node, env.Args) {
		Logger.Debugf("Discarded duplicate response from node %s", node)
	}
}

// Pending returns the number of requests waiting for answers
func (b *Bus) Pending() int {
	return b.pending.Size()
}

package facts

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
	"sort"
	"sync"
	"time"
)

var Logger = logger.GetLogger("facts")

// ErrUnknownFact is reported for requested names without a registered fact
var ErrUnknownFact = errors.New("unknown fact")

// Fact computes one value from the local state of this node.
// kwargs holds the keyword arguments the requester sent for this fact (may be empty).
type Fact func(ctx context.Context, kwargs common.Args) (any, error)

// Responder sends the answer to a request. The cluster bus implements it.
type Responder interface {
	Respond(ctx context.Context, nonce string, results common.Args) error
}

// Option configures a Registry
type Option func(*Registry)

// WithErrorHook receives unknown and failing facts
func WithErrorHook(hook common.ErrorHook) Option {
	return func(r *Registry) {
		if hook != nil {
			r.onError = hook
		}
	}
}

// WithTimeout bounds the evaluation of one request
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Registry maps query names to facts
type Registry struct {
	mu      sync.RWMutex
	facts   map[string]Fact
	onError common.ErrorHook
	timeout time.Duration
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		facts:   make(map[string]Fact),
		onError: common.NopErrorHook,
		timeout: common.DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the fact answering name
func (r *Registry) Register(name string, fact Fact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts[name] = fact
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.facts))
	for name := range r.facts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (Fact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.facts[name]
	return f, ok
}

// Evaluate computes every fact in info concurrently and returns the results in the
// order of info. kwargs maps fact names to their keyword arguments. Unknown or
// failing facts yield nil and are reported to the error hook.
func (r *Registry) Evaluate(ctx context.Context, info []string, kwargs common.Args) common.Args {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make(common.Args, len(info))
	var g errgroup.Group
	for i, name := range info {
		results[i].Name = name
		g.Go(func() error {
			value, err := r.evaluate(ctx, name, factArgs(kwargs, name))
			if err != nil {
				r.onError("request", fmt.Errorf("fact %s: %w", name, err))
				return nil
			}
			results[i].Value = value
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// evaluate runs one fact, turning a panic into an error
func (r *Registry) evaluate(ctx context.Context, name string, kwargs common.Args) (value any, err error) {
	fact, ok := r.lookup(name)
	if !ok {
		return nil, ErrUnknownFact
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fact(ctx, kwargs)
}

// factArgs extracts the keyword arguments of one fact
func factArgs(kwargs common.Args, name string) common.Args {
	v, ok := kwargs.Get(name)
	if !ok {
		return common.Args{}
	}
	if args, ok := v.(common.Args); ok {
		return args
	}
	return common.Args{}
}

// --------------------------------------------------------------------------
// Bus Handler
// --------------------------------------------------------------------------

// Handler returns the bus handler of the request command. It evaluates the requested
// facts and answers with one response to the nonce of the request, also when some
// facts failed.
func (r *Registry) Handler(resp Responder) func(ctx context.Context, env common.Envelope) error {
	return func(ctx context.Context, env common.Envelope) error {
		req, err := ParseRequest(env)
		if err != nil {
			return err
		}
		Logger.Debugf("Answering request %s for %v from node %s", req.Nonce, req.Info, env.Source)
		results := r.Evaluate(ctx, req.Info, req.Args)
		return resp.Respond(ctx, req.Nonce, results)
	}
}

// Request is the decoded payload of a request envelope
type Request struct {
	Info  []string
	Nonce string
	Args  common.Args
}

// ParseRequest decodes the arguments of a request envelope
func ParseRequest(env common.Envelope) (Request, error) {
	var req Request

	nonce, _ := env.Args.Get("nonce")
	req.Nonce, _ = nonce.(string)
	if req.Nonce == "" {
		return req, fmt.Errorf("%w: request without nonce", common.ErrMalformedEnvelope)
	}

	switch info := first(env.Args.Get("info")).(type) {
	case string:
		req.Info = []string{info}
	case []any:
		for _, v := range info {
			name, ok := v.(string)
			if !ok {
				return req, fmt.Errorf("%w: request info contains %v", common.ErrMalformedEnvelope, v)
			}
			req.Info = append(req.Info, name)
		}
	default:
		return req, fmt.Errorf("%w: request without info", common.ErrMalformedEnvelope)
	}

	req.Args, _ = first(env.Args.Get("args")).(common.Args)
	if req.Args == nil {
		req.Args = common.Args{}
	}
	return req, nil
}

func first(v any, _ bool) any {
	return v
}

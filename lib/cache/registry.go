package cache

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/rpc/common"
	"sync"
)

// Registry holds the table handlers of a node by name and answers the
// invalidate_cache and reload commands for them.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*TableHandler
	order  []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*TableHandler)}
}

// Add registers a table handler. Table names must be unique.
func (r *Registry) Add(h *TableHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[h.Name()]; ok {
		return fmt.Errorf("table %s is already registered", h.Name())
	}
	r.tables[h.Name()] = h
	r.order = append(r.order, h.Name())
	return nil
}

// Table returns the handler of the named table
func (r *Registry) Table(name string) (*TableHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.tables[name]
	return h, ok
}

// Names returns the table names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// all returns the handlers in registration order
func (r *Registry) all() []*TableHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TableHandler, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tables[name])
	}
	return out
}

// --------------------------------------------------------------------------
// Bus Handlers
// --------------------------------------------------------------------------

// HandleInvalidate evicts the identifier named by an invalidate_cache envelope.
//
// The envelope carries "identifier" and, optionally, "table". Without a table the
// identifier is evicted from every table with a matching key arity. When the named
// arguments are missing the first positional value is used as identifier.
func (r *Registry) HandleInvalidate(_ context.Context, env common.Envelope) error {
	raw, ok := env.Args.Get("identifier")
	if !ok {
		// frames of older nodes misspell the argument name
		raw, ok = env.Args.Get("identifer")
	}
	if !ok {
		values := env.Positional()
		if len(values) == 0 {
			return fmt.Errorf("%w: invalidate_cache without identifier", common.ErrMalformedEnvelope)
		}
		raw = values[0]
	}
	id, err := ParseIdentifier(raw)
	if err != nil {
		return fmt.Errorf("%w: invalidate_cache: %v", common.ErrMalformedEnvelope, err)
	}

	if name, ok := env.Args.Get("table"); ok {
		tableName, _ := name.(string)
		h, found := r.Table(tableName)
		if !found {
			return fmt.Errorf("invalidate_cache for unknown table %v", name)
		}
		h.Invalidate(id)
		Logger.Debugf("Invalidated %s %s (from node %s)", tableName, id, env.Source)
		return nil
	}

	for _, h := range r.all() {
		if len(h.cfg.KeyColumns) == id.Arity() {
			h.Invalidate(id)
		}
	}
	Logger.Debugf("Invalidated %s in all tables (from node %s)", id, env.Source)
	return nil
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Reset drops the cached state of the named table, or of every table for "*"
func (r *Registry) Reset(name string) error {
	if name == common.Broadcast || name == "" {
		for _, h := range r.all() {
			h.Reset()
		}
		Logger.Infof("Reset all tables")
		return nil
	}
	h, ok := r.Table(name)
	if !ok {
		return fmt.Errorf("unknown table %s", name)
	}
	h.Reset()
	Logger.Infof("Reset table %s", name)
	return nil
}

// Stats returns the stats of every table in registration order
func (r *Registry) Stats() []TableStats {
	tables := r.all()
	out := make([]TableStats, len(tables))
	for i, h := range tables {
		out[i] = h.Stats()
	}
	return out
}

// Close closes every table, writing pending changes
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, h := range r.all() {
		if err := h.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", h.Name(), err))
		}
	}
	return errors.Join(errs...)
}

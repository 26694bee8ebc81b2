package cache

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/singleflight"
	"sync"
	"time"
)

var Logger = logger.GetLogger("cache")

// ErrClosed is returned when writing to a closed table handler
var ErrClosed = errors.New("table handler closed")

const (
	// writeTimeout bounds a single upsert or delete against the backing store
	writeTimeout           = 30 * time.Second
	// fetchTimeout bounds a shared fetch, which does not end with a single caller
	fetchTimeout           = 30 * time.Second
	// defaultAnnounceTimeout bounds one invalidation broadcast
	defaultAnnounceTimeout = 5 * time.Second
)

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// TableConfig describes one logical entity table
type TableConfig struct {
	store.Table
	// DefaultID is the identifier of the row holding the default values of the table
	DefaultID Identifier
	// Broadcast makes successful writes invalidate the entry on every other node
	Broadcast bool
}

// Validate checks the table definition and the default identifier
func (c TableConfig) Validate() error {
	if err := c.Table.Validate(); err != nil {
		return err
	}
	if c.DefaultID.Arity() != len(c.KeyColumns) {
		return fmt.Errorf("default id %s of table %s does not match key columns %v", c.DefaultID, c.Name, c.KeyColumns)
	}
	return nil
}

// Invalidator sends a command to every other node of the cluster. The cluster bus
// implements it; without one, writes are not announced.
type Invalidator interface {
	Broadcast(ctx context.Context, cmd common.Command, args common.Args) error
}

// Option configures a TableHandler
type Option func(*TableHandler)

// WithInvalidator announces successful writes of broadcasting tables through inv
func WithInvalidator(inv Invalidator) Option {
	return func(h *TableHandler) { h.invalidator = inv }
}

// WithFlushInterval sets the period of the write coalescer
func WithFlushInterval(d time.Duration) Option {
	return func(h *TableHandler) {
		if d > 0 {
			h.flushInterval = d
		}
	}
}

// WithAnnounceTimeout bounds each invalidation broadcast of a successful write
func WithAnnounceTimeout(d time.Duration) Option {
	return func(h *TableHandler) {
		if d > 0 {
			h.announceTimeout = d
		}
	}
}

// WithErrorHook receives failed writes and failed invalidation broadcasts
func WithErrorHook(hook common.ErrorHook) Option {
	return func(h *TableHandler) {
		if hook != nil {
			h.onError = hook
		}
	}
}

// --------------------------------------------------------------------------
// Table Handler
// --------------------------------------------------------------------------

// entry is the cached state of one identifier
type entry struct {
	fields store.Fields
	// fullyFetched is false while the entry only holds locally set fields
	fullyFetched bool
	// isDefault marks entries filled from the default template
	isDefault bool
}

// TableHandler caches the rows of one table and coalesces writes to it.
//
// Reads are served from memory once an identifier was fetched. Writes update memory
// synchronously and are flushed to the backing store by the write coalescer (see
// coalescer.go). A single mutex guards entries and pending writes; it is never held
// while talking to the store or the bus.
type TableHandler struct {
	cfg             TableConfig
	store           store.IStore
	invalidator     Invalidator
	onError         common.ErrorHook
	flushInterval   time.Duration
	announceTimeout time.Duration

	mu       sync.Mutex
	entries  map[Identifier]*entry
	tasks    map[Identifier]*writeTask
	defaults store.Fields // memoised default template, nil until first needed
	epoch    uint64       // bumped by every eviction, fills started before are not cached
	running  bool         // a flush loop is active
	closed   bool
	stop     chan struct{}

	fills      singleflight.Group
	background sync.WaitGroup // fire-and-forget deletes and announcements
}

// NewTableHandler creates the handler of one table
func NewTableHandler(cfg TableConfig, st store.IStore, opts ...Option) (*TableHandler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &TableHandler{
		cfg:             cfg,
		store:           st,
		onError:         common.NopErrorHook,
		flushInterval:   common.DefaultFlushInterval,
		announceTimeout: defaultAnnounceTimeout,
		entries:         make(map[Identifier]*entry),
		tasks:           make(map[Identifier]*writeTask),
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Name returns the table name
func (h *TableHandler) Name() string {
	return h.cfg.Name
}

// Config returns the table configuration
func (h *TableHandler) Config() TableConfig {
	return h.cfg
}

// Get returns the fields of id.
//
// A fully fetched entry is served from memory. Otherwise the row is fetched from the
// backing store; concurrent misses on the same identifier share one fetch. If no row
// exists, the table's default template is returned and cached under id. Fields set
// locally before the first fetch are laid over the fetched row. If ctx ends first,
// Get returns ctx.Err() and the shared fetch goes on for the other callers.
//
// The returned map is a copy and may be modified by the caller.
func (h *TableHandler) Get(ctx context.Context, id Identifier) (store.Fields, error) {
	h.mu.Lock()
	if e, ok := h.entries[id]; ok && e.fullyFetched {
		fields := e.fields.Clone()
		h.mu.Unlock()
		metrics.CacheHit(h.cfg.Name)
		return fields, nil
	}
	h.mu.Unlock()
	metrics.CacheMiss(h.cfg.Name)

	// the fetch is shared, so it must not end when the caller that started it gives up
	fills := h.fills.DoChan("row:"+id.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return h.fill(fetchCtx, id)
	})
	select {
	case res := <-fills:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(store.Fields).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fill fetches id from the store and caches the result
func (h *TableHandler) fill(ctx context.Context, id Identifier) (store.Fields, error) {
	h.mu.Lock()
	epoch := h.epoch
	h.mu.Unlock()

	row, found, err := h.store.FetchRow(ctx, h.cfg.Table, id.Key())
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", h.cfg.Name, id, err)
	}
	isDefault := !found
	if isDefault {
		defaults, err := h.defaultTemplate(ctx)
		if err != nil {
			return nil, err
		}
		row = defaults.Clone()
		for i, c := range h.cfg.KeyColumns {
			row[c] = id.parts[i]
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.entries[id]; ok {
		if cur.fullyFetched {
			return cur.fields.Clone(), nil
		}
		// read your own writes
		for k, v := range cur.fields {
			row[k] = v
		}
	}
	if h.epoch != epoch {
		// evicted while fetching: answer this call, but do not cache a possibly stale row
		return row, nil
	}
	h.entries[id] = &entry{fields: row.Clone(), fullyFetched: true, isDefault: isDefault}
	return row, nil
}

// defaultTemplate returns the memoised default row, fetching it on first use
func (h *TableHandler) defaultTemplate(ctx context.Context) (store.Fields, error) {
	h.mu.Lock()
	defaults := h.defaults
	h.mu.Unlock()
	if defaults != nil {
		return defaults, nil
	}

	v, err, _ := h.fills.Do("default", func() (any, error) {
		h.mu.Lock()
		defaults := h.defaults
		h.mu.Unlock()
		if defaults != nil {
			return defaults, nil
		}

		metrics.DefaultFetch(h.cfg.Name)
		row, found, err := h.store.FetchRow(ctx, h.cfg.Table, h.cfg.DefaultID.Key())
		if err != nil {
			return nil, fmt.Errorf("fetch default row of %s: %w", h.cfg.Name, err)
		}
		if !found {
			return nil, store.NewError(store.RetCInvalidTable,
				fmt.Sprintf("default row %s of table %s does not exist", h.cfg.DefaultID, h.cfg.Name))
		}
		Logger.Debugf("Fetched default template of %s", h.cfg.Name)

		h.mu.Lock()
		h.defaults = row
		h.mu.Unlock()
		return row, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(store.Fields), nil
}

// Set merges changes into the entry of id and waits until they were written to the
// backing store.
//
// The in-memory entry is updated before Set blocks, so Get observes the changes
// immediately. If the write fails the completion signal never fires: the failure is
// reported to the error hook and Set only returns when ctx is done.
func (h *TableHandler) Set(ctx context.Context, id Identifier, changes store.Fields) error {
	done, err := h.Stage(id, changes)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stage merges changes into the entry of id and into the pending write of id without
// waiting. The returned channel is closed once the write succeeded; every Stage of
// the same identifier before the next flush tick shares it.
func (h *TableHandler) Stage(id Identifier, changes store.Fields) (<-chan struct{}, error) {
	if id.Arity() != len(h.cfg.KeyColumns) {
		return nil, fmt.Errorf("identifier %s does not match key columns %v of %s", id, h.cfg.KeyColumns, h.cfg.Name)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}

	e, ok := h.entries[id]
	if !ok {
		e = &entry{fields: make(store.Fields, len(changes))}
		h.entries[id] = e
	}
	task, ok := h.tasks[id]
	if !ok {
		task = newWriteTask()
		h.tasks[id] = task
	}
	for k, v := range changes {
		e.fields[k] = v
		task.changes[k] = v
	}

	start := !h.running
	h.running = true
	h.mu.Unlock()

	if start {
		go h.flushLoop()
	}
	return task.done, nil
}

// Delete drops the entry of id and deletes its row in the background.
// There is no completion signal, a failed delete is only logged.
func (h *TableHandler) Delete(id Identifier) {
	h.mu.Lock()
	delete(h.entries, id)
	h.epoch++
	h.mu.Unlock()

	h.background.Add(1)
	go func() {
		defer h.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := h.store.Delete(ctx, h.cfg.Table, id.Key()); err != nil {
			Logger.Debugf("Dropped failed delete of %s %s: %v", h.cfg.Name, id, err)
		}
	}()
}

// Invalidate drops the cached entry of id. Pending writes are not affected,
// the next Get fetches the row again.
func (h *TableHandler) Invalidate(id Identifier) {
	h.mu.Lock()
	delete(h.entries, id)
	h.epoch++
	h.mu.Unlock()
}

// Reset drops every cached entry and the memoised default template
func (h *TableHandler) Reset() {
	h.mu.Lock()
	h.entries = make(map[Identifier]*entry)
	h.defaults = nil
	h.epoch++
	h.mu.Unlock()
}

// TableStats describes the state of one table handler
type TableStats struct {
	Table         string `json:"table"`
	Entries       int    `json:"entries"`
	Defaults      int    `json:"defaults"`
	PendingWrites int    `json:"pending_writes"`
	FlushRunning  bool   `json:"flush_running"`
}

// Stats returns the current number of cached entries and pending writes
func (h *TableHandler) Stats() TableStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := TableStats{
		Table:         h.cfg.Name,
		Entries:       len(h.entries),
		PendingWrites: len(h.tasks),
		FlushRunning:  h.running,
	}
	for _, e := range h.entries {
		if e.isDefault {
			stats.Defaults++
		}
	}
	return stats
}

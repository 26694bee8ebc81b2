package cache

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dSync/lib/metrics"
	"github.com/ValentinKolb/dSync/lib/store"
	"github.com/ValentinKolb/dSync/rpc/common"
	"golang.org/x/sync/errgroup"
	"time"
)

// writeTask accumulates the pending changes of one identifier.
// done is closed after a successful upsert and never on failure.
type writeTask struct {
	changes store.Fields
	done    chan struct{}
}

func newWriteTask() *writeTask {
	return &writeTask{
		changes: make(store.Fields),
		done:    make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Flush loop
// --------------------------------------------------------------------------

// flushLoop is started by the first staged write. It ticks every flush interval and
// returns at the first tick without pending writes, so an idle table has no timer.
func (h *TableHandler) flushLoop() {
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-h.stop:
			return
		}

		taken := h.take(true)
		if taken == nil {
			return
		}
		_ = h.flush(context.Background(), taken)
	}
}

// take swaps the pending writes for an empty map. Writes staged from now on start
// new tasks instead of joining the ones being flushed. With stopIfIdle an empty
// map also marks the loop as stopped, under the same lock Stage checks it with.
func (h *TableHandler) take(stopIfIdle bool) map[Identifier]*writeTask {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.tasks) == 0 {
		if stopIfIdle {
			h.running = false
		}
		return nil
	}
	taken := h.tasks
	h.tasks = make(map[Identifier]*writeTask)
	return taken
}

// flush upserts every taken task concurrently. One failing identifier does not
// affect the others. The returned error joins all failures, which were also
// reported to the error hook.
func (h *TableHandler) flush(ctx context.Context, taken map[Identifier]*writeTask) error {
	start := time.Now()

	ids := make([]Identifier, 0, len(taken))
	for id := range taken {
		ids = append(ids, id)
	}
	errs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			errs[i] = h.write(ctx, id, taken[id])
			return nil
		})
	}
	_ = g.Wait()

	var failures []error
	for _, err := range errs {
		if err != nil {
			failures = append(failures, err)
		}
	}

	Logger.Debugf("Inserted %d change(s) with %d errors", len(taken), len(failures))
	metrics.FlushDuration(h.cfg.Name, start)
	metrics.FlushBatch(h.cfg.Name, len(taken))
	metrics.Upserts(h.cfg.Name, len(taken)-len(failures))
	if len(failures) > 0 {
		metrics.UpsertFailures(h.cfg.Name, len(failures))
	}

	for _, err := range failures {
		h.onError("insert_writes", err)
	}
	return errors.Join(failures...)
}

// write upserts one task, resolves it and announces the change
func (h *TableHandler) write(ctx context.Context, id Identifier, task *writeTask) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := h.store.Upsert(writeCtx, h.cfg.Table, id.Key(), task.changes); err != nil {
		// the task is discarded and its waiters are never released
		return fmt.Errorf("upsert %s %s: %w", h.cfg.Name, id, err)
	}
	close(task.done)

	if h.cfg.Broadcast && h.invalidator != nil {
		h.announce(id)
	}
	return nil
}

// announce broadcasts the invalidation of id from a background goroutine bounded by
// the announce timeout. The flush loop does not wait for it, Close does.
func (h *TableHandler) announce(id Identifier) {
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.announceTimeout)
		defer cancel()
		args := common.NewArgs("identifier", id, "table", h.cfg.Name)
		if err := h.invalidator.Broadcast(ctx, common.CmdInvalidate, args); err != nil {
			h.onError("invalidate_cache", fmt.Errorf("announce %s %s: %w", h.cfg.Name, id, err))
		}
	}()
}

// --------------------------------------------------------------------------
// Manual flushing
// --------------------------------------------------------------------------

// Flush writes every pending change now instead of waiting for the next tick
func (h *TableHandler) Flush(ctx context.Context) error {
	taken := h.take(false)
	if taken == nil {
		return nil
	}
	return h.flush(ctx, taken)
}

// Close stops the flush loop, writes what is still pending and waits for
// background deletes and announcements. Writes staged after Close fail with ErrClosed.
func (h *TableHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.stop)
	h.mu.Unlock()

	err := h.Flush(ctx)

	waited := make(chan struct{})
	go func() {
		h.background.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

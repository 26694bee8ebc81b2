package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is a single element of the linked list
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is a lock-free multi-producer single-consumer queue
type Queue[T any] struct {
	head   atomic.Pointer[node[T]] // owned by the consumer goroutine
	tail   atomic.Pointer[node[T]]
	size   atomic.Int64
	closed atomic.Bool
	out    chan T

	// wakes the consumer when it found the list empty
	mu   sync.Mutex
	cond *sync.Cond
}

// NewQueue creates a queue and starts its consumer goroutine
func NewQueue[T any]() *Queue[T] {
	sentinel := &node[T]{}
	q := &Queue[T]{out: make(chan T)}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()
	return q
}

// Push appends value. It returns false if the queue is closed.
func (q *Queue[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	// counted before linking so the consumer never drives size negative
	q.size.Add(1)
	n := &node[T]{value: value}
	var backoff uint8
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// another producer may already have moved the tail on, that's fine
				q.tail.CompareAndSwap(tail, n)
				q.signal()
				return true
			}
		} else {
			// help a producer which appended but has not moved the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// spin briefly under contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// signal must hold mu, otherwise a wakeup between the consumer's
// emptiness check and its Wait would get lost
func (q *Queue[T]) signal() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *Queue[T]) consume() {
	defer close(q.out)

	var zero T
	for {
		drained := false
		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			drained = true
			value := next.value
			q.head.Store(next)
			q.size.Add(-1)
			q.out <- value
			next.value = zero
		}

		if !drained && q.closed.Load() {
			return
		}

		if !drained {
			q.mu.Lock()
			if q.head.Load().next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the channel the single consumer reads from.
// It is closed after Close once every pushed item was received.
func (q *Queue[T]) Recv() <-chan T {
	return q.out
}

// Close rejects further pushes. Items already queued are still delivered.
func (q *Queue[T]) Close() {
	q.closed.Store(true)
	q.signal()
}

// IsClosed returns true if the queue is closed
func (q *Queue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of queued items not yet handed to the consumer
func (q *Queue[T]) Len() int {
	return int(q.size.Load())
}

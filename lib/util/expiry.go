package util

import (
	"container/heap"
	"time"
)

// item is one key of an ExpiryHeap with its deadline
type item[K comparable] struct {
	Key      K
	Deadline time.Time
	index    int // index in the heap, maintained by the heap package
}

// ExpiryHeap orders keys by deadline and allows removal by key.
//
// It combines a binary min heap with a map from key to heap item, so the next key to
// expire is found in O(1), and Set, Remove and PopExpired are O(log n) per key.
// ExpiryHeap is not safe for concurrent use.
//
// Example usage:
//
//	h := NewExpiryHeap[string]()
//	h.Set("a1b2", time.Now().Add(time.Minute))
//	for _, key := range h.PopExpired(time.Now()) {
//		forget(key)
//	}
type ExpiryHeap[K comparable] struct {
	items    []*item[K]
	itemsMap map[K]*item[K]
}

// NewExpiryHeap creates an empty heap
func NewExpiryHeap[K comparable]() *ExpiryHeap[K] {
	return &ExpiryHeap[K]{
		items:    make([]*item[K], 0),
		itemsMap: make(map[K]*item[K]),
	}
}

// --------------------------------------------------------------------------
// heap.Interface
// --------------------------------------------------------------------------

func (h *ExpiryHeap[K]) Len() int { return len(h.items) }

func (h *ExpiryHeap[K]) Less(i, j int) bool {
	return h.items[i].Deadline.Before(h.items[j].Deadline)
}

func (h *ExpiryHeap[K]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *ExpiryHeap[K]) Push(x any) {
	it := x.(*item[K])
	it.index = len(h.items)
	h.items = append(h.items, it)
	h.itemsMap[it.Key] = it
}

func (h *ExpiryHeap[K]) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	h.items = old[:n-1]
	delete(h.itemsMap, it.Key)
	return it
}

// --------------------------------------------------------------------------
// Key based access
// --------------------------------------------------------------------------

// Set adds key or moves its deadline
func (h *ExpiryHeap[K]) Set(key K, deadline time.Time) {
	if it, exists := h.itemsMap[key]; exists {
		it.Deadline = deadline
		heap.Fix(h, it.index)
		return
	}
	heap.Push(h, &item[K]{Key: key, Deadline: deadline})
}

// Remove drops key and returns its deadline
func (h *ExpiryHeap[K]) Remove(key K) (time.Time, bool) {
	it, exists := h.itemsMap[key]
	if !exists {
		return time.Time{}, false
	}
	heap.Remove(h, it.index)
	return it.Deadline, true
}

// Contains checks if key is in the heap
func (h *ExpiryHeap[K]) Contains(key K) bool {
	_, exists := h.itemsMap[key]
	return exists
}

// Next returns the key with the earliest deadline without removing it
func (h *ExpiryHeap[K]) Next() (K, time.Time, bool) {
	if len(h.items) == 0 {
		var zero K
		return zero, time.Time{}, false
	}
	return h.items[0].Key, h.items[0].Deadline, true
}

// PopExpired removes and returns every key whose deadline is not after now,
// earliest first
func (h *ExpiryHeap[K]) PopExpired(now time.Time) []K {
	var expired []K
	for len(h.items) > 0 && !h.items[0].Deadline.After(now) {
		expired = append(expired, heap.Pop(h).(*item[K]).Key)
	}
	return expired
}

package util

import (
	"testing"
	"time"
)

// TestNewExpiryHeap tests the creation of a new heap
func TestNewExpiryHeap(t *testing.T) {
	h := NewExpiryHeap[string]()

	if h.Len() != 0 {
		t.Errorf("New heap should be empty, but has length %d", h.Len())
	}
	if _, _, ok := h.Next(); ok {
		t.Error("Next() on an empty heap should return false")
	}
}

// TestSetOrdersByDeadline tests that the earliest deadline comes first
func TestSetOrdersByDeadline(t *testing.T) {
	base := time.Now()
	h := NewExpiryHeap[string]()

	h.Set("b", base.Add(2*time.Second))
	h.Set("c", base.Add(3*time.Second))
	h.Set("a", base.Add(time.Second))

	if h.Len() != 3 {
		t.Fatalf("Heap should have 3 items, but has %d", h.Len())
	}
	key, deadline, ok := h.Next()
	if !ok || key != "a" || !deadline.Equal(base.Add(time.Second)) {
		t.Errorf("Expected a to expire first, got %q at %v", key, deadline)
	}

	// moving a deadline reorders the heap
	h.Set("a", base.Add(4*time.Second))
	if key, _, _ := h.Next(); key != "b" {
		t.Errorf("Expected b to expire first after the update, got %q", key)
	}
	if h.Len() != 3 {
		t.Errorf("Updating a key must not add an item, got %d items", h.Len())
	}
}

// TestRemove tests removing keys in the middle of the heap
func TestRemove(t *testing.T) {
	base := time.Now()
	h := NewExpiryHeap[int]()
	for i := 0; i < 10; i++ {
		h.Set(i, base.Add(time.Duration(i)*time.Second))
	}

	if _, ok := h.Remove(5); !ok {
		t.Fatal("Remove(5) should find the key")
	}
	if h.Contains(5) {
		t.Error("Heap should not contain 5 after removal")
	}
	if _, ok := h.Remove(5); ok {
		t.Error("Removing a key twice should fail")
	}

	got := h.PopExpired(base.Add(time.Hour))
	want := []int{0, 1, 2, 3, 4, 6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}
}

// TestPopExpired tests that only keys at or before now are popped
func TestPopExpired(t *testing.T) {
	base := time.Now()
	h := NewExpiryHeap[string]()
	h.Set("old", base.Add(-time.Second))
	h.Set("now", base)
	h.Set("later", base.Add(time.Second))

	expired := h.PopExpired(base)
	if len(expired) != 2 || expired[0] != "old" || expired[1] != "now" {
		t.Errorf("Expected [old now], got %v", expired)
	}
	if !h.Contains("later") || h.Len() != 1 {
		t.Errorf("Expected only later to remain, got %d items", h.Len())
	}
	if expired := h.PopExpired(base); len(expired) != 0 {
		t.Errorf("Expected nothing to expire, got %v", expired)
	}
}

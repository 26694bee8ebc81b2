// Package util provides the data structures behind the relay: the outbound queue used to
// deliver frames to its peers and the expiry heap that forgets request routes.
//
// Queue is an unbounded multi-producer single-consumer queue built as a linked list of
// atomically appended nodes. Any number of goroutines may Push concurrently (every
// connection reader of the relay fans frames out to other peers), while exactly one
// goroutine per peer drains it through Recv and writes to the socket. A slow peer only
// grows its own queue; it never blocks the reader that produced the frame.
//
// Guarantees:
//
//   - Push never blocks on the consumer
//   - items pushed by one goroutine are received in push order
//   - items pushed before Close are still delivered, Recv is closed afterwards
//   - Len is O(1) and exact once producers are quiet
//
// ExpiryHeap is a min heap of keys ordered by deadline with an index from key to heap
// position. The relay records the deadline of every request nonce in it and drops the
// routes whose deadline passed, without scanning routes that are still alive.
package util

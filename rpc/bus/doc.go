// Package bus implements the cluster bus: the persistent connection of one node to
// the relay and the messaging primitives built on it.
//
// Every node keeps exactly one connection to the relay. The first frame on it is an
// IDENTIFY envelope carrying the node id and role. After that the node can
//
//   - Broadcast a command to every other node (a SEND envelope targeting "*")
//   - SendTo a single node (a SEND envelope targeting the node id)
//   - Request facts from one or all nodes and collect the answers (REQUEST/RESPONSE
//     correlated by a random nonce)
//
// Receiving:
//
//	Run reads one frame at a time. The frame is decoded and its command is looked up
//	in an explicit dispatch table filled with Handle. Responses are matched to pending
//	requests directly in the loop; every other command runs its handler in a new
//	goroutine, so a slow handler never blocks the connection. Handler errors and
//	panics are caught and reported through the error hook as *common.HandlerFailure.
//	Frames that cannot be decoded and envelopes with unknown commands are counted,
//	logged and dropped, the loop continues.
//
// Reconnecting:
//
//	When the connection is lost, Run attempts a single reconnect. On success it logs a
//	warning and continues. On failure the node cannot take part in the cluster any
//	more: the fatal hook is called and Run returns an error wrapping
//	common.ErrConnectionLost. The node turns this into a forced restart instead of
//	silently diverging from its peers.
//
// Requests:
//
//	Request registers a pending request under a fresh nonce before sending, then waits
//	until every expected node answered or the timeout elapsed. Timing out is a normal
//	outcome: the nodes that answered are returned with Complete set to false.
package bus

// Package relay implements the process every node of a dSync cluster connects to.
//
// The relay keeps no state besides the open connections and the routes of pending
// requests. It does not persist anything and gives no delivery guarantees beyond
// those of the underlying connections.
//
// Protocol:
//
//   - The first frame of a connection must be IDENTIFY{node_id, role}. Anything else
//     closes the connection. A second connection with the same node id replaces the
//     first one.
//   - SEND{c, a} with target "*" delivers the inner envelope {c, a} to every other
//     node, with target <node id> to that node only. The inner envelope is stamped
//     with the id of the sender in "s".
//   - REQUEST is delivered to the target node, or to every node including the sender
//     for "*". The relay remembers which connection sent the nonce.
//   - RESPONSE, targeted at a nonce, is delivered to the connection that sent the
//     matching request. Routes expire after RouteTTL.
//
// Connections with role "client" (the CLI) can send and request but never receive
// broadcasts.
//
// Every peer has an unbounded outbound queue drained by its own writer goroutine,
// so fanning a frame out to many nodes never waits for a slow one.
package relay

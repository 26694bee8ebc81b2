// Package rpc provides the cluster bus of dSync: the communication layer between the
// nodes of a cluster and the relay they all connect to.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the bus, including the
//     Envelope, the command union, configuration structures, errors and logging.
//
//   - transport: Persistent duplex connections carrying whole frames with pluggable
//     implementations (TCP, Unix sockets, WebSocket).
//
//   - serializer: Envelope serialization with two format options (JSON, zstd
//     compressed JSON) for converting between Envelopes and frames.
//
//   - bus: The node side of the relay connection. Dispatches incoming commands to
//     handlers, sends broadcasts and correlates requests with their responses.
//
//   - relay: The relay process. Accepts one connection per node and fans envelopes
//     out to their targets.
package rpc

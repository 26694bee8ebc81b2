// Package common holds the types shared by the cluster bus, the relay and the
// node: the wire envelope, the command set, node identities, configuration,
// errors and logging.
//
// Key Components:
//
//   - Envelope: one frame on the bus, encoded as {"c", "a", "t", "s"}. The relay
//     instructions IDENTIFY, SEND, REQUEST and RESPONSE wrap or route the node
//     commands; NewSendEnvelope, NewRequestEnvelope and friends build them and
//     Unwrap recovers the inner command of a SEND.
//
//   - Args: keyword arguments as an ordered list of name/value pairs. The order
//     survives JSON encoding, so positional handlers see values as they were sent.
//
//   - Command: the closed set of relay instructions and node commands
//     (invalidate_cache, close, restart, reload, change_log_level). ParseCommand
//     rejects anything else with ErrUnknownCommand.
//
//   - NodeID: the integer id of a cluster member. Clients use negative ids,
//     Broadcast ("*") targets every node.
//
//   - ClientConfig, NodeConfig, RelayConfig: settings of a bus connection, a
//     node process and the relay, with defaults and a printable summary.
//
//   - Errors: ErrConnectionLost, ErrMalformedEnvelope, ErrUnknownCommand and
//     ErrNotConnected, plus HandlerFailure for failed bus handlers. Failures that
//     have no caller to return to are passed to an ErrorHook.
//
//   - Logger: a dragonboat logger factory writing through a tint slog handler.
//     InitLoggers installs it, SetLogLevel changes every dSync logger at runtime.
package common

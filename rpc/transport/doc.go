// Package transport defines the connection abstraction the cluster bus and the relay
// communicate over.
//
// A transport moves opaque frames. It knows nothing about envelopes; encoding is done
// by the serializer package. Every implementation guarantees that a frame written with
// WriteFrame arrives as exactly one frame at ReadFrame on the other side, that
// concurrent WriteFrame calls do not interleave, and that a read or write on a broken
// connection returns an error wrapping common.ErrConnectionLost.
//
// Implementations:
//   - base: length-prefixed framing shared by the stream transports
//   - tcp: TCP sockets with TCP_NODELAY and keep-alive
//   - unix: Unix domain sockets
//   - ws: websockets, one binary message per frame
package transport

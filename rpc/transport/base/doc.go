// Package base provides a foundation for stream based transport layers (TCP, Unix
// sockets). It implements length-prefixed framing on top of a net.Conn and adapts a
// net.Listener to the transport.IListener interface, so concrete transports only
// supply the dial and listen calls.
//
// Frame format:
//
//   - 4 bytes: payload length (uint32, big endian)
//   - N bytes: payload (one serialized envelope)
//
// Thread Safety:
//
//	Writes are serialized with a mutex so any number of goroutines may send on a
//	connection. Reads must happen from a single goroutine (the bus receive loop or
//	the relay's per-peer reader).
package base

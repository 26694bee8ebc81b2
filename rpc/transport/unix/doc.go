// Package unix implements a transport between cluster nodes and the relay using Unix
// domain sockets, for nodes running on the same machine as the relay.
//
// This package extends the base transport layer with Unix socket-specific dial and
// listen calls while inheriting framing and error handling from the base package.
package unix

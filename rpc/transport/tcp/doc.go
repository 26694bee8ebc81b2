// Package tcp implements TCP socket-based transport between cluster nodes and the
// relay. It builds on the base package's length-prefixed framing.
//
// Connections on both sides get TCP_NODELAY and keep-alive: bus frames are small and
// a dead relay should surface as a read error rather than a silent hang.
package tcp

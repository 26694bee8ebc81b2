// Package ws implements the bus transport over websockets using golang.org/x/net/websocket.
//
// Each bus frame travels as exactly one binary websocket message, so no additional
// length prefix is needed. The server side is a plain http.Server that upgrades
// requests on Path ("/bus"); accepted connections are handed to the relay through
// the transport.IListener interface like any other transport.
//
// Clients accept either a full url (ws://relay:8520/bus) or a bare host:port, in which
// case Path is appended.
package ws

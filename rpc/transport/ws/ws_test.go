package ws

import (
	"context"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestWebsocketRoundTrip(t *testing.T) {
	ln, err := NewWSServerTransport().Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewWSClientTransport().Dial(ctx, ln.Addr())
	require.NoError(t, err)
	defer client.Close()

	server, err := ln.Accept()
	require.NoError(t, err)
	defer server.Close()

	require.NoError(t, client.WriteFrame([]byte(`{"c":"IDENTIFY","a":{"node_id":1}}`)))
	got, err := server.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, `{"c":"IDENTIFY","a":{"node_id":1}}`, string(got))

	require.NoError(t, server.WriteFrame([]byte("pong")))
	got, err = client.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, "pong", string(got))
}

func TestEndpointURL(t *testing.T) {
	require.Equal(t, "ws://relay:8520/bus", endpointURL("relay:8520"))
	require.Equal(t, "wss://relay/custom", endpointURL("wss://relay/custom"))
}

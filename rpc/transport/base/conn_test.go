package base

import (
	"bytes"
	"errors"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/stretchr/testify/require"
	"net"
	"testing"
)

func TestFramesOverPipe(t *testing.T) {
	a, b := net.Pipe()
	client, server := NewConn(a), NewConn(b)
	defer client.Close()
	defer server.Close()

	frames := [][]byte{
		[]byte(`{"c":"restart","a":{}}`),
		{},
		bytes.Repeat([]byte("x"), 70*1024),
	}

	go func() {
		for _, f := range frames {
			if err := client.WriteFrame(f); err != nil {
				return
			}
		}
	}()

	for _, want := range frames {
		got, err := server.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestReadAfterCloseIsConnectionLost(t *testing.T) {
	a, b := net.Pipe()
	client, server := NewConn(a), NewConn(b)

	require.NoError(t, client.Close())
	_, err := server.ReadFrame()
	require.True(t, errors.Is(err, common.ErrConnectionLost), "got %v", err)

	err = server.WriteFrame([]byte("late"))
	require.True(t, errors.Is(err, common.ErrConnectionLost), "got %v", err)
}

func TestOversizedFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	err := writeFrame(&buf, make([]byte, MaxFrameSize+1))
	require.ErrorIs(t, err, ErrFrameTooLarge)

	// a peer announcing a huge frame must not make us allocate it
	buf.Reset()
	buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
	_, err = readFrame(&buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

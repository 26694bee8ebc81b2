package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// headerSize is the size of the length prefix
	headerSize = 4

	// MaxFrameSize bounds the payload of a single frame
	MaxFrameSize = 16 * 1024 * 1024
)

// ErrFrameTooLarge is returned for frames exceeding MaxFrameSize
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// writeFrame writes a frame to the connection with the format:
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	// combine header and payload into a single write where the conn supports it
	if conn, ok := w.(net.Conn); ok {
		b := net.Buffers{header, data}
		_, err := b.WriteTo(conn)
		return err
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readFrame reads one frame from the reader
func readFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	contentLength := binary.BigEndian.Uint32(header[:])
	if contentLength > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, contentLength)
	}

	// If no data, return empty slice
	if contentLength == 0 {
		return []byte{}, nil
	}

	data := make([]byte, contentLength)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeaderSize is the length prefix used on stream transports.
const frameHeaderSize = 4

// WriteFrame writes payload with a 4-byte big-endian length prefix in a
// single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPacketSize {
		return fmt.Errorf("write %d bytes: %w", len(payload), ErrFrameTooLarge)
	}
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. Empty frames are returned as a
// zero-length slice.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxPacketSize {
		return nil, fmt.Errorf("read %d bytes: %w", length, ErrFrameTooLarge)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return data, nil
}

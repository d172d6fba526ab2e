package protocol

import (
	"bufio"
	"fmt"
	"net"
	"sync"
)

// Link carries encoded replication messages over a connection.
type Link interface {
	ReadMessage() (any, error)
	WriteMessage(msg any) error
	Close() error
	RemoteAddr() net.Addr
}

// NewPacketLink returns a Link that sends one message per datagram. conn
// must be a connected packet socket, such as one returned by net.Dial("udp").
func NewPacketLink(conn net.Conn) Link {
	return &packetLink{conn: conn, buf: make([]byte, MaxPacketSize+1)}
}

// NewStreamLink returns a Link that length-prefixes each message, for
// stream transports such as kcp sessions.
func NewStreamLink(conn net.Conn) Link {
	return &streamLink{conn: conn, r: bufio.NewReader(conn)}
}

type packetLink struct {
	conn net.Conn
	buf  []byte
	wmu  sync.Mutex
}

func (l *packetLink) ReadMessage() (any, error) {
	n, err := l.conn.Read(l.buf)
	if err != nil {
		return nil, err
	}
	if n > MaxPacketSize {
		return nil, fmt.Errorf("read datagram: %w", ErrFrameTooLarge)
	}
	return Unmarshal(l.buf[:n])
}

func (l *packetLink) WriteMessage(msg any) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}
	if len(data) > MaxPacketSize {
		return fmt.Errorf("write %d bytes: %w", len(data), ErrFrameTooLarge)
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	if _, err := l.conn.Write(data); err != nil {
		return fmt.Errorf("write datagram: %w", err)
	}
	return nil
}

func (l *packetLink) Close() error         { return l.conn.Close() }
func (l *packetLink) RemoteAddr() net.Addr { return l.conn.RemoteAddr() }

type streamLink struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
}

func (l *streamLink) ReadMessage() (any, error) {
	data, err := ReadFrame(l.r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

func (l *streamLink) WriteMessage(msg any) error {
	data, err := Marshal(msg)
	if err != nil {
		return err
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return WriteFrame(l.conn, data)
}

func (l *streamLink) Close() error         { return l.conn.Close() }
func (l *streamLink) RemoteAddr() net.Addr { return l.conn.RemoteAddr() }

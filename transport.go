package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
)

// lengthPrefixWidth is the fixed byte width of the frame length prefix
// (spec.md §4.1, §6: "fixed-byte length prefix (network byte order)").
const lengthPrefixWidth = 4

// maxFrameBytes bounds a single frame's declared body size, protecting the
// reader from a hostile or corrupt length prefix.
const maxFrameBytes = 1 << 20 // 1 MiB

// ErrMalformed indicates a frame whose body failed to decode. Per spec.md
// §4.1 this must not close the connection.
var ErrMalformed = errors.New("transport: malformed frame")

// ErrFrameTooLarge indicates a declared body size exceeding maxFrameBytes.
var ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

// Transport exchanges length-prefixed Message records over a net.Conn
// (spec.md §4.1). A fixed 4-byte big-endian prefix gives the number of
// bytes in the following JSON body; the frame boundary is the sole
// synchronization point.
type Transport struct {
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewTransport wraps conn in a Transport.
func NewTransport(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// Read reads one complete frame, blocking until a full record is available
// or the peer closes. A decode failure returns ErrMalformed without closing
// the stream; io.EOF signals a clean peer close.
func (t *Transport) Read() (Message, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	var lenBuf [lengthPrefixWidth]byte
	if _, err := io.ReadFull(t.conn, lenBuf[:]); err != nil {
		return Message{}, normalizeReadErr(err)
	}

	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameBytes {
		return Message{}, ErrFrameTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(t.conn, body); err != nil {
		return Message{}, normalizeReadErr(err)
	}

	msg, err := DecodeMessage(body)
	if err != nil {
		return Message{}, ErrMalformed
	}
	return msg, nil
}

// normalizeReadErr reports a peer close as io.EOF. io.ReadFull already
// returns io.EOF when the peer closes before any byte of the prefix or body
// arrives; this also maps io.ErrUnexpectedEOF (the peer closed partway
// through a prefix or body) to io.EOF. Other errors pass through unchanged.
func normalizeReadErr(err error) error {
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

// Write atomically writes one frame. A partial write closes the connection
// so no half-framed record can remain on the wire (spec.md §4.1); the
// caller MUST treat any non-nil error as "evict this connection".
func (t *Transport) Write(msg Message) error {
	body, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	if len(body) > maxFrameBytes {
		return ErrFrameTooLarge
	}

	frame := make([]byte, lengthPrefixWidth+len(body))
	binary.BigEndian.PutUint32(frame[:lengthPrefixWidth], uint32(len(body)))
	copy(frame[lengthPrefixWidth:], body)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := t.conn.Write(frame)
	if err != nil {
		t.conn.Close()
		return err
	}
	if n != len(frame) {
		t.conn.Close()
		return io.ErrShortWrite
	}
	return nil
}

// IsPeerAlive is a non-blocking probe that returns false when the peer has
// half-closed (spec.md §4.1). It peeks at the socket buffer with MSG_PEEK so
// it never consumes bytes the read loop is waiting for, and so it is safe to
// call concurrently with a Read blocked in the Connection Worker — exactly
// how the Heartbeat Supervisor uses it.
func (t *Transport) IsPeerAlive() bool {
	sc, ok := t.conn.(syscall.Conn)
	if !ok {
		return true // not a raw-capable conn (e.g. in unit tests); assume alive
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return true
	}

	alive := true
	peekErr := raw.Read(func(fd uintptr) bool {
		buf := make([]byte, 1)
		n, _, errno := syscall.Recvfrom(int(fd), buf, syscall.MSG_PEEK|syscall.MSG_DONTWAIT)
		switch {
		case n == 0 && errno == nil:
			alive = false // orderly shutdown: peer sent FIN
		case errno == syscall.EAGAIN || errno == syscall.EWOULDBLOCK:
			alive = true // nothing pending, connection is fine
		case errno != nil:
			alive = false
		}
		return true
	})
	if peekErr != nil {
		return true
	}
	return alive
}

// Close tears down the underlying connection. Safe to call more than once.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// RemoteIP and RemotePort report the peer's source address.
func (t *Transport) RemoteIP() string {
	host, _, err := net.SplitHostPort(t.conn.RemoteAddr().String())
	if err != nil {
		return t.conn.RemoteAddr().String()
	}
	return host
}

func (t *Transport) RemotePort() int {
	_, portStr, err := net.SplitHostPort(t.conn.RemoteAddr().String())
	if err != nil {
		return 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port
}

// Package transport implements the length-prefixed framing protocol
// shared by both server I/O backends: every message is a 4-byte
// little-endian length prefix followed by a UTF-8 JSON payload, capped
// at 16 MiB. Framing is deliberately kept independent of the I/O model
// that drives it — the same Conn type backs both the parallel-thread
// and cooperative-task servers, following the transport-interface split
// called for alongside the dispatcher.
package transport

import (
	"bufio"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"

	"github.com/oxidb/oxidb/pkg/oxierr"
)

// MaxFrameSize is the maximum permitted payload size for a single frame.
// A frame whose declared length exceeds this terminates the connection
// immediately with no reply.
const MaxFrameSize = 16 * 1024 * 1024

// Conn wraps a net.Conn with frame-oriented Read/Write, buffering reads
// the way the teacher's own line-oriented protocol helpers do.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader
}

// NewConn wraps an already-established connection (plain TCP or a TLS
// connection returned by tls.Server/tls.Client) for frame I/O.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, r: bufio.NewReader(nc)}
}

// WrapTLS negotiates a server-side TLS handshake over nc using cfg and
// returns a framed Conn. TLS is negotiated eagerly at connect time; this
// protocol has no STARTTLS-style mid-stream upgrade.
func WrapTLS(nc net.Conn, cfg *tls.Config) (*Conn, error) {
	tlsConn := tls.Server(nc, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "TLS handshake")
	}
	return NewConn(tlsConn), nil
}

// ReadFrame reads one length-prefixed payload. A frame declaring a
// length over MaxFrameSize is a protocol violation: the caller should
// close the connection without replying.
func (c *Conn) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length > MaxFrameSize {
		return nil, oxierr.New(oxierr.ParseError, "frame length %d exceeds maximum %d", length, MaxFrameSize)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame.
func (c *Conn) WriteFrame(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return oxierr.New(oxierr.ParseError, "frame length %d exceeds maximum %d", len(payload), MaxFrameSize)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := c.nc.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(payload)
	return err
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// RemoteAddr exposes the underlying connection's remote address, used
// for logging.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

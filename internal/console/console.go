// Package console drives the emulator's serial port: a plain TCP byte
// stream exposed by the emulator as "telnet:host:port,server,nowait". No
// telnet IAC negotiation is required for this emulator's serial backend,
// so Console speaks raw bytes over net.Conn.
package console

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Console is a byte-oriented connection to one VM's serial port.
type Console struct {
	conn net.Conn
	buf  []byte // bytes read but not yet claimed by Expect/ReadUntil
}

// Dial connects to host:port. Callers typically dial 127.0.0.1:5000+slot.
func Dial(ctx context.Context, addr string) (*Console, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("console: dial %s: %w", addr, err)
	}
	return &Console{conn: conn}, nil
}

// Raw exposes the underlying connection for read-only consumers (the
// supplemental console-streaming endpoint) that want raw bytes without
// going through Expect/ReadUntil's pattern matching. Callers must not
// write to it while the bootstrap dialogue is in progress.
func (c *Console) Raw() net.Conn { return c.conn }

// Close closes the underlying connection.
func (c *Console) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Expect waits up to timeout for any one of patterns to appear in the
// stream. It returns the index of the first pattern matched, the matched
// bytes themselves, and every byte read before the match (preceding) so
// callers never lose console output between matches. On timeout it
// returns idx -1 and preceding holding everything accumulated since the
// last call — bytes are never dropped.
func (c *Console) Expect(ctx context.Context, patterns [][]byte, timeout time.Duration) (idx int, matched, preceding []byte, err error) {
	deadline := time.Now().Add(timeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return -1, nil, nil, fmt.Errorf("console: set deadline: %w", err)
	}
	defer c.conn.SetReadDeadline(time.Time{})

	chunk := make([]byte, 4096)
	for {
		if i, start, end := firstMatch(c.buf, patterns); i >= 0 {
			pre := c.buf[:start]
			matched := c.buf[start:end]
			c.buf = c.buf[end:]
			return i, matched, pre, nil
		}

		select {
		case <-ctx.Done():
			pre := c.buf
			c.buf = nil
			return -1, nil, pre, ctx.Err()
		default:
		}

		n, readErr := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if readErr != nil {
			if ne, ok := readErr.(net.Error); ok && ne.Timeout() {
				pre := c.buf
				c.buf = nil
				return -1, nil, pre, nil
			}
			pre := c.buf
			c.buf = nil
			return -1, nil, pre, fmt.Errorf("console: read: %w", readErr)
		}
	}
}

// ReadUntil blocks until token appears in the stream or the peer closes
// the connection, returning everything read (including token).
func (c *Console) ReadUntil(ctx context.Context, token []byte) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
		defer c.conn.SetReadDeadline(time.Time{})
	}

	chunk := make([]byte, 4096)
	for {
		if idx := bytes.Index(c.buf, token); idx >= 0 {
			end := idx + len(token)
			out := c.buf[:end]
			c.buf = c.buf[end:]
			return out, nil
		}

		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				out := c.buf
				c.buf = nil
				return out, nil
			}
			return nil, fmt.Errorf("console: read_until: %w", err)
		}
	}
}

// WriteLine sends s followed by a carriage return. It does not wait for a
// response.
func (c *Console) WriteLine(s string) error {
	_, err := c.conn.Write([]byte(s + "\r"))
	if err != nil {
		return fmt.Errorf("console: write_line: %w", err)
	}
	return nil
}

// firstMatch returns the index into patterns of the earliest-ending match
// in buf, along with its [start,end) byte range, or (-1, 0, 0) if none
// match yet.
func firstMatch(buf []byte, patterns [][]byte) (idx, start, end int) {
	bestEnd := -1
	bestStart := -1
	bestIdx := -1
	for i, p := range patterns {
		if len(p) == 0 {
			continue
		}
		at := bytes.Index(buf, p)
		if at < 0 {
			continue
		}
		e := at + len(p)
		if bestEnd == -1 || e < bestEnd {
			bestEnd = e
			bestStart = at
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return -1, 0, 0
	}
	return bestIdx, bestStart, bestEnd
}

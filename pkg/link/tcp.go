package link

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// tcpChannel is a raw socket to a peer. Outbound frames are written as-is;
// inbound bytes are split into frames by splitFrames.
type tcpChannel struct {
	conn         net.Conn
	scanner      *bufio.Scanner
	writeTimeout time.Duration
}

func (d *NetDialer) dialTCP(ctx context.Context, ep Endpoint) (Channel, error) {
	nd := net.Dialer{
		Timeout:   d.DialTimeout,
		KeepAlive: d.KeepAlive,
	}
	conn, err := nd.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		return nil, fmt.Errorf("tcp dial failed: %w", err)
	}

	limit := int(d.ReadLimit)
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), limit)
	scanner.Split(splitFrames)

	return &tcpChannel{conn: conn, scanner: scanner, writeTimeout: d.WriteTimeout}, nil
}

func (c *tcpChannel) ReadMessage() ([]byte, error) {
	if c.scanner.Scan() {
		return bytes.Clone(c.scanner.Bytes()), nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %v", ErrPeerClosed, io.EOF)
}

func (c *tcpChannel) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *tcpChannel) Close() error {
	return c.conn.Close()
}

// splitFrames is a bufio.SplitFunc for the robot's stream. A frame that
// opens with a brace ends at its matching closing brace (kept); braces
// inside quoted strings are not counted. Any frame also ends at a newline
// (dropped), which bounds a malformed frame to one line. Leading whitespace
// is skipped, so "{ok}\r\n{Heartbeat}" yields "{ok}" and "{Heartbeat}".
func splitFrames(data []byte, atEOF bool) (int, []byte, error) {
	start := 0
	for start < len(data) && isSpace(data[start]) {
		start++
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(data); i++ {
		b := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			if b != '\n' {
				continue
			}
		}
		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 {
				return i + 1, data[start : i+1], nil
			}
		case '\n':
			return i + 1, bytes.TrimRight(data[start:i], "\r"), nil
		}
	}

	if atEOF && start < len(data) {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

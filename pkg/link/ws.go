package link

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsChannel is a text websocket to a peer.
type wsChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (d *NetDialer) dialWS(ctx context.Context, ep Endpoint) (Channel, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.DialTimeout,
		NetDialContext: (&net.Dialer{
			Timeout:   d.DialTimeout,
			KeepAlive: d.KeepAlive,
		}).DialContext,
	}

	conn, resp, err := dialer.DialContext(ctx, ep.URL(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &wsChannel{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

func (c *wsChannel) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
			websocket.CloseAbnormalClosure,
		) {
			return nil, fmt.Errorf("%w: %v", ErrPeerClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (c *wsChannel) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame on a best-effort basis, then drops the socket.
// WriteControl is safe to call concurrently with the writer.
func (c *wsChannel) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

package hub

import (
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	// writeWait is how long a single write may take.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 * 1024
)

// Serve subscribes conn and pumps events to it until either side goes
// away. snapshot, if not nil, is called once the subscription exists and
// its frames are written before any published event, so nothing published
// around the snapshot is lost. Serve blocks, so call it from the websocket
// handler.
func (h *Hub) Serve(conn *websocket.Conn, snapshot func() [][]byte) {
	_, ch, unsubscribe := h.Subscribe()
	defer unsubscribe()

	var initial [][]byte
	if snapshot != nil {
		initial = snapshot()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(conn, ch, initial)
	}()
	readPump(conn)
	unsubscribe()
	<-done
}

// readPump discards client frames. It only exists to process pongs and
// notice disconnects.
func readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer of conn.
func (h *Hub) writePump(conn *websocket.Conn, ch <-chan []byte, initial [][]byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for _, data := range initial {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	for {
		select {
		case data, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

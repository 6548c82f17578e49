package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adbwatch/adbwatch/internal/httpserver/deps"
	"github.com/adbwatch/adbwatch/internal/logger"
	"github.com/adbwatch/adbwatch/internal/utils"
)

const (
	streamBacklog      = 50
	streamWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream upgrades to a websocket and tails the raw logcat feed: a backlog of
// recent lines first, then live lines as the hub publishes them.
func Stream(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.Logger.Warn("websocket upgrade failed", logger.Error(err))
			return
		}
		defer utils.Close(conn)

		sub := d.Hub.Subscribe()
		defer d.Hub.Unsubscribe(sub)

		for _, line := range d.RawLines.Last(streamBacklog) {
			if writeLine(conn, line) != nil {
				return
			}
		}

		// Drain the client side only to learn about disconnects.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case line, ok := <-sub:
				if !ok {
					return
				}
				if writeLine(conn, line) != nil {
					return
				}
			}
		}
	}
}

func writeLine(conn *websocket.Conn, line string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(line))
}

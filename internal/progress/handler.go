package progress

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the admin surface has no cross-origin story; accept all origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades the request and starts the connection pumps. The
// connection-established event is queued by the subscription itself.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("progress channel: upgrade failed", "error", err)
			return
		}

		client := NewClient(conn, hub)
		go client.WritePump()
		go client.ReadPump()
	}
}

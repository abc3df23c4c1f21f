package progress

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const ( // ping pong (2-way heartbeat) to keep the connection alive
	WriteWait      = 10 * time.Second    // max time to write a message to the peer
	PongWait       = 60 * time.Second    // no pong inside this window means no connection
	PingPeriod     = (PongWait * 9) / 10 // ping before the pong window expires
	MaxMessageSize = 512                 // maximum inbound message size
)

// Client couples one WebSocket connection to a hub subscriber.
type Client struct {
	conn       *websocket.Conn
	hub        *Hub
	subscriber *Subscriber
}

func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		conn:       conn,
		hub:        hub,
		subscriber: hub.Subscribe(),
	}
}

// ReadPump consumes inbound subscriber commands until the connection dies.
// Runs in its own goroutine, one per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unsubscribe(c.subscriber)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("progress channel: unexpected close", "error", err)
			}
			break
		}

		command, err := CommandFromJSON(data)
		if err != nil {
			slog.Warn("progress channel: invalid command", "error", err)
			continue
		}

		switch command.Action {
		case ActionSubscribe:
			c.subscriber.SetFilter(command.DownloadID)
			slog.Debug("progress subscriber filtered", "download_id", command.DownloadID)
		case ActionPing:
			c.subscriber.Reply(Event{Type: TypePong})
		default:
			slog.Warn("progress channel: unknown action", "action", command.Action)
		}
	}
}

// WritePump forwards hub events to the peer and keeps the heartbeat going.
// Runs in its own goroutine, one per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.subscriber.Events():
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				// subscriber dropped by the hub
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := event.ToJSON()
			if err != nil {
				slog.Error("progress channel: marshal failed", "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("progress channel: write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

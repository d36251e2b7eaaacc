package ws

import (
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
)

// writeWait bounds how long a slow reader can stall an event write.
const writeWait = 10 * time.Second

// Client adapts a websocket connection to the hub's Subscriber
// interface. Rebuild events are written as text frames, one JSON
// document per frame.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send writes one event frame. A write error closes the connection and
// is reported to the hub so the stream gets dropped.
func (c *Client) Send(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("event stream write failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close ends the stream cleanly. The close frame tells well-behaved
// clients the job is over, as opposed to the server going away.
func (c *Client) Close() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

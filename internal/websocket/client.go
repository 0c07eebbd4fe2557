package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// Frame is one server-to-client message. Session events carry their event
// type; command replies are "ack" or "error" and echo the request id.
type Frame struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload any         `json:"payload,omitempty"`
	Error   *FrameError `json:"error,omitempty"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	FrameTypeAck   = "ack"
	FrameTypeError = "error"
)

// Client is one WebSocket connection.
type Client struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *EventLogger
}

func NewClient(conn *websocket.Conn, userID string, log *EventLogger) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Send queues a frame without blocking. Frames are dropped when the
// connection is closed or its buffer is full.
func (c *Client) Send(f Frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		c.log.Error("encode frame", c.UserID, c.ID, err, zap.String("frame", f.Type))
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		c.log.Warn("send buffer full", c.UserID, c.ID, zap.String("frame", f.Type))
		return false
	}
}

// ReadLoop passes every inbound frame to handle until the connection fails
// or is closed.
func (c *Client) ReadLoop(handle func(data []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Error("unexpected close", c.UserID, c.ID, err)
			}
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(data)
	}
}

// WriteLoop drains the send buffer and pings the peer until ctx ends or the
// client is closed.
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close shuts the connection. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

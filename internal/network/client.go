package network

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/zpvip/internal/platform/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from an observer.
	maxMessageSize = 512
	// Maximum message size allowed from the host (full snapshots).
	maxHostMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards and the host run on other origins
	},
}

// Client is one websocket peer. Messages are queued on a bounded channel;
// a full queue drops the message instead of blocking the sender.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	readLimit int64
	onMessage func(c *Client, message []byte)
	onClose   func(c *Client)

	mu     sync.Mutex
	closed bool

	// rate window, touched by the read pump only
	windowStart time.Time
	windowCount int
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, sendBuffer int, readLimit int64, onMessage func(*Client, []byte), onClose func(*Client)) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		readLimit: readLimit,
		onMessage: onMessage,
		onClose:   onClose,
	}
}

// Send queues a message. It reports false when the queue is full or the
// client is gone.
func (c *Client) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// allow counts one inbound message against a per-second budget.
func (c *Client) allow(limit int, now time.Time) bool {
	if limit <= 0 {
		return true
	}
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	c.windowCount++
	return c.windowCount <= limit
}

// ReadPump pumps messages from the websocket connection to onMessage.
func (c *Client) ReadPump() {
	defer func() {
		if c.onClose != nil {
			c.onClose(c)
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				metrics.Get().RecordWSError()
			}
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		metrics.Get().RecordWSMessage(true)
		if c.onMessage != nil {
			c.onMessage(c, message)
		}
	}
}

// WritePump pumps queued messages to the websocket connection, one frame
// per message.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Close() was called.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				metrics.Get().RecordWSError()
				return
			}
			metrics.Get().RecordWSMessage(false)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

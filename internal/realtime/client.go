package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// SDP offers with many candidates run to tens of KB.
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// State is the connection lifecycle. Transitions only go forward.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one WebSocket connection. The handler goroutine reads; a
// dedicated goroutine runs writePump.
type Client struct {
	conn     *websocket.Conn
	userID   string
	username string
	log      *slog.Logger

	send  chan []byte
	quit  chan struct{}
	done  chan struct{}
	state atomic.Int32

	closeOnce sync.Once
	closeCode int
	closeText string
}

func newClient(conn *websocket.Conn, userID string, log *slog.Logger) *Client {
	return &Client{
		conn:   conn,
		userID: userID,
		log:    log,
		send:   make(chan []byte, sendBuffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *Client) UserID() string { return c.userID }

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) { c.state.Store(int32(s)) }

// enqueue never blocks. It reports false when the client is closing or its
// buffer is full.
func (c *Client) enqueue(msg []byte) bool {
	if c.State() == StateClosed {
		return false
	}
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn("send buffer full, dropping frame")
		return false
	}
}

func (c *Client) sendJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error("marshal outbound event", "err", err)
		return false
	}
	return c.enqueue(b)
}

// close asks writePump to flush what is queued, send a close frame with code
// and hang up. Safe to call more than once.
func (c *Client) close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode, c.closeText = code, text
		c.setState(StateClosed)
		close(c.quit)
	})
}

// wait blocks until writePump has returned, bounded by the write deadline.
func (c *Client) wait() {
	select {
	case <-c.done:
	case <-time.After(2 * writeWait):
		c.log.Warn("write pump did not stop in time")
		_ = c.conn.Close()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug("websocket ping failed", "err", err)
				return
			}
		case <-c.quit:
			c.flush()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeText))
			return
		}
	}
}

func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// readLoop hands every text frame to handle until the connection fails.
func (c *Client) readLoop(handle func(msg []byte)) error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, msg, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		handle(msg)
	}
}

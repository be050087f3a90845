package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cheatlab/cheatd/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// Connection wraps one client websocket. Outbound messages go through a
// buffered channel so the game loop never blocks on a slow client; a client
// that cannot keep up gets closed.
type Connection struct {
	conn   *websocket.Conn
	send   chan any
	orch   *Orchestrator
	logger *log.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded websocket.
func NewConnection(conn *websocket.Conn, orch *Orchestrator, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:   conn,
		send:   make(chan any, 256),
		orch:   orch,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close tears the connection down. Safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		_ = c.conn.Close()
	})
}

// Alive reports whether the connection is still open.
func (c *Connection) Alive() bool {
	return c.ctx.Err() == nil
}

// Send queues a message for the client. Best-effort: a full buffer closes
// the connection rather than stalling the caller.
func (c *Connection) Send(v any) {
	defer func() {
		if r := recover(); r != nil {
			// Send channel closed concurrently; expected during shutdown.
			c.logger.Debug("send on closed connection", "recovered", r)
		}
	}()

	select {
	case c.send <- v:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("send buffer full, closing connection")
		c.Close()
	}
}

// readPump decodes client messages and hands them to the orchestrator.
func (c *Connection) readPump() {
	defer func() {
		c.Close()
		c.orch.Disconnect(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "err", err)
			}
			return
		}

		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			c.logger.Warn("undecodable client message", "err", err)
			c.Send(protocol.NewError(err.Error()))
			continue
		}
		c.orch.HandleMessage(c, msg)
	}
}

// writePump flushes queued messages and keeps the connection pinged.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Error("failed to write message", "err", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

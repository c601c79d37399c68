package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

const writeWait = 5 * time.Second

// wsConn owns the socket writes: everything queued through Send is written
// by a single writePump goroutine.
type wsConn struct {
	id   string
	conn *websocket.Conn

	send   chan domain.Event
	closed chan struct{}
	once   sync.Once
}

func newWsConn(id string, c *websocket.Conn, buffer int) *wsConn {
	return &wsConn{
		id:     id,
		conn:   c,
		send:   make(chan domain.Event, buffer),
		closed: make(chan struct{}),
	}
}

// Send queues ev. A connection that cannot keep up is closed instead of
// stalling the broadcaster.
func (c *wsConn) Send(ev domain.Event) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		slog.Warn("ws slow consumer, closing", "conn", c.id, "type", ev.Type)
		_ = c.Close()
		return errSlowConsumer
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) writePump(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				slog.Debug("ws write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("ws ping failed", "conn", c.id, "err", err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

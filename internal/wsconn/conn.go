// Package wsconn adapts gorilla/websocket connections into the relay
// package's narrow Socket interface: a buffered, non-blocking send queue
// drained by a dedicated writer goroutine, and a read loop that forwards
// raw frames into an Event.
package wsconn

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lumacast/relay/internal/relay"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// ErrSendBufferFull is returned by Send when the writer goroutine can't
// keep up and the socket should be treated as dead.
var ErrSendBufferFull = errors.New("wsconn: send buffer full")

// ErrClosed is returned by Send after the connection's read loop has
// ended.
var ErrClosed = errors.New("wsconn: connection closed")

// Dispatcher is the subset of *relay.Event's surface a connection needs.
type Dispatcher interface {
	Accept(s relay.Socket)
	Dispatch(s relay.Socket, raw []byte)
	Disconnect(s relay.Socket)
}

// Conn is one upgraded WebSocket connection bound to a single event. It
// satisfies relay.Socket.
type Conn struct {
	id    string
	ws    *websocket.Conn
	out   chan []byte
	done  chan struct{}
	event Dispatcher
	log   *slog.Logger
}

func newConn(id string, ws *websocket.Conn, event Dispatcher, log *slog.Logger) *Conn {
	c := &Conn{
		id:    id,
		ws:    ws,
		out:   make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		event: event,
		log:   log,
	}
	go c.writeLoop()
	return c
}

func (c *Conn) ID() string { return c.id }

// Send marshals frame to JSON and enqueues it for the writer goroutine. It
// never blocks: a closed connection or a full buffer is reported as an
// error immediately so the caller can drop the connection. The event actor
// may still hold a reference to this socket after the read loop has ended
// (its Disconnect is delivered asynchronously), so Send must stay safe to
// call at any point in the connection's lifetime.
func (c *Conn) Send(frame any) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- raw:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close closes the underlying connection with a WebSocket close frame.
func (c *Conn) Close(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline)
	c.ws.Close()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case raw := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.log.Debug("wsconn: write failed, closing", "conn", c.id, "error", err)
				c.ws.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop runs on the goroutine that called Serve and blocks until the
// connection closes or errors.
func (c *Conn) readLoop() {
	defer func() {
		c.event.Disconnect(c)
		close(c.done)
		c.ws.Close()
	}()

	c.event.Accept(c)

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Debug("wsconn: read error", "conn", c.id, "error", err)
			}
			return
		}
		c.event.Dispatch(c, payload)
	}
}

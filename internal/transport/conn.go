package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-rooms/internal/obslog"
	"github.com/park285/chess-rooms/pkg/roomdto"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pingTimeout  = 3 * time.Second
	readLimit    = 64 << 10
)

// client is one accepted WebSocket. Outbound events go through send so a slow
// reader never blocks a broadcast.
type client struct {
	id   string
	conn *websocket.Conn
	send chan any

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newClient(id string, conn *websocket.Conn) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan any, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// enqueue never blocks. A client whose buffer is full is disconnected.
func (c *client) enqueue(v any) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	select {
	case c.send <- v:
	default:
		obslog.L().Warn("ws_send_overflow", zap.String("connection_id", c.id))
		c.shutdown("send buffer full")
	}
}

// shutdown returns immediately; the close handshake finishes in the background.
func (c *client) shutdown(reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		go func() { _ = c.conn.Close(websocket.StatusGoingAway, reason) }()
	})
}

func (c *client) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case v := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(ctx, c.conn, v)
			cancel()
			if err != nil {
				obslog.L().Debug("ws_write_failed", zap.String("connection_id", c.id), zap.Error(err))
				c.shutdown("write failure")
				return
			}
		}
	}
}

func (c *client) pingLoop() {
	defer c.wg.Done()
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.ctx, pingTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					c.shutdown("ping failure")
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// ServeWS upgrades the request and runs the connection until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.stop:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	conn.SetReadLimit(readLimit)

	c := newClient(h.newID(), conn)
	h.register(c)
	c.wg.Add(2)
	go c.writeLoop()
	go c.pingLoop()

	c.enqueue(roomdto.Welcome{Type: roomdto.EventWelcome, ConnectionID: c.id})
	h.listen(c)

	// Unregister first so a match made concurrently cannot subscribe this connection.
	h.unregister(c.id)
	h.disconnect(c.id)
	c.shutdown("bye")
	c.wg.Wait()
}

// listen decodes frames itself instead of using wsjson.Read, which closes the
// connection on the first undecodable frame.
func (h *Hub) listen(c *client) {
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				obslog.L().Debug("ws_read_failed", zap.String("connection_id", c.id), zap.Error(err))
			}
			return
		}
		var in roomdto.Inbound
		if typ != websocket.MessageText || json.Unmarshal(data, &in) != nil {
			c.enqueue(errorEvent(codeBadRequest, "malformed event"))
			continue
		}
		h.dispatch(c.id, in)
	}
}

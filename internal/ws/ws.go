// Package ws serves the websocket endpoint viewers use to receive deltas.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"live-service/internal/bus"
	"live-service/internal/page"
	"live-service/internal/shared/httpx"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
	maxInbound = 512
)

var errClosed = errors.New("connection closed")

type Handler struct {
	pages    *page.Registry
	bus      bus.Bus
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(pages *page.Registry, b bus.Bus, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pages: pages,
		bus:   b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger,
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.Handle("GET /ws/channel/{channel_id}/{$}", httpx.Wrap(h.Serve))
}

// Serve upgrades the request and streams the channel's deltas until either
// side closes.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) error {
	channelID := r.PathValue("channel_id")
	if _, err := h.pages.Get(channelID); err != nil {
		if errors.Is(err, page.ErrPageNotFound) {
			return httpx.NotFound(err)
		}
		return err
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the client
		h.log.Debug("websocket upgrade failed", "channel_id", channelID, "error", err)
		return nil
	}
	c := newConn(wsConn)
	if err := h.bus.Subscribe(r.Context(), channelID, c); err != nil {
		h.log.Error("subscribe failed", "channel_id", channelID, "error", err)
		_ = c.Close()
		_ = wsConn.Close()
		return nil
	}
	h.log.Debug("viewer connected", "channel_id", channelID)

	go c.writeLoop()
	c.readLoop()

	_ = c.Close()
	if err := h.bus.Unsubscribe(context.Background(), channelID, c); err != nil {
		h.log.Error("unsubscribe failed", "channel_id", channelID, "error", err)
	}
	h.log.Debug("viewer disconnected", "channel_id", channelID)
	return nil
}

// conn adapts a websocket to bus.Conn. Sends are queued for a single writer
// goroutine; a full queue marks the viewer as too slow.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
}

func (c *conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return bus.ErrSlowConsumer
	}
}

func (c *conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *conn) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ping.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// readLoop drains inbound frames so control messages are processed, and
// returns when the peer goes away.
func (c *conn) readLoop() {
	c.ws.SetReadLimit(maxInbound)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

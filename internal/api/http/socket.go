package httpapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/i474232898/air-quality-map/internal/mapview"
	"github.com/i474232898/air-quality-map/internal/metrics"
	"github.com/i474232898/air-quality-map/internal/widget"
)

// viewMessage is the first message on a map socket.
type viewMessage struct {
	Type string          `json:"type"`
	View mapview.Options `json:"view"`
}

func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// writeWait bounds every write so a stalled peer cannot hold up the widget.
const writeWait = 10 * time.Second

// mapSocket mounts one widget per connection and streams its events.
// The widget is unmounted when the connection closes or stops answering pings.
func mapSocket(newWidget WidgetFactory, pingInterval time.Duration) func(*websocket.Conn) {
	pongWait := 2 * pingInterval

	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		slog.Debug("map socket connected", "remote", remoteAddr)

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			mu.Lock()
			defer mu.Unlock()
			c.SetWriteDeadline(time.Now().Add(writeWait))
			return c.WriteJSON(v)
		}

		w := newWidget(widget.WithListener(func(e widget.Event) {
			if err := writeJSON(e); err != nil {
				slog.Debug("map socket write failed", "remote", remoteAddr, "event", e.Type, "error", err)
			}
		}))

		if err := writeJSON(viewMessage{Type: "view", View: w.Config().View}); err != nil {
			slog.Debug("map socket write failed", "remote", remoteAddr, "event", "view", "error", err)
			return
		}
		if err := w.Mount(context.Background()); err != nil {
			slog.Warn("map socket mount failed", "remote", remoteAddr, "error", err)
			return
		}
		defer w.Unmount()

		c.SetReadDeadline(time.Now().Add(pongWait))
		c.SetPongHandler(func(string) error {
			return c.SetReadDeadline(time.Now().Add(pongWait))
		})

		// Keep-alive ping. A failed ping closes the connection, which ends the read loop.
		done := make(chan struct{})
		stopped := make(chan struct{})
		defer func() {
			close(done)
			<-stopped
		}()
		go func() {
			defer close(stopped)
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
					mu.Unlock()
					if err != nil {
						slog.Debug("map socket ping failed", "remote", remoteAddr, "error", err)
						c.Close()
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Client messages carry nothing; read until the peer goes away.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		slog.Debug("map socket disconnected", "remote", remoteAddr)
	}
}

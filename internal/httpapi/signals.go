package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/corehost/platform/internal/eventbus"
	"github.com/corehost/platform/internal/logger"
)

var signalsLog = logger.ForComponent("signals")

// signalsHub fans out broadcast-mode event bus messages to every
// connected /api/signals/ws client, the websocket counterpart of the
// event bus's broadcast delivery mode (spec.md §4.1.2): every browser
// tab sees every signal, the same as every instance sees every
// broadcast event.
//
// Grounded on the teacher's websocket Hub (internal/websocket/hub.go):
// same register/unregister/broadcast channel triad, trimmed to the one
// responsibility this core needs - the teacher's per-client
// subscription filtering is a UI concern plugins layer on top of the
// raw signal, not something the core arbitrates.
type signalsHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newSignalsHub() *signalsHub {
	return &signalsHub{clients: map[*websocket.Conn]chan []byte{}}
}

func (h *signalsHub) add(conn *websocket.Conn) chan []byte {
	send := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	return send
}

func (h *signalsHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		close(send)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *signalsHub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, send := range h.clients {
		select {
		case send <- payload:
		default:
			signalsLog.Warn().Msg("signals client too slow, dropping message")
		}
	}
}

var signalsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterSignalBridge subscribes the hub to the event bus's
// broadcast-mode "platform.signals" subject so any plugin can push a
// realtime signal to every connected browser by emitting on it.
func RegisterSignalBridge(ctx context.Context, bus *eventbus.EventBus, router *gin.Engine) error {
	hub := newSignalsHub()
	signalsSubject := eventbus.Subject("platform", "signals")

	if err := bus.Subscribe(ctx, "platform", signalsSubject, eventbus.ModeBroadcast, "", func(_ context.Context, payload []byte) error {
		hub.broadcast(payload)
		return nil
	}); err != nil {
		return err
	}

	router.GET("/api/signals/ws", func(c *gin.Context) {
		conn, err := signalsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			signalsLog.Warn().Err(err).Msg("signals websocket upgrade failed")
			return
		}
		defer conn.Close()

		send := hub.add(conn)
		defer hub.remove(conn)

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.remove(conn)
					return
				}
			}
		}()

		for payload := range send {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	})

	signalsLog.Info().Str("subject", signalsSubject).Msg("signals websocket bridge ready")
	return nil
}

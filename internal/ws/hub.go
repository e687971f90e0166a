package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aqua-x402/credit-engine/pkg/eventbus"
	"github.com/aqua-x402/credit-engine/pkg/model"
)

// Hub fans engine events out to websocket subscribers as canonical
// envelopes. It runs its own net/http listener because the gorilla
// upgrader needs a hijackable connection, which Fiber's fasthttp does not
// expose. Slow subscribers are dropped rather than allowed to stall the
// broadcast loop.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a websocket fan-out hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		clients:   make(map[*client]struct{}),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}
}

// Attach subscribes the hub to every domain event type on the bus.
func (h *Hub) Attach(bus *eventbus.EventBus) {
	for _, proto := range model.EventPrototypes() {
		bus.Subscribe(proto, func(event interface{}) {
			evt, ok := event.(model.Event)
			if !ok {
				return
			}
			env, err := model.NewEnvelope(evt)
			if err != nil {
				h.logger.Error("ws.envelope_failed", zap.String("event_type", evt.EventType()), zap.Error(err))
				return
			}
			data, err := json.Marshal(env)
			if err != nil {
				return
			}
			select {
			case h.broadcast <- data:
			case <-h.done:
			default:
				h.logger.Warn("ws.broadcast_backlog_dropped", zap.String("event_type", evt.EventType()))
			}
		})
	}
}

// Run pumps broadcast messages to all connected clients until context
// cancellation.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				c.send(data)
			}
			h.mu.RUnlock()
		case <-ctx.Done():
			h.shutdown()
			return
		case <-h.done:
			return
		}
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws.upgrade_failed", zap.Error(err))
		return
	}

	c := newClient(h, conn)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws.client_connected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int("clients", count),
	)

	go c.writeLoop()
	go c.readLoop()
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ListenAndServe runs the hub's HTTP listener until the context ends.
func (h *Hub) ListenAndServe(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/ws/events", h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	h.logger.Info("ws.listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

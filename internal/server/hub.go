package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionHandler receives the lifecycle and inbound frames of every
// connection the Hub manages. Gateway is the production implementation.
type SessionHandler interface {
	Connect(c *Client)
	HandleFrame(c *Client, raw []byte)
	Disconnect(c *Client)
}

// Hub owns every live websocket connection, registered or not. It starts the
// read/write pumps of new clients, runs the disconnect path when a client
// goes away and closes everything on shutdown.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	handler    SessionHandler
	cfg        Config
	log        zerolog.Logger
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub that reports connection events to handler.
func NewHub(cfg Config, handler SessionHandler, logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		handler:    handler,
		cfg:        cfg.sanitized(),
		log:        logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a new connection to the hub. After shutdown the
// connection is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.close()
	}
}

// Unregister runs the disconnect path for c. It is safe to call more than
// once and after the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
		h.release(c)
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run is the hub's event loop. It returns once Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case c := <-h.register:
			if c == nil {
				h.log.Warn().Msg("received nil client registration; skipping")
				continue
			}
			h.admit(c)

		case c := <-h.unregister:
			h.release(c)
		}
	}
}

func (h *Hub) admit(c *Client) {
	h.mutex.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()

	c.log.Debug().Int("connections", count).Msg("client connected")

	if h.handler != nil {
		h.handler.Connect(c)
	}

	if c.conn == nil {
		return
	}

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// release removes c from the hub, closes the client's outbound buffer so its
// write pump exits and then tells the handler. Closing first means a
// registration racing with the disconnect sees a closed client.
func (h *Hub) release(c *Client) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mutex.Unlock()

	if !ok {
		return
	}

	c.close()
	if h.handler != nil {
		h.handler.Disconnect(c)
	}
	c.log.Debug().Int("connections", count).Msg("client disconnected")
}

func (h *Hub) shutdownClients() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
				c.log.Debug().Err(err).Msg("close connection during shutdown")
			}
		}
		h.release(c)
	}

	h.log.Info().Int("connections", len(clients)).Msg("closed client connections")
}

// Shutdown stops Run, closes every connection and waits for the pump
// goroutines, giving up after timeout. Run must have been started.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timed out; some connections may still be draining")
		return context.DeadlineExceeded
	}
}

package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one websocket connection. It is the connection handle the
// Registry maps usernames to. Outbound frames go through a bounded buffer
// drained by the write pump; a full buffer drops the frame.
type Client struct {
	id          string
	conn        *websocket.Conn
	hub         *Hub
	addr        string
	log         zerolog.Logger
	rateLimiter *rateLimiter
	rateLimit   RateLimitConfig

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	username string
}

// NewClient creates a Client for conn. conn may be nil for a client that is
// only used as a delivery target.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:          id,
		conn:        conn,
		hub:         hub,
		addr:        addr,
		log:         hub.log.With().Str("conn_id", id).Str("remote_addr", addr).Logger(),
		rateLimiter: newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:   cfg.RateLimit,
		send:        make(chan []byte, cfg.SendBufferSize),
	}
}

// ID returns the unique id of the connection.
func (c *Client) ID() string {
	return c.id
}

// Addr returns the remote address the connection came from.
func (c *Client) Addr() string {
	return c.addr
}

// GetSendChan returns the client's outbound frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Username returns the identity the connection registered with, or "".
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *Client) bind(username string) {
	c.mu.Lock()
	c.username = username
	c.mu.Unlock()
}

// trySend queues frame without blocking. It reports false when the buffer is
// full or the client has been closed.
func (c *Client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// close stops further sends and lets the write pump finish. It reports
// whether this call did the closing.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug().Err(err).Msg("set initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError logs why the read loop stopped.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.hub.cfg.MaxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn().
			Int("burst", c.rateLimit.Burst).
			Dur("interval", c.rateLimit.RefillInterval).
			Msg("rate limit exceeded; discarding frame")
		return false
	}
	return true
}

// dispatch hands one frame to the session handler. A panic while handling a
// frame only costs that frame.
func (c *Client) dispatch(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("recovered while handling frame")
		}
	}()

	if c.hub.handler != nil {
		c.hub.handler.HandleFrame(c, raw)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("close connection in read pump")
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.dispatch(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("close connection in write pump")
		}
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case frame, ok := <-c.send:
		if !ok {
			c.writeCloseMessage()
			return false
		}
		return c.writeFrames(frame)
	case <-ticker.C:
		return c.writePing()
	}
}

func (c *Client) writeCloseMessage() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("write close message")
	}
}

// writeFrames writes frame and whatever else is already queued. Each frame
// is its own websocket text message so clients can decode them one by one.
func (c *Client) writeFrames(frame []byte) bool {
	if !c.writeFrame(frame) {
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			c.writeCloseMessage()
			return false
		}
		if !c.writeFrame(queued) {
			return false
		}
	}
	return true
}

func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug().Err(err).Msg("set write deadline")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("write frame")
		}
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug().Err(err).Msg("write ping")
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe")
}

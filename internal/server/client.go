// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/geochat/internal/logger"
	"github.com/Tyrowin/geochat/internal/session"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
)

// Client represents a WebSocket connection in the gateway. It implements
// session.Conn so the registry can address it directly.
type Client struct {
	conn     *websocket.Conn
	send     chan session.Event
	hub      *Hub
	registry *session.Registry
	addr     string
	log      *slog.Logger

	maxMessageSize int64
	authTimeout    time.Duration
	limiter        *eventLimiter

	quit      chan struct{}
	closeOnce sync.Once

	// sessionID is owned by readPump.
	sessionID string
}

// NewClient creates a new Client instance with the provided WebSocket
// connection. The client's send channel is buffered to handle message
// queuing.
func NewClient(conn *websocket.Conn, hub *Hub, registry *session.Registry, cfg *Config, addr string, log *slog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan session.Event, sendBufferSize),
		hub:            hub,
		registry:       registry,
		addr:           addr,
		log:            logger.OrDefault(log).With(logger.Remote(addr)),
		maxMessageSize: cfg.MaxMessageSize,
		authTimeout:    cfg.AuthTimeout,
		limiter:        newEventLimiter(cfg, time.Now),
		quit:           make(chan struct{}),
	}
}

// Send queues ev without blocking. A full buffer means the peer is not
// keeping up; the client is closed and its session ends as a disconnect.
func (c *Client) Send(ev session.Event) bool {
	select {
	case <-c.quit:
		return false
	default:
	}

	select {
	case c.send <- ev:
		return true
	default:
		c.log.Warn("send buffer full; closing slow client", logger.Event(string(ev.Type)))
		c.Close()
		return false
	}
}

// Close asks writePump to flush queued events and end the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
}

// setupReadConnection arms the authentication deadline. The keepalive
// deadline replaces it once the client is bound to a session.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.authTimeout)); err != nil {
		c.log.Warn("error setting auth deadline", logger.Error(err))
	}
}

func (c *Client) startKeepalive() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting read deadline", logger.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", logger.Error(err))
		}
		return nil
	})
}

// handleReadError logs the read error at a level matching its cause.
func (c *Client) handleReadError(err error) {
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded maximum size", slog.Int64("limit", c.maxMessageSize))
	case c.sessionID == "" && errors.As(err, &netErr) && netErr.Timeout():
		c.log.Info("client did not authenticate in time", slog.Duration("timeout", c.authTimeout))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client disconnected", logger.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("client connection closed", logger.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("unexpected websocket close", logger.Error(err))
	default:
		c.log.Warn("websocket read error", logger.Error(err))
	}
}

func (c *Client) readPump() {
	defer func() {
		if c.sessionID != "" {
			c.registry.Unbind(c.sessionID, c)
		}
		c.hub.unregisterClient(c)
		c.Close()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if !c.processMessage(raw) {
			return
		}
	}
}

// processMessage decodes and dispatches one inbound frame. It returns false
// when the connection should be closed.
func (c *Client) processMessage(raw []byte) (keep bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered from panic handling message", slog.Any("panic", r))
			keep = false
		}
	}()

	env, err := decodeEnvelope(raw)
	if err != nil {
		c.log.Debug("invalid frame", logger.Error(err))
		return true
	}

	if env.Type == inboundAuth {
		return c.handleAuth(env)
	}
	if c.sessionID == "" {
		c.log.Debug("event before auth discarded", logger.Event(env.Type))
		return true
	}
	if !c.limiter.allow(env.Type) {
		c.log.Debug("rate limit exceeded; discarding event", logger.Event(env.Type), logger.SessionID(c.sessionID))
		return true
	}

	switch env.Type {
	case inboundFix:
		c.handleFix(env)
	case inboundMessage:
		c.handleMessage(env)
	case inboundDirect:
		c.handleDirect(env)
	case inboundLeave:
		c.registry.Unbind(c.sessionID, c)
		c.log.Info("client left", logger.SessionID(c.sessionID))
		c.sessionID = ""
		return false
	default:
		c.log.Debug("unknown event type", logger.Event(env.Type))
	}
	return true
}

func (c *Client) handleAuth(env envelope) bool {
	if c.sessionID != "" {
		c.log.Debug("repeated auth ignored", logger.SessionID(c.sessionID))
		return true
	}

	var p authPayload
	if err := decodeData(env, &p); err != nil || p.SessionID == "" {
		c.rejectAuth("missing session id")
		return false
	}

	if _, err := c.registry.Bind(p.SessionID, c); err != nil {
		c.log.Info("auth rejected", logger.SessionID(p.SessionID), logger.Error(err))
		c.rejectAuth("Invalid session")
		return false
	}

	c.sessionID = p.SessionID
	c.startKeepalive()
	return true
}

func (c *Client) rejectAuth(reason string) {
	c.Send(session.Event{Type: session.EventAuthError, Data: session.AuthFailed{Reason: reason}})
}

func (c *Client) handleFix(env envelope) {
	var p fixPayload
	if err := decodeData(env, &p); err != nil {
		c.log.Debug("invalid fix payload", logger.Error(err))
		return
	}
	fix, err := p.fix()
	if err != nil {
		c.log.Debug("invalid fix", logger.Error(err))
		return
	}
	if _, err := c.registry.ApplyFix(c.sessionID, fix); err != nil {
		c.log.Debug("fix not applied", logger.SessionID(c.sessionID), logger.Error(err))
	}
}

func (c *Client) handleMessage(env envelope) {
	var p textPayload
	if err := decodeData(env, &p); err != nil {
		c.log.Debug("invalid message payload", logger.Error(err))
		return
	}
	if err := c.registry.SendChat(c.sessionID, p.Text); err != nil {
		c.log.Debug("message not sent", logger.SessionID(c.sessionID), logger.Error(err))
	}
}

func (c *Client) handleDirect(env envelope) {
	var p directPayload
	if err := decodeData(env, &p); err != nil {
		c.log.Debug("invalid direct message payload", logger.Error(err))
		return
	}
	if err := c.registry.SendDirect(c.sessionID, p.To, p.Text); err != nil {
		c.log.Debug("direct message not sent", logger.SessionID(c.sessionID), slog.String("to", p.To), logger.Error(err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case ev := <-c.send:
		return c.writeEvent(ev)
	case <-ticker.C:
		return c.handlePing()
	case <-c.quit:
		c.flush()
		c.writeCloseMessage()
		return false
	}
}

// flush writes whatever was queued before Close.
func (c *Client) flush() {
	for {
		select {
		case ev := <-c.send:
			if !c.writeEvent(ev) {
				return
			}
		default:
			return
		}
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("error closing connection", logger.Error(err))
	}
}

func (c *Client) writeCloseMessage() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("error writing close message", logger.Error(err))
	}
}

func (c *Client) writeEvent(ev session.Event) bool {
	payload, err := encodeEvent(ev)
	if err != nil {
		// An unencodable event is a programming error; drop it and keep going.
		c.log.Error("error encoding event", logger.Event(string(ev.Type)), logger.Error(err))
		return true
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("error setting write deadline", logger.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing event", logger.Event(string(ev.Type)), logger.Error(err))
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("error setting write deadline for ping", logger.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("error writing ping", logger.Error(err))
		return false
	}
	return true
}

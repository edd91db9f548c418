// Package realtime maintains the client's websocket connection to the
// Swappio socket service. Inbound frames are published on the bus under
// the rt. namespace; outbound frames go through Emit. Connection
// lifecycle (reconnect policy) is owned by the app layer, not here.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nmanikumar5/swappio/internal/auth"
	"github.com/nmanikumar5/swappio/internal/bus"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 64 * 1024
)

// ErrNotConnected is returned by Emit when the socket is down. The caller
// decides what a failed emit means; the messenger deliberately leaves the
// optimistic message in place.
var ErrNotConnected = errors.New("realtime channel not connected")

// Frame is the wire envelope for socket events in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Channel is a single websocket connection to the realtime service.
type Channel struct {
	url     string
	session *auth.Session
	bus     *bus.Bus
	logger  *zap.Logger

	mu        sync.Mutex // guards conn writes and swap
	conn      *websocket.Conn
	connected atomic.Bool
	cancel    context.CancelFunc
}

// NewChannel creates a channel for the given socket URL.
func NewChannel(socketURL string, session *auth.Session, b *bus.Bus, logger *zap.Logger) *Channel {
	return &Channel{
		url:     socketURL,
		session: session,
		bus:     b,
		logger:  logger,
	}
}

// Connect dials the socket service, authenticating with the current
// access token, and starts the read and ping loops.
func (c *Channel) Connect(ctx context.Context) error {
	header := http.Header{}
	if tok := c.session.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	loopCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	c.connected.Store(true)
	c.logger.Info("realtime connected", zap.String("url", c.url))
	c.bus.Emit("session.socket_connected", nil)

	go c.readLoop(conn)
	go c.pingLoop(loopCtx, conn)
	return nil
}

// Close tears the connection down.
func (c *Channel) Close() {
	c.mu.Lock()
	conn := c.conn
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.conn = nil
	c.mu.Unlock()

	c.connected.Store(false)
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// Connected reports whether the socket is up.
func (c *Channel) Connected() bool {
	return c.connected.Load()
}

// Emit sends an event frame. Returns ErrNotConnected when the socket is
// down; the payload is not queued.
func (c *Channel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(Frame{Event: event, Data: data}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("realtime read error", zap.Error(err))
			}
			c.connected.Store(false)
			c.bus.Emit("session.socket_disconnected", nil)
			return
		}
		if frame.Event == "" {
			continue
		}
		c.bus.Emit("rt."+frame.Event, frame.Data)
	}
}

func (c *Channel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Package gorillaws provides a spawn.Dialer backed by gorilla/websocket.
package gorillaws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/spawnagents/spawn-sdk-go/spawn"

	coder "github.com/coder/websocket"
	"github.com/gorilla/websocket"
)

const closeGrace = time.Second

// Dialer opens transports with gorilla/websocket.
type Dialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
	Header           http.Header
}

// New returns a Dialer using the timeouts and read limit from cfg.
func New(cfg spawn.Config) *Dialer {
	return &Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		ReadLimit:        cfg.ReadLimit,
	}
}

// Dial implements spawn.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (spawn.Transport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &Conn{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

// Conn adapts *websocket.Conn to spawn.Transport.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Read returns the next data frame. Cancelling ctx unblocks it.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return data, err
}

// Write encodes v as JSON and sends it as one text frame.
func (c *Conn) Write(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with code and reason, then closes the socket.
func (c *Conn) Close(code coder.StatusCode, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

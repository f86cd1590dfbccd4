package spawn

import (
	"context"

	"github.com/spawnagents/spawn-sdk-go/spawn/internal"

	"github.com/coder/websocket"
)

// Transport is one open full-duplex message channel.
// Read and Write may be called from different goroutines.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, v any) error
	Close(code websocket.StatusCode, reason string) error
}

// Dialer opens transports. Dial blocks until the transport is open or fails.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) { return f(ctx, url) }

// websocketDialer is the default Dialer, backed by coder/websocket.
type websocketDialer struct {
	opts internal.DialOptions
}

func newWebsocketDialer(cfg Config) websocketDialer {
	return websocketDialer{opts: internal.DialOptions{
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		ReadLimit:        cfg.ReadLimit,
	}}
}

func (d websocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	conn, err := internal.Dial(ctx, url, d.opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

package spawn

import (
	"net/url"
	"time"
)

// Config controls how the client connects to an agent endpoint.
type Config struct {
	URL     string // base endpoint, e.g. ws://localhost:8787/ws
	AgentID string // sent as the agentId query parameter

	// MaxReconnectAttempts caps consecutive automatic attempts. Zero turns
	// automatic reconnection off.
	MaxReconnectAttempts int
	PingInterval         time.Duration
	PongTimeout          time.Duration
	BaseReconnectDelay   time.Duration
	MaxReconnectDelay    time.Duration

	// QueueCapacity bounds the outbound queue. When full the oldest message
	// is dropped. Zero means unbounded.
	QueueCapacity int

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadLimit        int64
}

// DefaultConfig returns sensible defaults.
// URL and AgentID still have to be set.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 10,
		PingInterval:         30 * time.Second,
		PongTimeout:          5 * time.Second,
		BaseReconnectDelay:   1 * time.Second,
		MaxReconnectDelay:    30 * time.Second,
		QueueCapacity:        1024,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReadLimit:            1 << 20,
	}
}

// Validate checks that the required fields are present.
func (c Config) Validate() error {
	if c.URL == "" {
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	if c.AgentID == "" {
		return NewError(ErrorInvalidConfig, "empty agent id")
	}
	if c.MaxReconnectAttempts < 0 {
		return NewError(ErrorInvalidConfig, "negative max reconnect attempts")
	}
	return nil
}

// withDefaults fills zero durations and limits from DefaultConfig.
// MaxReconnectAttempts and QueueCapacity are left alone since zero is
// meaningful for both.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = d.BaseReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	return c
}

// endpoint returns URL with agentId merged into its query.
func (c Config) endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", WrapError(ErrorConnection, "invalid URL", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", NewError(ErrorConnection, "URL needs a scheme and host: "+c.URL)
	}
	q := u.Query()
	q.Set("agentId", c.AgentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

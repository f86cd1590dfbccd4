package spawn

import "github.com/rs/zerolog"

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithDialer replaces the default coder/websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

func componentLogger(l zerolog.Logger, agentID string) zerolog.Logger {
	return l.With().Str("component", "spawn").Str("agent_id", agentID).Logger()
}

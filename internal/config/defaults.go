package config

import (
	"github.com/spawnagents/spawn-sdk-go/spawn"

	"github.com/spf13/viper"
)

const (
	DefaultWSHost = "localhost:8787"
	DefaultWSPath = "/ws"
)

// SetDefaults registers a default for every key so environment overrides
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := spawn.DefaultConfig()

	// WebSocket endpoint
	v.SetDefault("ws.url", "")
	v.SetDefault("ws.host", DefaultWSHost)
	v.SetDefault("ws.path", DefaultWSPath)
	v.SetDefault("ws.secure", false)

	// REST API
	v.SetDefault("api.url", "http://localhost:8787")
	v.SetDefault("api.token", "")

	// Connection manager
	v.SetDefault("client.max_reconnect_attempts", d.MaxReconnectAttempts)
	v.SetDefault("client.ping_interval", d.PingInterval)
	v.SetDefault("client.pong_timeout", d.PongTimeout)
	v.SetDefault("client.base_reconnect_delay", d.BaseReconnectDelay)
	v.SetDefault("client.max_reconnect_delay", d.MaxReconnectDelay)
	v.SetDefault("client.queue_capacity", d.QueueCapacity)
	v.SetDefault("client.handshake_timeout", d.HandshakeTimeout)
	v.SetDefault("client.write_timeout", d.WriteTimeout)
	v.SetDefault("client.read_limit", d.ReadLimit)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

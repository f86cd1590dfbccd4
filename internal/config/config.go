// Package config loads spawnctl settings from a YAML file and SPAWN_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spawnagents/spawn-sdk-go/internal/logger"
	"github.com/spawnagents/spawn-sdk-go/spawn"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. SPAWN_WS_HOST.
const EnvPrefix = "SPAWN"

// Config is the root of the spawnctl configuration.
type Config struct {
	WS     WSConfig         `mapstructure:"ws" yaml:"ws"`
	API    APIConfig        `mapstructure:"api" yaml:"api"`
	Client ClientSettings   `mapstructure:"client" yaml:"client"`
	Log    logger.LogConfig `mapstructure:"log" yaml:"log"`
}

// WSConfig locates the chat WebSocket endpoint. URL wins over the other fields.
type WSConfig struct {
	URL    string `mapstructure:"url" yaml:"url,omitempty"`
	Host   string `mapstructure:"host" yaml:"host"`
	Path   string `mapstructure:"path" yaml:"path"`
	Secure bool   `mapstructure:"secure" yaml:"secure"`
}

// APIConfig locates the REST API.
type APIConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// ClientSettings maps onto spawn.Config.
type ClientSettings struct {
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	PongTimeout          time.Duration `mapstructure:"pong_timeout"`
	BaseReconnectDelay   time.Duration `mapstructure:"base_reconnect_delay"`
	MaxReconnectDelay    time.Duration `mapstructure:"max_reconnect_delay"`
	QueueCapacity        int           `mapstructure:"queue_capacity"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	ReadLimit            int64         `mapstructure:"read_limit"`
}

// MarshalYAML writes durations in their human form ("30s").
func (c ClientSettings) MarshalYAML() (any, error) {
	return map[string]any{
		"max_reconnect_attempts": c.MaxReconnectAttempts,
		"ping_interval":          c.PingInterval.String(),
		"pong_timeout":           c.PongTimeout.String(),
		"base_reconnect_delay":   c.BaseReconnectDelay.String(),
		"max_reconnect_delay":    c.MaxReconnectDelay.String(),
		"queue_capacity":         c.QueueCapacity,
		"handshake_timeout":      c.HandshakeTimeout.String(),
		"write_timeout":          c.WriteTimeout.String(),
		"read_limit":             c.ReadLimit,
	}, nil
}

// Load reads path (optional, a missing file is not an error), applies
// SPAWN_* environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expanded, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// WebSocketURL returns the chat endpoint: WS.URL if set, otherwise
// ws[s]://<host><path>.
func (c *Config) WebSocketURL() string {
	if c.WS.URL != "" {
		return c.WS.URL
	}
	scheme := "ws"
	if c.WS.Secure {
		scheme = "wss"
	}
	host := c.WS.Host
	if host == "" {
		host = DefaultWSHost
	}
	path := c.WS.Path
	if path == "" {
		path = DefaultWSPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + host + path
}

// ClientConfig builds the connection settings for agentID.
func (c *Config) ClientConfig(agentID string) spawn.Config {
	return spawn.Config{
		URL:                  c.WebSocketURL(),
		AgentID:              agentID,
		MaxReconnectAttempts: c.Client.MaxReconnectAttempts,
		PingInterval:         c.Client.PingInterval,
		PongTimeout:          c.Client.PongTimeout,
		BaseReconnectDelay:   c.Client.BaseReconnectDelay,
		MaxReconnectDelay:    c.Client.MaxReconnectDelay,
		QueueCapacity:        c.Client.QueueCapacity,
		HandshakeTimeout:     c.Client.HandshakeTimeout,
		WriteTimeout:         c.Client.WriteTimeout,
		ReadLimit:            c.Client.ReadLimit,
	}
}

// SaveTo writes cfg to path as YAML, creating parent directories.
func SaveTo(cfg *Config, path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0600) // may contain an API token
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// DefaultPath is where spawnctl looks for its config file.
func DefaultPath() string {
	return filepath.Join("~", ".spawn", "config.yaml")
}

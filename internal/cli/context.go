package cli

import (
	"github.com/spawnagents/spawn-sdk-go/internal/config"
	"github.com/spawnagents/spawn-sdk-go/spawn/rest"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// CLIContext carries what PersistentPreRunE resolved.
type CLIContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     zerolog.Logger
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log zerolog.Logger) *CLIContext {
	return &CLIContext{
		Config:     cfg,
		ConfigPath: configPath,
		Logger:     log,
	}
}

// GetCLIContext returns the context stored on cmd, or nil for commands that
// skip initialisation.
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	if cmd.Context() == nil {
		return nil
	}
	c, _ := cmd.Context().Value(contextKey{}).(*CLIContext)
	return c
}

// REST returns an API client for the configured base URL.
func (c *CLIContext) REST() *rest.Client {
	client := rest.NewClient(c.Config.API.URL)
	if c.Config.API.Token != "" {
		client.SetToken(c.Config.API.Token)
	}
	return client
}

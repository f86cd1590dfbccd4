// Package cli implements the spawnctl commands.
package cli

import (
	"context"

	"github.com/spawnagents/spawn-sdk-go/internal/config"
	"github.com/spawnagents/spawn-sdk-go/internal/logger"

	"github.com/spf13/cobra"
)

// GlobalFlags are shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

type contextKey struct{}

// NewRootCmd creates the spawnctl root command.
func NewRootCmd() *cobra.Command {
	var flags GlobalFlags

	rootCmd := &cobra.Command{
		Use:   "spawnctl",
		Short: "spawnctl - talk to SPAWN agents",
		Long: `spawnctl chats with SPAWN agents over their WebSocket channel and
queries the SPAWN REST API for agents, heartbeats and skills.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			configPath := flags.ConfigPath
			if configPath == "" {
				configPath = config.DefaultPath()
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logCfg := cfg.Log
			if flags.Verbose {
				logCfg.Level = "debug"
			}
			if flags.Quiet {
				logCfg.Level = "error"
			}
			if err := logger.Init(logCfg); err != nil {
				return err
			}

			cliCtx := NewCLIContext(cfg, configPath, logger.With("spawnctl"))
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path (default ~/.spawn/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "quiet mode")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewConfigCmd())
	rootCmd.AddCommand(NewChatCmd())
	rootCmd.AddCommand(NewAgentsCmd())
	rootCmd.AddCommand(NewAgentCmd())
	rootCmd.AddCommand(NewHeartbeatsCmd())
	rootCmd.AddCommand(NewSkillsCmd())

	return rootCmd
}

package main

import (
	"fmt"
	"log/slog"

	"github.com/litevault/litevault-api/internal/config"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/spf13/cobra"
)

// cli carries state shared by every subcommand.
type cli struct {
	configPath string
	outputJSON bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "litevault",
		Short:         "LiteVault capture-and-archive API",
		Long:          "LiteVault stores captured text, enriches it asynchronously through a durable outbox and serves it over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a config file (default ./config.yaml if present)")
	root.PersistentFlags().BoolVar(&c.outputJSON, "output-json", false, "print command results as JSON")

	root.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newOutboxCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.SetupWithWriter(cfg.Server, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Debug("configuration loaded",
		"database_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider,
		"notify_enabled", cfg.Job.NotifyEnabled)

	c.cfg = cfg
	c.logger = log
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrations(cmd.Context(), func(ctx context.Context, p *goose.Provider) error {
					results, err := p.Up(ctx)
					if err != nil {
						return fmt.Errorf("migrate up: %w", err)
					}
					for _, r := range results {
						c.logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
					}
					return c.print(cmd, map[string]int{"applied": len(results)}, fmt.Sprintf("applied %d migration(s)", len(results)))
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrations(cmd.Context(), func(ctx context.Context, p *goose.Provider) error {
					result, err := p.Down(ctx)
					if err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					return c.print(cmd, map[string]int64{"rolled_back": result.Source.Version},
						fmt.Sprintf("rolled back version %d", result.Source.Version))
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrations(cmd.Context(), func(ctx context.Context, p *goose.Provider) error {
					statuses, err := p.Status(ctx)
					if err != nil {
						return fmt.Errorf("migrate status: %w", err)
					}
					type row struct {
						Version int64  `json:"version"`
						Path    string `json:"path"`
						State   string `json:"state"`
					}
					rows := make([]row, 0, len(statuses))
					text := ""
					for _, s := range statuses {
						rows = append(rows, row{Version: s.Source.Version, Path: s.Source.Path, State: string(s.State)})
						text += fmt.Sprintf("%-6d %-9s %s\n", s.Source.Version, s.State, s.Source.Path)
					}
					return c.print(cmd, rows, text)
				})
			},
		},
	)
	return cmd
}

func (c *cli) withMigrations(ctx context.Context, fn func(context.Context, *goose.Provider) error) error {
	db, err := openDatabase(ctx, c.cfg, c.logger, false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	provider, err := migrationProvider(c.cfg, db)
	if err != nil {
		return err
	}
	return fn(ctx, provider)
}

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newOutboxCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the enrichment job outbox",
	}

	var deadLimit int
	dead := &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(ctx context.Context, app *application) error {
				jobs, err := app.jobs.ListDead(ctx, deadLimit)
				if err != nil {
					return err
				}
				var b strings.Builder
				for _, j := range jobs {
					fmt.Fprintf(&b, "%s subject=%s attempts=%d code=%s message=%q\n",
						j.ID, j.SubjectID, j.AttemptCount, j.LastErrorCode, j.LastErrorMsg)
				}
				if len(jobs) == 0 {
					b.WriteString("no dead jobs")
				}
				return c.print(cmd, jobs, b.String())
			})
		},
	}
	dead.Flags().IntVar(&deadLimit, "limit", 50, "maximum number of jobs to list")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show the number of pending jobs",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd.Context(), func(ctx context.Context, app *application) error {
					pending, err := app.outbox.PendingCount(ctx)
					if err != nil {
						return err
					}
					return c.print(cmd, map[string]int{"pending": pending}, fmt.Sprintf("pending: %d", pending))
				})
			},
		},
		&cobra.Command{
			Use:   "reclaim",
			Short: "Return jobs with expired leases to the queue",
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd.Context(), func(ctx context.Context, app *application) error {
					n, err := app.jobs.ReclaimExpired(ctx)
					if err != nil {
						return err
					}
					return c.print(cmd, map[string]int{"reclaimed": n}, fmt.Sprintf("reclaimed: %d", n))
				})
			},
		},
		dead,
		&cobra.Command{
			Use:   "requeue <job-id>",
			Short: "Reset a dead job so it runs again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid job id %q: %w", args[0], err)
				}
				return c.withApp(cmd.Context(), func(ctx context.Context, app *application) error {
					if err := app.jobs.Requeue(ctx, id); err != nil {
						return fmt.Errorf("requeue %s: %w", id, err)
					}
					job, err := app.jobs.Get(ctx, id)
					if err != nil {
						return err
					}
					app.outbox.Announce(ctx, job)
					return c.print(cmd, job, fmt.Sprintf("requeued %s", id))
				})
			},
		},
	)
	return cmd
}

func (c *cli) withApp(ctx context.Context, fn func(context.Context, *application) error) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	app, err := newApplication(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer app.close()
	return fn(ctx, app)
}

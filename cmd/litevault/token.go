package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(c *cli) *cobra.Command {
	var userID string

	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an access token for a user ID",
		RunE: func(cmd *cobra.Command, args []string) error {
			id := uuid.New()
			if userID != "" {
				parsed, err := uuid.Parse(userID)
				if err != nil {
					return fmt.Errorf("invalid user id %q: %w", userID, err)
				}
				id = parsed
			}
			jwtSvc, err := auth.NewJWTService(c.cfg.Auth)
			if err != nil {
				return fmt.Errorf("failed to initialize JWT service: %w", err)
			}
			token, err := jwtSvc.GenerateToken(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.print(cmd, map[string]string{"user_id": id.String(), "token": token}, token)
		},
	}
	issue.Flags().StringVar(&userID, "user", "", "user ID to embed (default: a new random ID)")

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API access tokens",
	}
	cmd.AddCommand(issue)
	return cmd
}

package cli

import (
	"context"
	"fmt"

	"team-tasks/backend/logging"
	"team-tasks/backend/services"

	"github.com/spf13/cobra"
)

func NewPromoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <email>",
		Short: "Grant the admin role to a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			backend, err := rootOpts.OpenBackend(ctx, rootOpts.Config)
			if err != nil {
				return fmt.Errorf("failed to open backend: %w", err)
			}
			defer func() {
				if err := backend.Close(ctx); err != nil {
					logging.Logger.Errorf("Event ID: BACKEND_CLOSE_FAILED, Description: %v", err)
				}
			}()

			audit := services.NewAuditService(backend.Audit)
			users := services.NewUserService(backend.Store, audit, nil, nil, nil)
			user, err := users.Promote(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) is now an admin\n", user.Name, user.Email)
			return nil
		},
	}
}

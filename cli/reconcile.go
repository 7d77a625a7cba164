package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"team-tasks/backend/logging"
	"team-tasks/backend/services"

	"github.com/spf13/cobra"
)

type ReconcileOptions struct {
	*RootOptions
	Interval time.Duration
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair team membership back-references",
		Long: `Rebuild every team's member list from the users' team references.

Without --interval the command runs once and exits. With it, the repair
repeats until SIGINT or SIGTERM.

Example:
  team-tasks reconcile
  team-tasks reconcile --interval 10m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "repeat every interval until stopped (0 runs once)")

	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions) error {
	if opts.Interval < 0 {
		return fmt.Errorf("--interval must not be negative")
	}
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := opts.OpenBackend(ctx, opts.Config)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), opts.Config.ShutdownTimeout)
		defer cancel()
		if err := backend.Close(closeCtx); err != nil {
			logging.Logger.Errorf("Event ID: BACKEND_CLOSE_FAILED, Description: %v", err)
		}
	}()

	reconciler := services.NewReconciler(backend.Store)
	pass := func() error {
		report, err := reconciler.Reconcile(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reconciled: %d users fixed, %d teams fixed\n", report.UsersFixed, report.TeamsFixed)
		return nil
	}

	if err := pass(); err != nil {
		return err
	}
	if opts.Interval == 0 {
		return nil
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Logger.Info("Event ID: RECONCILE_STOPPED, Description: Reconcile loop stopped")
			return nil
		case <-ticker.C:
			if err := pass(); err != nil {
				logging.Logger.Errorf("Event ID: RECONCILE_FAILED, Description: %v", err)
			}
		}
	}
}

package cli

import (
	"context"
	"fmt"
	"os"

	"team-tasks/backend/config"
	"team-tasks/backend/logging"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the configuration they resolve to.
type RootOptions struct {
	EnvFile  string
	Store    string
	LogLevel string

	Config *config.Config

	// OpenBackend connects the stores named by the configuration. Tests
	// replace it to run commands against an in-process store.
	OpenBackend func(ctx context.Context, cfg *config.Config) (*Backend, error)
}

// flagEnv maps persistent flags to the environment variables they override.
var flagEnv = map[string]string{
	"store":     "STORE_BACKEND",
	"log-level": "LOG_LEVEL",
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{OpenBackend: OpenBackend})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "team-tasks",
		Short:         "Team task manager backend",
		Long:          "Multi-tenant team task manager: teams, task assignment, notifications and audit log.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "optional dotenv file loaded before the environment")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "store backend (mongo|memory), overrides STORE_BACKEND")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewPromoteCommand(opts))

	return cmd
}

func (o *RootOptions) load(cmd *cobra.Command) error {
	for flag, env := range flagEnv {
		f := cmd.Flags().Lookup(flag)
		if f != nil && f.Changed {
			if err := os.Setenv(env, f.Value.String()); err != nil {
				return fmt.Errorf("failed to apply --%s: %w", flag, err)
			}
		}
	}

	cfg, err := config.Load(o.EnvFile)
	if err != nil {
		return err
	}
	if err := logging.InitLogger(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel}); err != nil {
		return err
	}
	o.Config = cfg
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"team-tasks/backend/config"
	"team-tasks/backend/handlers"
	"team-tasks/backend/logging"
	"team-tasks/backend/services"
	"team-tasks/backend/utils"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

type ServeOptions struct {
	*RootOptions
	Port string
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until SIGINT or SIGTERM.

Example:
  team-tasks serve --port 8080
  team-tasks serve --store memory --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "listen port, overrides SERVER_PORT")

	return cmd
}

// NewDeps builds the services over a backend and returns the router wiring.
func NewDeps(cfg *config.Config, b *Backend) handlers.Deps {
	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logging.Logger.Warn("Event ID: EPHEMERAL_JWT_SECRET, Description: JWT_SECRET not set, sessions will not survive a restart")
	}

	hasher := utils.NewPasswordHasher(bcrypt.DefaultCost)
	audit := services.NewAuditService(b.Audit)
	return handlers.Deps{
		Users:         services.NewUserService(b.Store, audit, hasher, utils.NewTokenIssuer(secret, cfg.SessionTTL), b.Denylist),
		Memberships:   services.NewMembershipService(b.Store, audit, hasher),
		Tasks:         services.NewTaskService(b.Store, audit),
		Notifications: services.NewNotificationService(b.Store),
		Audit:         audit,
		SessionTTL:    cfg.SessionTTL,
		CookieSecure:  cfg.CookieSecure,
		CORSOrigin:    cfg.CORSOrigin,
		Ping:          b.Ping,
	}
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if opts.Port != "" {
		cfg.ServerPort = opts.Port
	}

	backend, err := opts.OpenBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open backend: %w", err)
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handlers.NewRouter(NewDeps(cfg, backend)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Logger.Infof("Event ID: SERVER_STARTED, Description: Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	operations := map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			logging.Logger.Info("Event ID: SERVER_STOPPING, Description: Graceful shutdown initiated")
			return srv.Shutdown(ctx)
		},
	}
	for name, op := range backend.Shutdown() {
		operations[name] = op
	}
	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, operations)

	select {
	case err, ok := <-serveErr:
		if ok && err != nil {
			logging.Logger.Errorf("Event ID: SERVER_FAILED, Description: %v", err)
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if cerr := backend.Close(closeCtx); cerr != nil {
				logging.Logger.Errorf("Event ID: BACKEND_CLOSE_FAILED, Description: %v", cerr)
			}
			return err
		}
		// Closed without error only after Shutdown; wait for the remaining operations.
		return exitCode(<-wait)
	case code := <-wait:
		return exitCode(code)
	}
}

func exitCode(code int) error {
	logging.Logger.Infof("Event ID: SERVER_STOPPED, Description: Exited with code %d", code)
	if code != 0 {
		return fmt.Errorf("shutdown finished with exit code %d", code)
	}
	return nil
}

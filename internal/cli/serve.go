// The serve command runs the sync server.
package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshline/syncd/internal/server"
	"github.com/meshline/syncd/internal/sqlite"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		Long:  "Serve the event log API and the realtime feed until interrupted.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(resolveConfigDir())
	if err != nil {
		return exitError(exitUserError, fmt.Sprintf("load config: %s", err))
	}
	if err := cfg.Validate(); err != nil {
		return exitError(exitUserError, fmt.Sprintf("invalid config: %s", err))
	}

	backend := sqlite.NewBackend()
	if err := backend.Attach(cfg); err != nil {
		return exitError(exitSysError, fmt.Sprintf("attach storage: %s", err))
	}
	defer backend.Detach()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(backend, cfg, slog.Default())
	if err := srv.Run(ctx); err != nil {
		return exitError(exitSysError, fmt.Sprintf("server: %s", err))
	}
	return nil
}

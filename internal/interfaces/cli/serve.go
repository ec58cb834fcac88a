package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spanmark/spanmark/internal/bootstrap"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
)

var servePort int

// NewServeCmd creates the serve command, which runs the API server in the
// foreground. It assembles the same stack as cmd/apiserver.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server in the foreground",
		Long:  "Serve starts the full API server: postgres-backed persistence, the\nannotation pipeline, dataset builds, training jobs, and entity search.\nIt blocks until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides the configured server.port)")
	return cmd
}

func runServe(cmd *cobra.Command) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	// The server logs in the configured format, not the CLI's console style.
	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return err
	}

	container, err := bootstrap.New(cmd.Context(), cfg, logger, Version)
	if err != nil {
		return err
	}
	defer container.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- container.HTTP.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("Received shutdown signal", logging.String("signal", sig.String()))
	case <-cmd.Context().Done():
	}

	return container.HTTP.Stop(context.Background())
}

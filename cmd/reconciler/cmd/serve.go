package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"golang-bank-reconciliation/cmd/reconciler/config"
	"golang-bank-reconciliation/internal/api"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reconciliation HTTP API",
		Long: `Serve exposes statements, matching and reconciliations over HTTP under
/api, with a /health endpoint for load balancers. The server stops
gracefully on SIGINT or SIGTERM.

Examples:
  reconciler serve --addr :9000
  RECONCILER_SERVER_ALLOWED_ORIGINS="https://books.example.com" reconciler serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.override(cmd, "addr", config.KeyServerAddr)
			a.override(cmd, "mode", config.KeyServerMode)

			service, err := a.loadService()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return api.NewServer(config.CreateServerConfig(a.v), service, a.logger).Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().String("mode", "", "gin mode: debug, release, test")
	return cmd
}

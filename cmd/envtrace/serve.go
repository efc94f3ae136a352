package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/envtrace/internal/infrastructure/server"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var host, port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generate bridge over HTTP",
		Long: `Starts a pool of emulated browser runtimes behind an HTTP API.
POST /generate calls the page's generateData, POST /execute runs a script,
GET /ws/audit streams interception lines and GET /metrics exposes Prometheus
metrics. SIGINT or SIGTERM shuts down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, profile, logger, err := g.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			srv, err := server.NewServer(cfg, profile, logger)
			if err != nil {
				return err
			}

			runErr := srv.Run(cmd.Context())
			if err := srv.Close(); err != nil {
				logger.Error("Error during shutdown", zap.Error(err))
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "address to bind (overrides $ENVTRACE_SERVER_HOST)")
	cmd.Flags().StringVarP(&port, "port", "p", "8000", "port to listen on (overrides $ENVTRACE_SERVER_PORT)")
	return cmd
}

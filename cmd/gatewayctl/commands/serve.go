package commands

import (
	"github.com/benvon/gateway-console/internal/console"
	"github.com/benvon/gateway-console/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServeCmd creates the command that runs the console HTTP server.
func NewServeCmd(opts *globalOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the console server",
		Long:  "Serve the console API, poll gateway metrics and fan snapshots out to the configured brokers until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.ConsolePort = port
			}
			log, err := opts.logger(cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(log) }()

			log.Info("starting_console",
				zap.Bool("debug_mode", cfg.DebugMode),
				zap.String("console_port", cfg.ConsolePort),
				zap.String("frontend_url", cfg.FrontendURL),
				zap.Bool("redis_configured", cfg.RedisURL != ""),
				zap.Bool("rabbitmq_configured", cfg.RabbitMQURL != ""),
			)

			ctx := cmd.Context()
			app, err := console.New(ctx, cfg, log)
			if err != nil {
				log.Error("failed_to_start_console", zap.Error(err))
				return err
			}
			defer app.Close()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides CONSOLE_PORT)")
	return cmd
}

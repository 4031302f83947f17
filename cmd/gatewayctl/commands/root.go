// Package commands implements the gatewayctl command tree.
package commands

import (
	"fmt"
	"time"

	"github.com/benvon/gateway-console/internal/config"
	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// globalOptions are the persistent flags shared by every subcommand. Flags
// left unset fall back to the environment.
type globalOptions struct {
	gatewayURL string
	timeout    time.Duration
	debug      bool
}

// NewRootCmd creates the gatewayctl root command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "gatewayctl",
		Short:         "Operator console for the API gateway",
		Long:          "Inspect and edit gateway settings, watch live gateway metrics, and run the console server.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.gatewayURL, "gateway-url", "", "gateway admin API origin (overrides GATEWAY_URL)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "per-request gateway timeout (overrides GATEWAY_TIMEOUT)")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(NewSettingsCmd(opts))
	cmd.AddCommand(NewMetricsCmd(opts))
	cmd.AddCommand(NewServeCmd(opts))
	cmd.AddCommand(NewStubCmd(opts))
	return cmd
}

// config loads the environment configuration and applies flag overrides.
func (o *globalOptions) config() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.gatewayURL != "" {
		cfg.GatewayURL = o.gatewayURL
	}
	if o.timeout > 0 {
		cfg.GatewayTimeout = o.timeout
	}
	if o.debug {
		cfg.DebugMode = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (o *globalOptions) logger(cfg *config.Config, interactive bool) (*zap.Logger, error) {
	log, err := logger.New(cfg.DebugMode, interactive)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return log, nil
}

// session is what a one-shot gateway command needs.
type session struct {
	cfg    *config.Config
	log    *zap.Logger
	client *gateway.Client
}

func (o *globalOptions) session() (*session, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	log, err := o.logger(cfg, true)
	if err != nil {
		return nil, err
	}
	client := gateway.NewClient(cfg.GatewayURL,
		gateway.WithTimeout(cfg.GatewayTimeout),
		gateway.WithLogger(log),
	)
	return &session{cfg: cfg, log: log, client: client}, nil
}

func (s *session) close() {
	_ = logger.Sync(s.log)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/benvon/gateway-console/internal/gatewaystub"
	"github.com/benvon/gateway-console/internal/logger"
	"github.com/benvon/gateway-console/internal/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStubCmd creates the command that serves an in-memory gateway admin API.
func NewStubCmd(opts *globalOptions) *cobra.Command {
	var (
		addr     string
		origins  string
		traffic  time.Duration
		rejected []string
	)
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a local stand-in for the gateway admin API",
		Long:  "Serve GET /api/metrics and GET/POST /api/settings from memory, optionally simulating traffic and rejecting chosen routes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			log, err := opts.logger(cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(log) }()

			stub := gatewaystub.New(log)
			for _, route := range rejected {
				switch r := gatewaystub.Route(route); r {
				case gatewaystub.RouteGetMetrics, gatewaystub.RouteGetSettings, gatewaystub.RouteSaveSettings:
					stub.SetStatus(r, http.StatusInternalServerError)
				default:
					return fmt.Errorf("unknown route %q", route)
				}
			}

			ctx := cmd.Context()
			if traffic > 0 {
				go simulateTraffic(ctx, stub, traffic)
			}
			return serveStub(ctx, log, addr, stub.Handler(middleware.AllowedOrigins(origins)...))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&origins, "allowed-origins", middleware.DefaultFrontendOrigin, "comma-separated browser origins allowed to call the stub")
	cmd.Flags().DurationVar(&traffic, "traffic", 0, "record one simulated request per interval (0 disables)")
	cmd.Flags().StringSliceVar(&rejected, "reject", nil, "routes answered with 500: get_metrics, get_settings, save_settings")
	return cmd
}

func simulateTraffic(ctx context.Context, stub *gatewaystub.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch n := rand.IntN(100); {
			case n < 5:
				stub.Record(gatewaystub.TrafficBlocked)
			case n < 35:
				stub.Record(gatewaystub.TrafficCacheHit)
			default:
				stub.Record(gatewaystub.TrafficForwarded)
			}
		}
	}
}

func serveStub(ctx context.Context, log *zap.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway_stub_listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("gateway stub failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

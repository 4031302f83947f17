package console

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benvon/gateway-console/internal/config"
	"github.com/benvon/gateway-console/internal/configstore"
	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/handlers"
	"github.com/benvon/gateway-console/internal/logger"
	"github.com/benvon/gateway-console/internal/metricspoller"
	"github.com/benvon/gateway-console/internal/middleware"
	"github.com/benvon/gateway-console/internal/publish"
	"github.com/benvon/gateway-console/internal/telemetry"
	"github.com/benvon/gateway-console/internal/views"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const (
	shutdownTimeout     = 30 * time.Second
	brokerConnectTries  = 5
	brokerConnectDelay  = time.Second
	requestTimeoutSlack = 5 * time.Second
)

// App is a running console: one settings form and one dashboard over a
// single gateway, served over HTTP.
type App struct {
	cfg *config.Config
	log *zap.Logger

	registry  *prometheus.Registry
	client    *gateway.Client
	poller    *metricspoller.Poller
	settings  *views.SettingsView
	dashboard *views.DashboardView
	forwarder *publish.Forwarder
	redis     *redis.Client
	tracer    *sdktrace.TracerProvider
	handler   http.Handler
}

// New connects the optional brokers and wires the console. Nothing polls or
// serves until Run.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.initTracing(ctx)

	a.client = gateway.NewClient(cfg.GatewayURL,
		gateway.WithTimeout(cfg.GatewayTimeout),
		gateway.WithLogger(log),
	)
	recorder := telemetry.NewRecorder(a.registry)

	store := configstore.New(a.client, log, configstore.WithObserver(recorder))
	a.poller = metricspoller.New(a.client, log, metricspoller.WithObserver(recorder))
	a.settings = views.NewSettingsView(store, log)
	a.dashboard = views.NewDashboardView(a.poller, cfg.PollInterval, log)

	health := handlers.NewHealthChecker()
	health.AddCheck("gateway", a.client.Ping)

	publishers, err := a.connectBrokers(ctx, health)
	if err != nil {
		a.Close()
		return nil, err
	}
	if len(publishers) > 0 {
		a.forwarder = publish.NewForwarder(log, publishers)
	}

	rateLimit, err := middleware.RateLimit(cfg.ConsoleRate, a.redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create console rate limiter: %w", err)
	}

	a.handler = NewRouter(RouterConfig{
		Settings:       a.settings,
		Dashboard:      a.dashboard,
		Health:         health,
		Gatherer:       a.registry,
		RateLimit:      rateLimit,
		FrontendURL:    cfg.FrontendURL,
		EnableHSTS:     cfg.EnableHSTS,
		Tracing:        a.tracer != nil,
		RequestTimeout: cfg.GatewayTimeout + requestTimeoutSlack,
		Log:            log,
	})
	return a, nil
}

func (a *App) initTracing(ctx context.Context) {
	if !a.cfg.OTELEnabled {
		return
	}
	if a.cfg.OTELEndpoint == "" {
		a.log.Warn("otel_enabled_but_endpoint_not_configured")
		return
	}
	tp, err := telemetry.InitTracer(ctx, telemetry.ServiceName, a.cfg.OTELEndpoint)
	if err != nil {
		a.log.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return
	}
	a.tracer = tp
	a.log.Info("otel_tracer_initialized", zap.String("endpoint", a.cfg.OTELEndpoint))
}

// connectBrokers opens the configured snapshot fan-out targets. A broker that
// is configured but unreachable is an error; an unconfigured one is skipped.
func (a *App) connectBrokers(ctx context.Context, health *handlers.HealthChecker) ([]publish.Publisher, error) {
	var publishers []publish.Publisher

	if a.cfg.RedisURL == "" {
		health.AddCheck("redis", nil)
	} else {
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opts)
		err = connectWithRetry(ctx, a.log, "redis", brokerConnectTries, brokerConnectDelay, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.redis = client
		redisPub := publish.NewRedisPublisherFromClient(client, a.cfg.RedisChannel)
		publishers = append(publishers, redisPub)
		health.AddCheck("redis", redisPub.HealthCheck)
		a.log.Info("snapshot_fanout_enabled",
			zap.String("publisher", redisPub.Name()),
			zap.String("channel", redisPub.Channel()),
		)
	}

	if a.cfg.RabbitMQURL == "" {
		health.AddCheck("rabbitmq", nil)
	} else {
		var rabbit *publish.RabbitMQPublisher
		err := connectWithRetry(ctx, a.log, "rabbitmq", brokerConnectTries, brokerConnectDelay, func(context.Context) error {
			var err error
			rabbit, err = publish.NewRabbitMQPublisher(a.cfg.RabbitMQURL, a.cfg.RabbitMQExchange)
			return err
		})
		if err != nil {
			for _, p := range publishers {
				_ = p.Close()
			}
			a.redis = nil
			return nil, err
		}
		publishers = append(publishers, rabbit)
		health.AddCheck("rabbitmq", rabbit.HealthCheck)
		a.log.Info("snapshot_fanout_enabled",
			zap.String("publisher", rabbit.Name()),
			zap.String("exchange", rabbit.Exchange()),
		)
	}

	return publishers, nil
}

// Handler is the console HTTP API.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run mounts both views, starts the snapshot fan-out and serves HTTP until
// ctx is cancelled. The poller is stopped on every exit path.
func (a *App) Run(ctx context.Context) error {
	if err := a.settings.Init(ctx); err != nil {
		a.log.Warn("initial_settings_fetch_failed", zap.Error(err))
	}
	defer a.settings.Teardown()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.forwarder != nil {
		unsubscribe := a.poller.Subscribe(a.forwarder.Listener())
		defer unsubscribe()
		go a.forwarder.Run(runCtx)
	}

	if err := a.dashboard.Init(runCtx); err != nil {
		return err
	}
	defer a.dashboard.Teardown()

	srv := &http.Server{
		Addr:           ":" + a.cfg.ConsolePort,
		Handler:        a.handler,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   a.cfg.GatewayTimeout + 2*requestTimeoutSlack,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("server_starting",
			zap.String("port", a.cfg.ConsolePort),
			zap.String("gateway_url", logger.SanitizeURL(a.client.BaseURL())),
			zap.Duration("poll_interval", a.cfg.PollInterval),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("console server failed: %w", err)
		}
	}

	a.log.Info("server_shutting_down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server_exited")
	return nil
}

// Close releases broker connections and flushes traces.
func (a *App) Close() {
	if a.forwarder != nil {
		if err := a.forwarder.Close(); err != nil {
			a.log.Warn("failed_to_close_publishers", zap.Error(err))
		}
	} else if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx, a.tracer); err != nil {
			a.log.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}
}

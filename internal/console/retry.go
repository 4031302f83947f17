package console

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const maxRetryDelay = 30 * time.Second

// connectWithRetry calls connect up to attempts times, doubling the delay
// between tries up to maxRetryDelay. Brokers started alongside the console
// are often not accepting connections yet.
func connectWithRetry(ctx context.Context, log *zap.Logger, name string, attempts int, initialDelay time.Duration, connect func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = connect(ctx); lastErr == nil {
			log.Info("connected_to_broker", zap.String("broker", name))
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
		log.Warn("failed_to_connect_to_broker_retrying",
			zap.String("broker", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", attempts),
			zap.Duration("retry_delay", delay),
			zap.Error(lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("connect to %s: %w", name, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("failed to connect to %s after %d attempts: %w", name, attempts, lastErr)
}

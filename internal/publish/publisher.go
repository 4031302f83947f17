// Package publish forwards metrics snapshots to message brokers so other
// services can follow the gateway counters without polling it themselves.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benvon/gateway-console/internal/models"
	"github.com/google/uuid"
)

// Source identifies this process in published messages.
const Source = "gateway-console"

// Publisher delivers one encoded snapshot message.
type Publisher interface {
	// Name identifies the publisher in logs.
	Name() string

	// Publish sends body. It must respect ctx cancellation.
	Publish(ctx context.Context, body []byte) error

	// HealthCheck verifies the broker connection is usable.
	HealthCheck(ctx context.Context) error

	// Close releases the broker connection.
	Close() error
}

// SnapshotMessage is the JSON document published for each snapshot.
type SnapshotMessage struct {
	ID         uuid.UUID              `json:"id"`
	Source     string                 `json:"source"`
	CapturedAt time.Time              `json:"captured_at"`
	Metrics    models.MetricsSnapshot `json:"metrics"`
}

// NewSnapshotMessage wraps snap with a fresh ID and capture time.
func NewSnapshotMessage(snap models.MetricsSnapshot, at time.Time) SnapshotMessage {
	return SnapshotMessage{
		ID:         uuid.New(),
		Source:     Source,
		CapturedAt: at.UTC(),
		Metrics:    snap,
	}
}

// Encode marshals m to JSON.
func (m SnapshotMessage) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot message: %w", err)
	}
	return body, nil
}

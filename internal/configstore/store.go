// Package configstore holds the console's working copy of the gateway
// configuration: fetched once, edited field by field, saved whole.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrUnknownField is returned for names that are not configuration fields.
	ErrUnknownField = errors.New("unknown configuration field")
	// ErrNotAFeature is returned when toggling a field that is not a boolean switch.
	ErrNotAFeature = errors.New("field is not a feature toggle")
)

// SettingsClient reads and writes the gateway settings document.
type SettingsClient interface {
	GetSettings(ctx context.Context) (models.GatewayConfiguration, error)
	SaveSettings(ctx context.Context, cfg models.GatewayConfiguration) error
}

// Observer receives the outcome of every fetch and save.
type Observer interface {
	ObserveFetch(err error)
	ObserveSave(err error)
}

// Listener is called with the new working copy after each change.
type Listener func(cfg models.GatewayConfiguration)

// Option configures a Store.
type Option func(*Store)

// WithObserver reports fetch and save outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

type subscription struct {
	id uint64
	fn Listener
}

// Store owns one working copy. Fetch and Save are not coordinated with each
// other: a fetch that resolves after local edits replaces those edits.
type Store struct {
	client   SettingsClient
	log      *zap.Logger
	observer Observer

	mu        sync.Mutex
	working   models.GatewayConfiguration
	listeners []subscription
	nextID    uint64
}

// New creates a store holding the default configuration.
func New(client SettingsClient, log *zap.Logger, opts ...Option) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		client:  client,
		log:     log,
		working: models.DefaultGatewayConfiguration(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init resets the working copy to defaults and fetches the gateway's
// configuration. A failed fetch leaves the defaults in place; the error is
// returned for diagnostics only.
func (s *Store) Init(ctx context.Context) error {
	s.Replace(models.DefaultGatewayConfiguration())
	return s.Fetch(ctx)
}

// Teardown drops all listeners and discards the working copy.
func (s *Store) Teardown() {
	s.mu.Lock()
	s.listeners = nil
	s.working = models.DefaultGatewayConfiguration()
	s.mu.Unlock()
}

// Current returns a copy of the working copy.
func (s *Store) Current() models.GatewayConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.working
}

// Subscribe registers l for change notifications. The returned func removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: l})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Fetch reads the gateway configuration and, on success, replaces the whole
// working copy. On failure the working copy is left untouched.
func (s *Store) Fetch(ctx context.Context) error {
	cfg, err := s.client.GetSettings(ctx)
	if s.observer != nil {
		s.observer.ObserveFetch(err)
	}
	if err != nil {
		s.log.Warn("failed_to_fetch_gateway_settings",
			zap.Error(err),
			zap.Bool("server_rejected", gateway.IsRejected(err)),
		)
		return fmt.Errorf("fetch gateway settings: %w", err)
	}
	s.Replace(cfg)
	s.log.Debug("gateway_settings_fetched")
	return nil
}

// Replace swaps in cfg as the working copy.
func (s *Store) Replace(cfg models.GatewayConfiguration) {
	s.apply(func(w *models.GatewayConfiguration) error {
		*w = cfg
		return nil
	})
}

// UpdateField merges one raw input value into the working copy. Integer
// fields take the leading integer of raw and fall back to 0 when there is
// none. Boolean fields fall back to false. Other fields are stored as given.
func (s *Store) UpdateField(name, raw string) error {
	f := models.Field(name)
	kind, ok := f.Kind()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return s.apply(func(w *models.GatewayConfiguration) error {
		switch kind {
		case models.FieldKindInt:
			return w.SetInt(f, CoerceInt(raw))
		case models.FieldKindBool:
			v, err := strconv.ParseBool(raw)
			if err != nil {
				v = false
			}
			return w.SetBool(f, v)
		default:
			return w.SetString(f, raw)
		}
	})
}

// ToggleFeature sets one feature switch. Dependent values, such as the
// per-minute limit under rate limiting, are kept as they are.
func (s *Store) ToggleFeature(name string, enabled bool) error {
	f := models.Field(name)
	kind, ok := f.Kind()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if kind != models.FieldKindBool {
		return fmt.Errorf("%w: %q", ErrNotAFeature, name)
	}
	return s.apply(func(w *models.GatewayConfiguration) error {
		return w.SetBool(f, enabled)
	})
}

// Save submits the whole working copy. It does not retry and does not guard
// against concurrent calls; callers disable their save control while one is
// outstanding.
func (s *Store) Save(ctx context.Context) SaveResult {
	cfg := s.Current()
	err := s.client.SaveSettings(ctx, cfg)
	if s.observer != nil {
		s.observer.ObserveSave(err)
	}

	switch {
	case err == nil:
		s.log.Info("gateway_settings_saved",
			zap.String("target_backend_url", cfg.TargetBackendURL),
		)
		return SaveResult{Outcome: SaveSucceeded}
	case gateway.IsRejected(err):
		s.log.Warn("gateway_rejected_settings", zap.Error(err))
		return SaveResult{Outcome: SaveRejected, Err: err}
	default:
		s.log.Error("failed_to_save_gateway_settings", zap.Error(err))
		return SaveResult{Outcome: SaveFailed, Err: err}
	}
}

// apply runs mutate on the working copy under the lock and notifies
// listeners, outside the lock, if it succeeded.
func (s *Store) apply(mutate func(*models.GatewayConfiguration) error) error {
	s.mu.Lock()
	next := s.working
	if err := mutate(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.working = next
	listeners := make([]Listener, len(s.listeners))
	for i, sub := range s.listeners {
		listeners[i] = sub.fn
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return nil
}

// CoerceInt parses the leading integer of raw, ignoring leading whitespace
// and anything after the digits. Input with no leading digits, or that
// overflows int, yields 0.
func CoerceInt(raw string) int {
	i := 0
	for i < len(raw) && (raw[i] == ' ' || raw[i] == '\t' || raw[i] == '\n' || raw[i] == '\r') {
		i++
	}
	start := i
	if i < len(raw) && (raw[i] == '+' || raw[i] == '-') {
		i++
	}
	digits := i
	for i < len(raw) && raw[i] >= '0' && raw[i] <= '9' {
		i++
	}
	if i == digits {
		return 0
	}
	n, err := strconv.Atoi(raw[start:i])
	if err != nil {
		return 0
	}
	return n
}

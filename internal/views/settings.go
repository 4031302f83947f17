// Package views renders the console pages over the settings store and the
// metrics poller.
package views

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/benvon/gateway-console/internal/configstore"
	"github.com/benvon/gateway-console/internal/models"
	"github.com/benvon/gateway-console/internal/widgets"
	"go.uber.org/zap"
)

// ErrSaveInProgress is returned by Save while an earlier save is outstanding.
var ErrSaveInProgress = errors.New("a save is already in progress")

// SettingsStore is the part of the configuration store the settings page uses.
type SettingsStore interface {
	Init(ctx context.Context) error
	Teardown()
	Current() models.GatewayConfiguration
	Fetch(ctx context.Context) error
	Subscribe(l configstore.Listener) (unsubscribe func())
	UpdateField(name, raw string) error
	ToggleFeature(name string, enabled bool) error
	Save(ctx context.Context) configstore.SaveResult
}

type feature struct {
	field       models.Field
	label       string
	description string
}

var features = []feature{
	{
		field:       models.FieldRateLimitEnabled,
		label:       "Enable Sliding Window Rate Limit",
		description: "Prevent API abuse with distributed sliding window counters.",
	},
	{
		field:       models.FieldCacheEnabled,
		label:       "Enable LRU Cache",
		description: "In-memory caching for GET requests up to 10MB.",
	},
	{
		field:       models.FieldIdempotencyEnabled,
		label:       "Enable POST Idempotency",
		description: "Automatically detect and drop duplicate mutations.",
	},
	{
		field:       models.FieldWAFEnabled,
		label:       "Enable WAF Security",
		description: "Block SQLi, XSS, and known bad IPs proactively.",
	},
}

// Option configures a view.
type Option func(*viewOptions)

type viewOptions struct {
	redraw func()
}

// WithRedraw registers fn to be called whenever the view's data changes.
func WithRedraw(fn func()) Option {
	return func(o *viewOptions) {
		o.redraw = fn
	}
}

// SettingsView is the gateway settings form.
type SettingsView struct {
	store  SettingsStore
	log    *zap.Logger
	guard  *MountGuard
	redraw func()

	saving      atomic.Bool
	mu          sync.Mutex
	lastMessage string
	unsubscribe func()
}

// NewSettingsView creates an unmounted settings form over store.
func NewSettingsView(store SettingsStore, log *zap.Logger, opts ...Option) *SettingsView {
	if log == nil {
		log = zap.NewNop()
	}
	var o viewOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &SettingsView{
		store:  store,
		log:    log,
		guard:  NewMountGuard(),
		redraw: o.redraw,
	}
}

// Init mounts the form and loads the gateway settings. A failed load leaves
// the defaults in place; the error is returned for diagnostics only.
func (v *SettingsView) Init(ctx context.Context) error {
	v.guard.Mount()
	unsubscribe := v.store.Subscribe(func(models.GatewayConfiguration) {
		v.changed()
	})
	v.mu.Lock()
	v.unsubscribe = unsubscribe
	v.mu.Unlock()
	return v.store.Init(ctx)
}

// Teardown detaches the form from the store and discards the working copy.
func (v *SettingsView) Teardown() {
	v.mu.Lock()
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	v.store.Teardown()
}

// Mounted is closed once the form renders real content.
func (v *SettingsView) Mounted() <-chan struct{} {
	return v.guard.Done()
}

// Current is the form's working copy.
func (v *SettingsView) Current() models.GatewayConfiguration {
	return v.store.Current()
}

// RateLimitVisible reports whether the requests-per-minute input is shown.
func (v *SettingsView) RateLimitVisible() bool {
	return v.store.Current().RateLimitEnabled
}

// Reload fetches the gateway settings again, replacing local edits on success.
func (v *SettingsView) Reload(ctx context.Context) error {
	return v.store.Fetch(ctx)
}

// Toggles returns one switch per feature flag, bound to the store.
func (v *SettingsView) Toggles() []widgets.Toggle {
	cfg := v.store.Current()
	toggles := make([]widgets.Toggle, 0, len(features))
	for _, f := range features {
		checked, err := cfg.Bool(f.field)
		if err != nil {
			continue
		}
		name := string(f.field)
		toggles = append(toggles, widgets.Toggle{
			Label:       f.label,
			Description: f.description,
			Checked:     checked,
			OnChange: func(enabled bool) {
				if err := v.store.ToggleFeature(name, enabled); err != nil {
					v.log.Warn("failed_to_toggle_feature", zap.String("feature", name), zap.Error(err))
				}
			},
		})
	}
	return toggles
}

// Set edits one field from raw form input.
func (v *SettingsView) Set(name, raw string) error {
	return v.store.UpdateField(name, raw)
}

// SetFeature turns the named feature switch on or off.
func (v *SettingsView) SetFeature(name string, enabled bool) error {
	return v.store.ToggleFeature(name, enabled)
}

// Toggle flips the named feature switch.
func (v *SettingsView) Toggle(name string) error {
	toggles := v.Toggles()
	for i, f := range features {
		if string(f.field) == name && i < len(toggles) {
			toggles[i].Flip()
			return nil
		}
	}
	if _, ok := models.Field(name).Kind(); !ok {
		return fmt.Errorf("%w: %q", configstore.ErrUnknownField, name)
	}
	return fmt.Errorf("%w: %q", configstore.ErrNotAFeature, name)
}

// Saving reports whether a save is outstanding.
func (v *SettingsView) Saving() bool {
	return v.saving.Load()
}

// Save submits the working copy. Only one save runs at a time.
func (v *SettingsView) Save(ctx context.Context) (configstore.SaveResult, error) {
	if !v.saving.CompareAndSwap(false, true) {
		return configstore.SaveResult{}, ErrSaveInProgress
	}
	defer func() {
		v.saving.Store(false)
		v.changed()
	}()
	v.changed()

	result := v.store.Save(ctx)

	v.mu.Lock()
	v.lastMessage = result.Message()
	v.mu.Unlock()
	return result, nil
}

// LastMessage is the acknowledgement of the most recent save.
func (v *SettingsView) LastMessage() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastMessage
}

// Render writes the form. The per-minute limit is hidden while rate limiting
// is off; its value is kept in the working copy.
func (v *SettingsView) Render(w io.Writer) error {
	if !v.guard.Ready() {
		return nil
	}

	cfg := v.store.Current()
	var b strings.Builder
	b.WriteString("Settings\n")
	b.WriteString("Configure your API Gateway routing and security.\n\n")
	b.WriteString("General\n")
	fmt.Fprintf(&b, "  Original Backend URL: %s\n", cfg.TargetBackendURL)
	b.WriteString("    Traffic will be transparently proxied to this destination.\n\n")
	b.WriteString("Features\n")

	for _, t := range v.Toggles() {
		if err := t.Render(&b); err != nil {
			return err
		}
		if t.Label == features[0].label && cfg.RateLimitEnabled {
			fmt.Fprintf(&b, "    Requests per Minute: %d\n", cfg.RateLimitPerMinute)
		}
	}

	b.WriteString("\n")
	if v.Saving() {
		b.WriteString("[ Saving... ]\n")
	} else {
		b.WriteString("[ Save Changes ]\n")
	}
	if msg := v.LastMessage(); msg != "" {
		b.WriteString(msg + "\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("render settings: %w", err)
	}
	return nil
}

func (v *SettingsView) changed() {
	if v.redraw != nil && v.guard.Ready() {
		v.redraw()
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/gateway-console/internal/configstore"
	"github.com/benvon/gateway-console/internal/gateway"
	"github.com/benvon/gateway-console/internal/models"
	"github.com/benvon/gateway-console/internal/validation"
	"github.com/benvon/gateway-console/internal/views"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// SettingsForm is the settings page as the console API exposes it.
type SettingsForm interface {
	Current() models.GatewayConfiguration
	RateLimitVisible() bool
	Set(name, raw string) error
	SetFeature(name string, enabled bool) error
	Reload(ctx context.Context) error
	Save(ctx context.Context) (configstore.SaveResult, error)
	Saving() bool
	LastMessage() string
}

// SettingsHandler serves the settings form over HTTP.
type SettingsHandler struct {
	form SettingsForm
	log  *zap.Logger
}

// NewSettingsHandler creates a handler over form.
func NewSettingsHandler(form SettingsForm, log *zap.Logger) *SettingsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsHandler{form: form, log: log}
}

// SettingsResponse is the data payload of every settings endpoint.
type SettingsResponse struct {
	Settings         models.GatewayConfiguration `json:"settings"`
	RateLimitVisible bool                        `json:"rate_limit_visible"`
	Saving           bool                        `json:"saving"`
	LastMessage      string                      `json:"last_message,omitempty"`
	Warnings         []string                    `json:"warnings,omitempty"`
}

// UpdateFieldRequest edits one field. Value is taken as form input: strings
// as given, numbers and booleans by their JSON text.
type UpdateFieldRequest struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// SetFeatureRequest turns one feature switch on or off.
type SetFeatureRequest struct {
	Enabled *bool `json:"enabled"`
}

// SaveResponse reports how a save ended.
type SaveResponse struct {
	Outcome  string           `json:"outcome"`
	Message  string           `json:"message"`
	Settings SettingsResponse `json:"form"`
}

// RegisterRoutes mounts the settings endpoints on r, which is expected to be
// the /console subrouter.
func (h *SettingsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings", h.UpdateField).Methods(http.MethodPatch)
	r.HandleFunc("/settings/features/{name}", h.SetFeature).Methods(http.MethodPut)
	r.HandleFunc("/settings/reload", h.Reload).Methods(http.MethodPost)
	r.HandleFunc("/settings/save", h.Save).Methods(http.MethodPost)
}

// GetSettings handles GET /console/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.snapshot())
}

// UpdateField handles PATCH /console/settings
func (h *SettingsHandler) UpdateField(w http.ResponseWriter, r *http.Request) {
	var req UpdateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	if req.Name == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "name is required")
		return
	}

	if err := h.form.Set(req.Name, rawInput(req.Value)); err != nil {
		h.respondFieldError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot())
}

// SetFeature handles PUT /console/settings/features/{name}
func (h *SettingsHandler) SetFeature(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req SetFeatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "enabled must be a boolean")
		return
	}

	if err := h.form.SetFeature(name, *req.Enabled); err != nil {
		h.respondFieldError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot())
}

// Reload handles POST /console/settings/reload. On failure the form keeps its
// current values, which are returned alongside the error.
func (h *SettingsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.form.Reload(r.Context()); err != nil {
		status, errorType := gatewayErrorStatus(err)
		respondJSONErrorData(w, status, errorType, err.Error(), h.snapshot())
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot())
}

// Save handles POST /console/settings/save
func (h *SettingsHandler) Save(w http.ResponseWriter, r *http.Request) {
	result, err := h.form.Save(r.Context())
	if errors.Is(err, views.ErrSaveInProgress) {
		respondJSONError(w, http.StatusConflict, "Conflict", "A save is already in progress")
		return
	}
	if err != nil {
		h.log.Error("failed_to_save_settings", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to save settings")
		return
	}

	resp := SaveResponse{
		Outcome:  result.Outcome.String(),
		Message:  result.Message(),
		Settings: h.snapshot(),
	}
	switch result.Outcome {
	case configstore.SaveSucceeded:
		respondJSON(w, http.StatusOK, resp)
	case configstore.SaveRejected:
		respondJSONErrorData(w, http.StatusBadGateway, "Bad Gateway", result.Message(), resp)
	default:
		respondJSONErrorData(w, http.StatusServiceUnavailable, "Service Unavailable", result.Message(), resp)
	}
}

func (h *SettingsHandler) snapshot() SettingsResponse {
	cfg := h.form.Current()
	return SettingsResponse{
		Settings:         cfg,
		RateLimitVisible: h.form.RateLimitVisible(),
		Saving:           h.form.Saving(),
		LastMessage:      h.form.LastMessage(),
		Warnings:         validation.ConfigurationWarnings(cfg),
	}
}

func (h *SettingsHandler) respondFieldError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, configstore.ErrUnknownField):
		respondJSONError(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, configstore.ErrNotAFeature):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		h.log.Error("failed_to_update_settings_field", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update field")
	}
}

// rawInput turns a JSON value into the text a form input would hold.
func rawInput(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	text := strings.TrimSpace(string(v))
	if text == "null" {
		return ""
	}
	return text
}

func gatewayErrorStatus(err error) (int, string) {
	if gateway.IsRejected(err) {
		return http.StatusBadGateway, "Bad Gateway"
	}
	return http.StatusServiceUnavailable, "Service Unavailable"
}

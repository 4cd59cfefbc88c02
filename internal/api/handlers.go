// Package api exposes the tracker's storage and sync engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"example.com/hybridtracker/internal/calendar"
	"example.com/hybridtracker/internal/domain"
	"example.com/hybridtracker/internal/identity"
	"example.com/hybridtracker/internal/reconcile"
	"example.com/hybridtracker/internal/stats"
	"example.com/hybridtracker/internal/store"
)

const maxStatsWeeks = 52

// Handler coordinates HTTP requests with the store and sync engine.
type Handler struct {
	store    *store.Store
	engine   *reconcile.Engine
	devices  *identity.Provider
	calendar *calendar.Calendar
	ready    atomic.Bool
}

// NewHandler builds a Handler.
func NewHandler(st *store.Store, engine *reconcile.Engine, devices *identity.Provider, cal *calendar.Calendar) *Handler {
	return &Handler{store: st, engine: engine, devices: devices, calendar: cal}
}

// SetReady flips the readiness probe once startup reconciliation has run.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/days", h.days)
	mux.HandleFunc("/v1/days/", h.dayByKey)
	mux.HandleFunc("/v1/weeks", h.weeks)
	mux.HandleFunc("/v1/weeks/", h.weekByKey)
	mux.HandleFunc("/v1/sync", h.sync)
	mux.HandleFunc("/v1/sync/status", h.syncStatus)
	mux.HandleFunc("/v1/export", h.export)
	mux.HandleFunc("/v1/import", h.importData)
	mux.HandleFunc("/v1/device/reset", h.resetDevice)
	mux.HandleFunc("/v1/stats", h.stats)
	mux.HandleFunc("/healthz", healthz)
	mux.HandleFunc("/readyz", h.readyz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if !h.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "startup reconciliation in progress")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// acceptingWrites rejects mutations until startup reconciliation is done.
func (h *Handler) acceptingWrites(w http.ResponseWriter) bool {
	if !h.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "startup reconciliation in progress")
		return false
	}
	return true
}

func (h *Handler) days(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.dayByLabel(w, r)
	case http.MethodDelete:
		h.clearDays(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) dayByKey(w http.ResponseWriter, r *http.Request) {
	dateKey := strings.TrimPrefix(r.URL.Path, "/v1/days/")
	if _, err := calendar.Parse(dateKey); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getDay(w, r, dateKey, r.URL.Query().Get("day"), r.URL.Query().Get("week"))
	case http.MethodPut:
		h.putDay(w, r, dateKey)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

// dayByLabel resolves ?day=<weekday>&week=<key> to a date key within the
// rolling window.
func (h *Handler) dayByLabel(w http.ResponseWriter, r *http.Request) {
	label := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("day")))
	if label == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing day parameter")
		return
	}
	weekKey := r.URL.Query().Get("week")
	if weekKey == "" {
		weekKey = h.calendar.WeekAnchorKey()
	}
	dateKey, err := h.calendar.DateKeyForDay(weekKey, label)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	h.getDay(w, r, dateKey, label, weekKey)
}

func (h *Handler) getDay(w http.ResponseWriter, r *http.Request, dateKey, label, weekKey string) {
	if label == "" {
		label, _ = calendar.WeekdayOf(dateKey)
	}
	if weekKey == "" {
		weekKey = h.calendar.WeekAnchorKey()
	}

	rec, exists := h.store.GetOrDefault(r.Context(), dateKey, weekKey, label)
	resp := DayResponse{
		Record:  rec,
		Exists:  exists,
		IsToday: h.calendar.IsToday(dateKey),
	}
	if plan, ok := domain.PlanFor(label); ok {
		resp.Plan = &plan
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) putDay(w http.ResponseWriter, r *http.Request, dateKey string) {
	if !h.acceptingWrites(w) {
		return
	}
	var rec domain.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if !rec.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", fmt.Sprintf("unknown type %q", rec.Kind))
		return
	}

	stored, err := h.store.PutRecord(r.Context(), dateKey, rec)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, stored)
	case errors.Is(err, domain.ErrKeyMismatch):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrKindChanged):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func (h *Handler) clearDays(w http.ResponseWriter, r *http.Request) {
	if !h.acceptingWrites(w) {
		return
	}
	if !confirmed(r) {
		writeError(w, http.StatusConflict, "confirmation_required", "clearing all data requires confirm=true")
		return
	}
	if err := h.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) weeks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	writeJSON(w, http.StatusOK, WeeksResponse{
		Current: h.calendar.WeekAnchorKey(),
		Weeks:   h.store.Weeks(r.Context()),
	})
}

func (h *Handler) weekByKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	weekKey := strings.TrimPrefix(r.URL.Path, "/v1/weeks/")
	if _, err := calendar.Parse(weekKey); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, WeekResponse{WeekKey: weekKey, Records: h.store.Week(r.Context(), weekKey)})
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	status := h.engine.Status(r.Context())
	writeJSON(w, http.StatusOK, SyncStatusResponse{
		SyncMetadata: status,
		DeviceID:     h.devices.GetOrCreate(r.Context()),
	})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !h.acceptingWrites(w) {
		return
	}
	result := h.engine.ManualSync(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="workout-data-%s.json"`, h.calendar.Today()))
	w.WriteHeader(http.StatusOK)
	_ = h.engine.Export(r.Context(), w)
}

func (h *Handler) importData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !h.acceptingWrites(w) {
		return
	}
	n, err := h.engine.Import(r.Context(), r.Body, confirmed(r))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ImportResponse{Imported: n})
	case errors.Is(err, domain.ErrMalformedImport):
		writeError(w, http.StatusBadRequest, "malformed_import", err.Error())
	case errors.Is(err, domain.ErrImportNotConfirmed):
		writeError(w, http.StatusConflict, "confirmation_required", "import replaces all data and requires confirm=true")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func (h *Handler) resetDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !h.acceptingWrites(w) {
		return
	}
	writeJSON(w, http.StatusOK, DeviceResponse{DeviceID: h.devices.Reset(r.Context())})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	weeks := stats.DefaultWeeks
	if raw := r.URL.Query().Get("weeks"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > maxStatsWeeks {
				parsed = maxStatsWeeks
			}
			weeks = parsed
		}
	}

	summary, err := stats.Summarize(h.store.GetAll(r.Context()), h.calendar.WeekAnchorKey(), weeks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// DayResponse is the body of the day lookups.
type DayResponse struct {
	Record  domain.Record   `json:"record"`
	Exists  bool            `json:"exists"`
	IsToday bool            `json:"isToday"`
	Plan    *domain.DayPlan `json:"plan,omitempty"`
}

// WeeksResponse lists the weeks that hold records.
type WeeksResponse struct {
	Current string   `json:"current"`
	Weeks   []string `json:"weeks"`
}

// WeekResponse holds one week's records keyed by date.
type WeekResponse struct {
	WeekKey string          `json:"weekKey"`
	Records domain.Snapshot `json:"records"`
}

// SyncStatusResponse adds the device id to the sync metadata.
type SyncStatusResponse struct {
	reconcile.SyncMetadata
	DeviceID string `json:"deviceId"`
}

// ImportResponse reports how many records an import stored.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// DeviceResponse carries a device identifier.
type DeviceResponse struct {
	DeviceID string `json:"deviceId"`
}

func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Package httpapi exposes presence writes, the dashboard views and the reset
// coordinator over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Guizzs26/gcm-presence/internal/auth"
	"github.com/Guizzs26/gcm-presence/internal/catalog"
	"github.com/Guizzs26/gcm-presence/internal/dashboard"
	"github.com/Guizzs26/gcm-presence/internal/models"
	"github.com/Guizzs26/gcm-presence/internal/reset"
	"github.com/Guizzs26/gcm-presence/internal/service"
)

const (
	regionPasswordHeader = "X-Region-Password"
	adminPasswordHeader  = "X-Admin-Password"

	maxRequestBytes = 16 << 10
)

// PresenceLister is the read side of the live projection
type PresenceLister interface {
	List() []models.PresenceRecord
	Len() int
	Version() uint64
	Rejected() int
}

// BrokerStatus reports whether presence events are currently being fanned out
type BrokerStatus interface {
	Online() bool
}

type Services struct {
	Presence  *service.PresenceService
	Records   PresenceLister
	Reset     *reset.Coordinator
	Gate      *auth.Gate
	Catalog   *catalog.Catalog
	Dashboard *dashboard.Builder
	Export    *dashboard.Exporter
	Broker    BrokerStatus // nil when no broker is configured
}

type Router struct {
	services Services
	logger   *slog.Logger
}

func NewRouter(services Services, logger *slog.Logger) http.Handler {
	r := &Router{services: services, logger: logger.With("component", "http")}
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)

	mux.Get("/health", r.handleHealth)

	mux.Route("/api/v1", func(api chi.Router) {
		api.Get("/catalog", r.handleCatalog)

		api.Get("/presence", r.handleListPresence)
		api.Post("/presence", r.handleMark)
		api.Put("/presence/{id}", r.handleUpdate)
		api.Delete("/presence/{id}", r.handleRemove)

		api.Get("/dashboard", r.handleDashboard)
		api.Get("/map", r.handleMap)
		api.Get("/export.xlsx", r.handleExport)

		api.Post("/regions/{region}/verify", r.handleVerifyRegion)

		api.Get("/reset/status", r.handleResetStatus)
		api.Group(func(admin chi.Router) {
			admin.Use(r.adminOnly)
			admin.Post("/reset/check", r.handleResetCheck)
		})
	})

	return mux
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := r.services.Reset.Status()
	broker := "disabled"
	if r.services.Broker != nil {
		broker = "offline"
		if r.services.Broker.Online() {
			broker = "online"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"reset":  st.State,
		"today":  st.Today,
		"broker": broker,
		"projection": map[string]any{
			"records":  r.services.Records.Len(),
			"version":  r.services.Records.Version(),
			"rejected": r.services.Records.Rejected(),
		},
	})
}

// regionParam reads the optional ?region= filter. Unknown regions are rejected.
func (r *Router) regionParam(w http.ResponseWriter, req *http.Request) (string, bool) {
	region := strings.ToUpper(strings.TrimSpace(req.URL.Query().Get("region")))
	if region == "" || region == "ALL" {
		return "", true
	}
	if _, ok := r.services.Catalog.Region(region); !ok {
		writeError(w, http.StatusBadRequest, "unknown region "+region)
		return "", false
	}
	return region, true
}

// writeServiceError maps service and gate errors onto status codes
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case service.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrWrongPassword), errors.Is(err, auth.ErrNotConfigured):
		writeError(w, http.StatusForbidden, "access denied")
	default:
		r.logger.Error("Request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBytes)
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request entity too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

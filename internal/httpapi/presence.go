package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Guizzs26/gcm-presence/internal/service"
)

func (r *Router) handleListPresence(w http.ResponseWriter, req *http.Request) {
	region, ok := r.regionParam(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, r.services.Dashboard.Guards(r.services.Records.List(), region))
}

func (r *Router) handleMark(w http.ResponseWriter, req *http.Request) {
	var in service.MarkInput
	if !decodeJSON(w, req, &in) {
		return
	}

	region, err := r.services.Presence.RegionOf(in.PostID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !r.authorizeRegion(w, req, region) {
		return
	}

	rec, err := r.services.Presence.Mark(req.Context(), in)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (r *Router) handleUpdate(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	region, err := r.services.Presence.RegionOf(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var in service.UpdateInput
	if !decodeJSON(w, req, &in) {
		return
	}
	if !r.authorizeRegion(w, req, region) {
		return
	}

	rec, err := r.services.Presence.Update(req.Context(), id, in)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (r *Router) handleRemove(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	region, err := r.services.Presence.RegionOf(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if !r.authorizeRegion(w, req, region) {
		return
	}

	if err := r.services.Presence.Remove(req.Context(), id); err != nil {
		r.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleVerifyRegion(w http.ResponseWriter, req *http.Request) {
	region := strings.ToUpper(chi.URLParam(req, "region"))
	if _, ok := r.services.Catalog.Region(region); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown region %s", region))
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, req, &body) {
		return
	}
	if err := r.services.Gate.VerifyRegion(region, body.Password); err != nil {
		r.logger.Warn("Region password rejected", "region", region, "remote", req.RemoteAddr)
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"region": region})
}

// authorizeRegion checks the region password header. Missing is 401, wrong is 403.
func (r *Router) authorizeRegion(w http.ResponseWriter, req *http.Request, region string) bool {
	password := req.Header.Get(regionPasswordHeader)
	if password == "" {
		writeError(w, http.StatusUnauthorized, "missing "+regionPasswordHeader)
		return false
	}
	if err := r.services.Gate.VerifyRegion(region, password); err != nil {
		r.logger.Warn("Region password rejected", "region", region, "remote", req.RemoteAddr)
		r.writeServiceError(w, err)
		return false
	}
	return true
}

func (r *Router) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		password := req.Header.Get(adminPasswordHeader)
		if password == "" {
			writeError(w, http.StatusUnauthorized, "missing "+adminPasswordHeader)
			return
		}
		if err := r.services.Gate.VerifyAdmin(password); err != nil {
			r.logger.Warn("Admin password rejected", "remote", req.RemoteAddr)
			r.writeServiceError(w, err)
			return
		}
		next.ServeHTTP(w, req)
	})
}

package httpapi

import (
	"fmt"
	"net/http"

	"github.com/Guizzs26/gcm-presence/internal/catalog"
	"github.com/Guizzs26/gcm-presence/internal/models"
)

type rankView struct {
	Code      models.Rank `json:"code"`
	Label     string      `json:"label"`
	Seniority int         `json:"seniority"`
}

type regionView struct {
	catalog.Region
	Writable bool `json:"writable"` // a region password is configured
}

type catalogView struct {
	Regions       []regionView           `json:"regions"`
	Inspectorates []catalog.Inspectorate `json:"inspectorates"`
	Posts         []catalog.Post         `json:"posts"`
	Ranks         []rankView             `json:"ranks"`
}

func (r *Router) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	c := r.services.Catalog
	ranks := make([]rankView, 0, len(models.Ranks()))
	for _, rk := range models.Ranks() {
		ranks = append(ranks, rankView{Code: rk, Label: rk.Label(), Seniority: rk.Seniority()})
	}
	regions := make([]regionView, 0, len(c.Regions))
	for _, rg := range c.Regions {
		regions = append(regions, regionView{Region: rg, Writable: r.services.Gate.HasRegion(rg.ID)})
	}
	writeJSON(w, http.StatusOK, catalogView{
		Regions:       regions,
		Inspectorates: c.Inspectorates,
		Posts:         c.Posts,
		Ranks:         ranks,
	})
}

func (r *Router) handleDashboard(w http.ResponseWriter, req *http.Request) {
	region, ok := r.regionParam(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, r.services.Dashboard.Summary(r.services.Records.List(), region))
}

func (r *Router) handleMap(w http.ResponseWriter, req *http.Request) {
	region, ok := r.regionParam(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, r.services.Dashboard.Map(r.services.Records.List(), region))
}

func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) {
	region, ok := r.regionParam(w, req)
	if !ok {
		return
	}

	buf, filename, err := r.services.Export.Roster(r.services.Records.List(), region)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (r *Router) handleResetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.services.Reset.Status())
}

func (r *Router) handleResetCheck(w http.ResponseWriter, req *http.Request) {
	res, err := r.services.Reset.CheckNow(req.Context())
	if err != nil {
		r.logger.Error("Manual reset check failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "state": r.services.Reset.State()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Package api serves the dashboard data as JSON under /api/v1.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/ui/features/common"
	"github.com/leapstack-labs/qcops/internal/ui/features/deviations"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// DefaultVelocityWeeks is used when the velocity query has no weeks.
const DefaultVelocityWeeks = 12

// Handlers serves the JSON API.
type Handlers struct {
	deps *common.Deps
}

// NewHandlers creates the handlers.
func NewHandlers(deps *common.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// SetupRoutes registers the API routes.
func SetupRoutes(r chi.Router, deps *common.Deps) {
	h := NewHandlers(deps)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", h.Snapshot)
		r.Get("/kpis", h.KPIs)
		r.Get("/lots", h.Lots)
		r.Get("/lineage/{lot}", h.Lineage)
		r.Get("/cqa", h.CQA)
		r.Get("/partners", h.Partners)
		r.Get("/partners/{partner}", h.Partner)
		r.Get("/deviations", h.Deviations)
		r.Get("/velocity", h.Velocity)
		r.Get("/regulatory", h.Regulatory)
	})
}

// Snapshot returns the metadata of the snapshot being served.
func (h *Handlers) Snapshot(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, h.deps.Snapshot().Meta())
}

// KPIs returns the network headline numbers.
func (h *Handlers) KPIs(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, analytics.NetworkKPIs(h.deps.Snapshot()))
}

// Lots returns the lots matching the query filter.
func (h *Handlers) Lots(w http.ResponseWriter, r *http.Request) {
	f, err := dataset.ParseLotFilter(r.URL.Query().Get)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	lots := h.deps.Snapshot().FilterLots(f)
	if lots == nil {
		lots = []*core.Lot{}
	}
	common.WriteJSON(w, http.StatusOK, lots)
}

// Lineage resolves a Drug Product lot's chain.
func (h *Handlers) Lineage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "lot")
	snap := h.deps.Snapshot()
	if _, ok := snap.Lot(id); !ok {
		common.WriteError(w, http.StatusNotFound, "lot "+id+" not found")
		return
	}
	chain, err := snap.Resolve(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrLineageIncomplete) {
			status = http.StatusUnprocessableEntity
		}
		common.WriteError(w, status, err.Error())
		return
	}
	common.WriteJSON(w, http.StatusOK, chain)
}

// CQA compares a DS lot with a DP lot.
func (h *Handlers) CQA(w http.ResponseWriter, r *http.Request) {
	ds, dp := r.URL.Query().Get("ds"), r.URL.Query().Get("dp")
	if ds == "" || dp == "" {
		common.WriteError(w, http.StatusBadRequest, "ds and dp query parameters are required")
		return
	}
	rows, err := h.deps.Snapshot().Cascade(ds, dp)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrMissingAttribute) {
			status = http.StatusUnprocessableEntity
		}
		common.WriteError(w, status, err.Error())
		return
	}
	common.WriteJSON(w, http.StatusOK, rows)
}

// Partners returns the performance matrix.
func (h *Handlers) Partners(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSON(w, http.StatusOK, analytics.PartnerMatrix(h.deps.Snapshot()))
}

// Partner returns one partner's deep dive.
func (h *Handlers) Partner(w http.ResponseWriter, r *http.Request) {
	dd, err := analytics.PartnerDeepDive(h.deps.Snapshot(), chi.URLParam(r, "partner"))
	if err != nil {
		common.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	common.WriteJSON(w, http.StatusOK, dd)
}

// Deviations returns the board, Pareto and closure times under the query
// filter.
func (h *Handlers) Deviations(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Snapshot()
	q := r.URL.Query()
	f, err := analytics.ParseFilter(snap, map[string]string{
		"product": q.Get("product"),
		"partner": q.Get("partner"),
		"type":    q.Get("type"),
	})
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	common.WriteJSON(w, http.StatusOK, map[string]any{
		"board":   analytics.Board(snap, f),
		"pareto":  analytics.OOSPareto(snap, f),
		"closure": analytics.ClosureTimes(snap, f),
	})
}

// Velocity returns weekly release counts with the forecast.
func (h *Handlers) Velocity(w http.ResponseWriter, r *http.Request) {
	weeks := DefaultVelocityWeeks
	if s := r.URL.Query().Get("weeks"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			common.WriteError(w, http.StatusBadRequest, "weeks must be a non-negative integer")
			return
		}
		weeks = n
	}
	common.WriteJSON(w, http.StatusOK, analytics.ReleaseVelocity(h.deps.Snapshot(), weeks))
}

// Regulatory returns the regulatory data summary.
func (h *Handlers) Regulatory(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Snapshot()
	req, err := deviations.ParseReportRequest(snap, r)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := analytics.Regulatory(snap, req.Product, req.From, req.To)
	if err != nil {
		common.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	common.WriteJSON(w, http.StatusOK, sum)
}

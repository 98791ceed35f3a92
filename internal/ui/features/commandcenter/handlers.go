// Package commandcenter is the landing page: network KPIs, partner
// locations, the performance matrix and release velocity.
package commandcenter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/ui/components"
	"github.com/leapstack-labs/qcops/internal/ui/features/common"
)

// VelocityWeeks is how many trailing weeks the velocity chart shows.
const VelocityWeeks = 12

// Handlers serves the command center.
type Handlers struct {
	deps *common.Deps
}

// NewHandlers creates the handlers.
func NewHandlers(deps *common.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// SetupRoutes registers the command center routes.
func SetupRoutes(r chi.Router, deps *common.Deps) {
	h := NewHandlers(deps)
	r.Get("/", h.Page)
	r.Get("/updates", h.Updates)
}

// Page renders the full command center.
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	h.deps.Page(w, r, http.StatusOK, components.PageData{
		Title:       "Command Center",
		CurrentPath: "/",
		UpdatesURL:  "/updates",
	}, View(h.deps.Snapshot()))
}

// Updates streams the command center on every snapshot refresh.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	h.deps.Stream(w, r, func(context.Context) (templ.Component, error) {
		return View(h.deps.Snapshot()), nil
	})
}

func bandTone(b analytics.Band) string {
	switch b {
	case analytics.BandOnTrack:
		return "ok"
	case analytics.BandNeedsImprovement:
		return "warn"
	}
	return "bad"
}

// View is the command center body for snap.
func View(snap *dataset.Snapshot) templ.Component {
	k := analytics.NetworkKPIs(snap)
	matrix := analytics.PartnerMatrix(snap)
	velocity := analytics.ReleaseVelocity(snap, VelocityWeeks)

	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Elem("h1", "External QC Command Center")

		atRiskTone := ""
		if k.AtRiskLots > 0 {
			atRiskTone = "bad"
		}
		capaTone := ""
		if k.OpenCAPAs > 0 {
			capaTone = "warn"
		}
		h.Raw(`<div class="kpis">`)
		h.Render(ctx, components.KPI("Total lots", components.Int(k.TotalLots), ""))
		h.Render(ctx, components.KPI("Pending", components.Int(k.PendingLots), ""))
		h.Render(ctx, components.KPI("Released", components.Int(k.ReleasedLots), "ok"))
		h.Render(ctx, components.KPI("At risk", components.Int(k.AtRiskLots), atRiskTone))
		h.Render(ctx, components.KPI("Active deviations", components.Int(k.ActiveDeviations), ""))
		h.Render(ctx, components.KPI("Open CAPAs", components.Int(k.OpenCAPAs), capaTone))
		h.Raw("</div>")

		h.Render(ctx, components.Grid(
			components.Section("Partner network", networkTable(snap)),
			components.Section("Release velocity", velocityBars(velocity),
				components.Paragraph(fmt.Sprintf("Mean %.1f releases per week; forecast factor %.2f.", velocity.Mean, snap.Meta().ForecastFactor))),
		))
		h.Render(ctx, components.Section("Partner performance", matrixTable(matrix)))
	})
}

func networkTable(snap *dataset.Snapshot) templ.Component {
	var rows [][]components.Cell
	for _, p := range snap.Partners() {
		rows = append(rows, []components.Cell{
			{Text: p.Name, Href: "/partners/" + url.PathEscape(p.Name)},
			components.T(string(p.Role)),
			components.T(p.Specialty),
			components.T(p.Location),
			components.T(fmt.Sprintf("%.4f, %.4f", p.Latitude, p.Longitude)),
			components.T(strconv.Itoa(p.SLADays) + " d"),
		})
	}
	return components.Table([]string{"Partner", "Role", "Specialty", "Location", "Coordinates", "SLA"}, rows, "No partners.")
}

func matrixTable(matrix []analytics.PartnerPerformance) templ.Component {
	rows := make([][]components.Cell, 0, len(matrix))
	for _, p := range matrix {
		rows = append(rows, []components.Cell{
			{Text: p.Partner.Name, Href: "/partners/" + url.PathEscape(p.Partner.Name)},
			components.T(components.Int(p.Lots)),
			{Text: components.Pct(p.OnTimeRate), Tone: bandTone(p.Band)},
			components.T(components.Int(p.Deviations)),
			components.T(components.Pct(p.OOSRate)),
			components.T(components.Int(p.AgedDeviations)),
			{Text: string(p.Band), Tone: bandTone(p.Band)},
		})
	}
	return components.Table(
		[]string{"Partner", "Lots", "On-time", "Deviations", "OOS rate", "Aged (>30d)", "Status"},
		rows, "No partners.")
}

func velocityBars(v analytics.Velocity) templ.Component {
	bars := make([]components.Bar, 0, len(v.Weeks))
	for _, wk := range v.Weeks {
		bars = append(bars, components.Bar{
			Label: "w/c " + components.Date(wk.Week),
			Value: float64(wk.Releases),
			Note:  "forecast " + strconv.Itoa(wk.Forecast),
		})
	}
	return components.Bars(bars, "No releases yet.")
}

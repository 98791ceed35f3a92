// Package partners is the partner performance matrix and the single-partner
// deep dive.
package partners

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/ui/components"
	"github.com/leapstack-labs/qcops/internal/ui/features/common"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Handlers serves partner pages.
type Handlers struct {
	deps *common.Deps
}

// NewHandlers creates the handlers.
func NewHandlers(deps *common.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// SetupRoutes registers the partner routes.
func SetupRoutes(r chi.Router, deps *common.Deps) {
	h := NewHandlers(deps)
	r.Route("/partners", func(r chi.Router) {
		r.Get("/", h.Matrix)
		r.Get("/updates", h.MatrixUpdates)
		r.Get("/{partner}", h.Detail)
		r.Get("/{partner}/updates", h.DetailUpdates)
	})
}

func partnerPath(name string) string {
	return "/partners/" + url.PathEscape(name)
}

// Matrix renders every partner's scorecard row.
func (h *Handlers) Matrix(w http.ResponseWriter, r *http.Request) {
	h.deps.Page(w, r, http.StatusOK, components.PageData{
		Title:       "Partners",
		CurrentPath: "/partners",
		UpdatesURL:  "/partners/updates",
	}, MatrixView(h.deps.Snapshot()))
}

// MatrixUpdates streams the matrix.
func (h *Handlers) MatrixUpdates(w http.ResponseWriter, r *http.Request) {
	h.deps.Stream(w, r, func(context.Context) (templ.Component, error) {
		return MatrixView(h.deps.Snapshot()), nil
	})
}

// Detail renders one partner's deep dive.
func (h *Handlers) Detail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "partner")
	page := components.PageData{
		Title:       name,
		CurrentPath: "/partners",
		UpdatesURL:  partnerPath(name) + "/updates",
	}
	dd, err := analytics.PartnerDeepDive(h.deps.Snapshot(), name)
	if err != nil {
		page.UpdatesURL = ""
		h.deps.Page(w, r, http.StatusNotFound, page, components.Alert("bad", "Partner not found.", err.Error()))
		return
	}
	h.deps.Page(w, r, http.StatusOK, page, DetailView(dd))
}

// DetailUpdates streams one partner's deep dive.
func (h *Handlers) DetailUpdates(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "partner")
	h.deps.Stream(w, r, func(context.Context) (templ.Component, error) {
		dd, err := analytics.PartnerDeepDive(h.deps.Snapshot(), name)
		if err != nil {
			return nil, err
		}
		return DetailView(dd), nil
	})
}

// BandTone maps a performance band to a display tone.
func BandTone(b analytics.Band) string {
	switch b {
	case analytics.BandOnTrack:
		return "ok"
	case analytics.BandNeedsImprovement:
		return "warn"
	}
	return "bad"
}

// MatrixView lists all partners with their grade.
func MatrixView(snap *dataset.Snapshot) templ.Component {
	matrix := analytics.PartnerMatrix(snap)
	rows := make([][]components.Cell, 0, len(matrix))
	for _, p := range matrix {
		rows = append(rows, []components.Cell{
			{Text: p.Partner.Name, Href: partnerPath(p.Partner.Name)},
			components.T(string(p.Partner.Role)),
			components.T(p.Partner.Specialty),
			components.T(p.Partner.Location),
			components.T(fmt.Sprintf("%d", p.Partner.SLADays)),
			components.T(components.Int(p.Lots)),
			{Text: components.Pct(p.OnTimeRate), Tone: BandTone(p.Band)},
			components.T(components.Int(p.Deviations)),
			components.T(components.Pct(p.OOSRate)),
			components.T(components.Int(p.AgedDeviations)),
			{Text: string(p.Band), Tone: BandTone(p.Band)},
		})
	}
	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Elem("h1", "Partner Performance")
		h.Render(ctx, components.Table(
			[]string{"Partner", "Role", "Specialty", "Location", "SLA (days)", "Lots", "On-time", "Deviations", "OOS rate", "Aged", "Status"},
			rows, "No partners."))
	})
}

// DetailView is the deep dive body.
func DetailView(dd *analytics.DeepDive) templ.Component {
	return components.Func(func(ctx context.Context, h *components.HTML) {
		p := dd.Partner
		h.Elem("h1", p.Name)
		h.Elem("p", fmt.Sprintf("%s · %s · %s · SLA %d days", p.Role, p.Specialty, p.Location, p.SLADays), "class", "muted")

		capTone := "bad"
		switch {
		case !dd.Capability.Sufficient():
			capTone = ""
		case dd.Capability.Capable():
			capTone = "ok"
		}
		h.Raw(`<div class="kpis">`)
		h.Render(ctx, components.KPI("Lots", components.Int(len(dd.Lots)), ""))
		h.Render(ctx, components.KPI("On-time rate", components.Pct(dd.OnTimeRate), BandTone(analytics.BandFor(dd.OnTimeRate))))
		h.Render(ctx, components.KPI("OOS rate", components.Pct(dd.OOSRate), ""))
		h.Render(ctx, components.KPI("Open CAPAs", components.Int(dd.OpenCAPAs), ""))
		h.Render(ctx, components.KPI("Purity Cpk", dd.Capability.String(), capTone))
		h.Raw("</div>")

		h.Render(ctx, components.Grid(
			components.Section("Process capability", capabilityView(dd.Capability)),
			components.Section("Turnaround time", tatBars(dd)),
		))
		h.Render(ctx, components.Section("Anomaly screen", anomalyView(dd.Anomalies)))
		h.Render(ctx, components.Section("Deviations", deviationTable(dd.Deviations)))
		h.Render(ctx, components.Section("Tech transfers", transferTable(dd.Transfers)))
	})
}

func capabilityView(c analytics.Capability) templ.Component {
	return components.Func(func(ctx context.Context, h *components.HTML) {
		if !c.Sufficient() {
			h.Render(ctx, components.Alert("", "Insufficient data.", "At least two purity results are needed to estimate Cpk."))
			return
		}
		tone := "bad"
		if c.Capable() {
			tone = "ok"
		}
		h.Render(ctx, components.Alert(tone, c.Status()+".", fmt.Sprintf(
			"Cpk %s over %d lots (mean %.2f%%, sigma %.3f) against limits %.0f-%.0f%% and target %.2f.",
			c, c.N, c.Mean, c.Sigma, analytics.PurityLSL, analytics.PurityUSL, analytics.CpkTarget)))
	})
}

func tatBars(dd *analytics.DeepDive) templ.Component {
	bars := make([]components.Bar, 0, len(dd.TAT))
	for _, b := range dd.TAT {
		tone := ""
		if b.Lo > float64(dd.SLADays) {
			tone = "bad"
		}
		bars = append(bars, components.Bar{
			Label: fmt.Sprintf("%.0f-%.0f d", b.Lo, b.Hi),
			Value: float64(b.Count),
			Tone:  tone,
		})
	}
	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Render(ctx, components.Bars(bars, "No lots."))
		if len(bars) > 0 {
			h.Elem("p", fmt.Sprintf("SLA %d days", dd.SLADays), "class", "muted")
		}
	})
}

func anomalyView(s analytics.Screen) templ.Component {
	return components.Func(func(ctx context.Context, h *components.HTML) {
		if !s.Ran {
			h.Elem("p", fmt.Sprintf("Not run: %d lots with purity and impurity results, %d needed.",
				s.Samples, analytics.MinAnomalySamples), "class", "muted")
			return
		}
		rows := make([][]components.Cell, 0, len(s.Anomalies))
		for _, a := range s.Anomalies {
			rows = append(rows, []components.Cell{
				{Text: a.Lot.ID, Href: "/genealogy/" + a.Lot.ID},
				components.T(string(a.Lot.Stage)),
				components.T(components.Num(a.Lot.Attributes.Purity)),
				components.T(components.Num(a.Lot.Attributes.MainImpurity)),
				{Text: fmt.Sprintf("%.2f", a.Distance), Tone: "warn"},
			})
		}
		h.Render(ctx, components.Table([]string{"Lot", "Stage", "Purity (%)", "Main impurity (%)", "Distance²"},
			rows, fmt.Sprintf("No anomalies among %d lots.", s.Samples)))
	})
}

func severityTone(s analytics.Severity) string {
	switch s {
	case analytics.SeverityCritical:
		return "bad"
	case analytics.SeverityWarning:
		return "warn"
	}
	return ""
}

func deviationTable(devs []*core.Deviation) templ.Component {
	rows := make([][]components.Cell, 0, len(devs))
	for _, d := range devs {
		rows = append(rows, []components.Cell{
			components.T(d.ID),
			{Text: d.LotID, Href: "/genealogy/" + d.LotID},
			components.T(string(d.Type)),
			components.T(string(d.Status)),
			{Text: components.Int(d.AgeDays), Tone: severityTone(analytics.SeverityFor(d.AgeDays))},
			components.T(d.RootCause),
		})
	}
	return components.Table([]string{"Deviation", "Lot", "Type", "Status", "Age (days)", "Root cause"}, rows, "No deviations.")
}

func transferTable(ts []core.TechTransfer) templ.Component {
	rows := make([][]components.Cell, 0, len(ts))
	for _, t := range ts {
		rows = append(rows, []components.Cell{
			components.T(t.Method),
			components.T(t.From),
			components.T(t.Status),
			components.T(components.Date(t.TargetDate)),
		})
	}
	return components.Table([]string{"Method", "From", "Status", "Target"}, rows, "No tech transfers.")
}

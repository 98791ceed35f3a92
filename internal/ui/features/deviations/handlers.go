// Package deviations is the deviation and CAPA tracker: a workflow board,
// the OOS root-cause Pareto, closure cycle times and the regulatory report.
package deviations

import (
	"context"
	"fmt"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/ui/components"
	"github.com/leapstack-labs/qcops/internal/ui/features/common"
	"github.com/leapstack-labs/qcops/pkg/core"
)

var filterKeys = []string{"product", "partner", "type"}

// Handlers serves the deviation tracker.
type Handlers struct {
	deps *common.Deps
}

// NewHandlers creates the handlers.
func NewHandlers(deps *common.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// SetupRoutes registers the deviation routes.
func SetupRoutes(r chi.Router, deps *common.Deps) {
	h := NewHandlers(deps)
	r.Route("/deviations", func(r chi.Router) {
		r.Get("/", h.Page)
		r.Get("/updates", h.Updates)
		r.Get("/report", h.Report)
	})
}

// Page renders the tracker with the remembered filter.
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Snapshot()
	sel := h.deps.Remember(w, r, filterKeys...)
	page := components.PageData{Title: "Deviations", CurrentPath: "/deviations", UpdatesURL: "/deviations/updates"}

	f, err := analytics.ParseFilter(snap, sel)
	if err != nil {
		h.deps.Page(w, r, http.StatusBadRequest, page, components.Alert("bad", "Invalid filter.", err.Error()))
		return
	}
	h.deps.Page(w, r, http.StatusOK, page, View(snap, f))
}

// Updates streams the tracker using the filter stored in the session.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	sel := h.deps.Recall(r, filterKeys...)
	h.deps.Stream(w, r, func(context.Context) (templ.Component, error) {
		snap := h.deps.Snapshot()
		f, err := analytics.ParseFilter(snap, sel)
		if err != nil {
			return nil, err
		}
		return View(snap, f), nil
	})
}

func productOptions() []string {
	out := make([]string, len(core.Products))
	for i, p := range core.Products {
		out[i] = string(p)
	}
	return out
}

func partnerOptions(snap *dataset.Snapshot) []string {
	out := make([]string, 0, len(snap.Partners()))
	for _, p := range snap.Partners() {
		out = append(out, p.Name)
	}
	return out
}

func typeOptions() []string {
	out := make([]string, len(core.DeviationTypes))
	for i, t := range core.DeviationTypes {
		out[i] = string(t)
	}
	return out
}

// View is the tracker body for snap under f.
func View(snap *dataset.Snapshot, f analytics.Filter) templ.Component {
	board := analytics.Board(snap, f)
	pareto := analytics.OOSPareto(snap, f)
	closure := analytics.ClosureTimes(snap, f)

	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Elem("h1", "Deviation & CAPA Tracker")
		h.Render(ctx, components.FilterForm("/deviations",
			components.Select{Name: "product", Label: "Product", Options: productOptions(), Selected: string(f.Product), AllLabel: "All products"},
			components.Select{Name: "partner", Label: "Partner", Options: partnerOptions(snap), Selected: f.Partner, AllLabel: "All partners"},
			components.Select{Name: "type", Label: "Type", Options: typeOptions(), Selected: string(f.Type), AllLabel: "All types"},
		))

		h.Render(ctx, components.Section("Workflow", boardView(board)))
		h.Render(ctx, components.Grid(
			components.Section("OOS root causes", paretoBars(pareto)),
			components.Section("Closure cycle time", closureBars(closure), closureSummary(closure)),
		))

		reportURL := "/deviations/report"
		if f.Product != "" {
			reportURL += "?product=" + f.Product.Prefix()
		}
		h.Raw("<p>")
		h.Elem("a", "Regulatory data summary →", "href", reportURL)
		h.Raw("</p>")
	})
}

func boardView(cols []analytics.Column) templ.Component {
	return components.Func(func(_ context.Context, h *components.HTML) {
		h.Raw(`<div class="board">`)
		for _, col := range cols {
			h.Raw(`<div class="column">`)
			h.Elem("h3", fmt.Sprintf("%s (%d)", col.Status, len(col.Cards)))
			for _, c := range col.Cards {
				d := c.Deviation
				h.Open("div", "class", "card "+string(c.Severity), "id", "card-"+d.ID)
				h.Elem("strong", d.ID)
				h.Raw(" ")
				h.Text(string(d.Type))
				h.Raw("<br>")
				h.Elem("a", d.LotID, "href", "/genealogy/"+d.LotID)
				h.Raw("<br>")
				h.Textf("%s · %d days", d.Partner, d.AgeDays)
				if d.RootCause != "" {
					h.Raw("<br>")
					h.Elem("span", d.RootCause, "class", "muted")
				}
				h.Close("div")
			}
			h.Raw("</div>")
		}
		h.Raw("</div>")
	})
}

func paretoBars(causes []analytics.CauseCount) templ.Component {
	bars := make([]components.Bar, 0, len(causes))
	for _, c := range causes {
		bars = append(bars, components.Bar{
			Label: c.RootCause,
			Value: float64(c.Count),
			Note:  components.Pct(c.Cumulative) + " cum.",
			Tone:  "bad",
		})
	}
	return components.Bars(bars, "No OOS deviations match.")
}

func closureBars(c analytics.Closure) templ.Component {
	bars := make([]components.Bar, 0, len(c.Bins))
	for _, b := range c.Bins {
		tone := ""
		if b.Lo >= float64(c.TargetDays) {
			tone = "warn"
		}
		bars = append(bars, components.Bar{
			Label: fmt.Sprintf("%.0f-%.0f d", b.Lo, b.Hi),
			Value: float64(b.Count),
			Tone:  tone,
		})
	}
	return components.Bars(bars, "No closed deviations match.")
}

func closureSummary(c analytics.Closure) templ.Component {
	if c.Closed == 0 {
		return nil
	}
	return components.Paragraph(fmt.Sprintf("%d closed, mean %.1f days, %d within the %d day target.",
		c.Closed, c.MeanAgeDays, c.WithinTarget, c.TargetDays))
}

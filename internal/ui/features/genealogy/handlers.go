// Package genealogy is the lot genealogy and CQA cascade view.
package genealogy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/qcops/internal/cqa"
	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/ui/components"
	"github.com/leapstack-labs/qcops/internal/ui/features/common"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Handlers serves genealogy pages.
type Handlers struct {
	deps *common.Deps
}

// NewHandlers creates the handlers.
func NewHandlers(deps *common.Deps) *Handlers {
	return &Handlers{deps: deps}
}

// SetupRoutes registers the genealogy routes.
func SetupRoutes(r chi.Router, deps *common.Deps) {
	h := NewHandlers(deps)
	r.Route("/genealogy", func(r chi.Router) {
		r.Get("/", h.Index)
		r.Get("/updates", h.IndexUpdates)
		r.Get("/{lot}", h.Lot)
		r.Get("/{lot}/updates", h.LotUpdates)
	})
}

func parseProduct(s string) core.Product {
	if p, err := core.ParseProduct(s); err == nil {
		return p
	}
	return ""
}

// Index lists Drug Product lots for the remembered product.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	sel := h.deps.Remember(w, r, "product")
	h.deps.Page(w, r, http.StatusOK, components.PageData{
		Title:       "Genealogy",
		CurrentPath: "/genealogy",
		UpdatesURL:  "/genealogy/updates",
	}, IndexView(h.deps.Snapshot(), parseProduct(sel["product"])))
}

// IndexUpdates streams the lot list.
func (h *Handlers) IndexUpdates(w http.ResponseWriter, r *http.Request) {
	product := parseProduct(h.deps.Recall(r, "product")["product"])
	h.deps.Stream(w, r, func(context.Context) (templ.Component, error) {
		return IndexView(h.deps.Snapshot(), product), nil
	})
}

// Lot renders one lot's genealogy.
func (h *Handlers) Lot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "lot")
	snap := h.deps.Snapshot()
	page := components.PageData{
		Title:       id,
		CurrentPath: "/genealogy",
		UpdatesURL:  "/genealogy/" + id + "/updates",
	}
	if _, ok := snap.Lot(id); !ok {
		page.UpdatesURL = ""
		h.deps.Page(w, r, http.StatusNotFound, page, components.Alert("bad", "Lot not found.", fmt.Sprintf("No lot with id %s.", id)))
		return
	}
	h.deps.Page(w, r, http.StatusOK, page, LotView(snap, id))
}

// LotUpdates streams one lot's genealogy.
func (h *Handlers) LotUpdates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "lot")
	h.deps.Stream(w, r, func(context.Context) (templ.Component, error) {
		snap := h.deps.Snapshot()
		if _, ok := snap.Lot(id); !ok {
			return nil, fmt.Errorf("lot %s not in current snapshot", id)
		}
		return LotView(snap, id), nil
	})
}

func productOptions() []string {
	out := make([]string, len(core.Products))
	for i, p := range core.Products {
		out[i] = string(p)
	}
	return out
}

// IndexView lists Drug Product lots for product, all products when empty.
func IndexView(snap *dataset.Snapshot, product core.Product) templ.Component {
	lots := snap.DrugProductLots(product)
	rows := make([][]components.Cell, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, []components.Cell{
			{Text: l.ID, Href: "/genealogy/" + l.ID},
			components.T(string(l.Product)),
			components.T(l.Partner),
			components.T(string(l.Status)),
			components.T(components.Date(l.CreatedAt)),
			components.T(components.DatePtr(l.ReleasedAt)),
			components.T(components.Int(len(snap.DeviationsForLot(l.ID)))),
		})
	}
	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Elem("h1", "Lot Genealogy")
		h.Render(ctx, components.FilterForm("/genealogy",
			components.Select{Name: "product", Label: "Product", Options: productOptions(), Selected: string(product), AllLabel: "All products"},
		))
		h.Render(ctx, components.Section("Drug Product lots", components.Table(
			[]string{"Lot", "Product", "Partner", "Status", "Created", "Released", "Deviations"},
			rows, "No Drug Product lots.")))
	})
}

// LotView shows id's details, its genealogy and, for Drug Product lots,
// the CQA cascade.
func LotView(snap *dataset.Snapshot, id string) templ.Component {
	lot, _ := snap.Lot(id)
	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Elem("h1", lot.ID)
		h.Elem("p", fmt.Sprintf("%s · %s · %s · %s", lot.Product, lot.Stage, lot.Partner, lot.Status), "class", "muted")

		if lot.Stage == core.StageDrugProduct {
			h.Render(ctx, cascadeView(snap, lot.ID))
		} else {
			h.Render(ctx, components.Grid(
				components.Section("Made from", lotList(snap.Index().Parents(lot.ID), "Raw material, no parents.")),
				components.Section("Used in", lotList(snap.Index().Children(lot.ID), "Not yet consumed.")),
			))
		}
		h.Render(ctx, components.Section("Deviations", deviationTable(snap.DeviationsForLot(lot.ID))))
	})
}

func cascadeView(snap *dataset.Snapshot, dpLotID string) templ.Component {
	chain, err := snap.Resolve(dpLotID)
	var rows []cqa.Row
	if err == nil {
		rows, err = snap.Cascade(chain.DrugSubstance.ID, chain.DrugProduct.ID)
	}
	return components.Func(func(ctx context.Context, h *components.HTML) {
		if err != nil {
			title := "Cascade unavailable."
			if errors.Is(err, core.ErrLineageIncomplete) {
				title = "Lineage incomplete."
			}
			h.Render(ctx, components.Alert("warn", title, err.Error()))
			return
		}
		h.Render(ctx, components.Section("Genealogy", chainView(chain)))
		h.Render(ctx, components.Section("CQA cascade", cascadeTable(rows)))
		if flagged := cqa.Flagged(rows); len(flagged) > 0 {
			h.Render(ctx, components.Alert("warn", "Drift detected.",
				fmt.Sprintf("%d attribute(s) moved beyond the drift threshold between DS and DP.", len(flagged))))
		}
	})
}

func chainView(c *core.Chain) templ.Component {
	return components.Func(func(_ context.Context, h *components.HTML) {
		node := func(l *core.Lot) {
			h.Open("div", "class", "node")
			h.Elem("a", l.ID, "href", "/genealogy/"+l.ID)
			h.Raw("<br>")
			h.Elem("span", fmt.Sprintf("%s · %s", l.Stage, l.Partner), "class", "muted")
			h.Close("div")
		}
		arrow := func(s string) { h.Elem("span", s, "class", "arrow") }

		h.Raw(`<div class="chain">`)
		node(c.Antibody)
		arrow("+")
		node(c.Oligo)
		arrow("→")
		node(c.DrugSubstance)
		arrow("→")
		node(c.DrugProduct)
		h.Raw("</div>")
	})
}

func conformTone(ok *bool) string {
	if ok != nil && !*ok {
		return "bad"
	}
	return ""
}

func trendTone(t cqa.Trend) string {
	switch t {
	case cqa.TrendingHigh, cqa.TrendingLow:
		return "warn"
	case cqa.InTrend:
		return "ok"
	}
	return ""
}

func cascadeTable(rows []cqa.Row) templ.Component {
	cells := make([][]components.Cell, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, []components.Cell{
			components.T(r.Attribute),
			components.T(r.DSSpec),
			{Text: components.Num(r.DSResult), Tone: conformTone(r.DSConforms)},
			components.T(r.DPSpec),
			{Text: components.Num(r.DPResult), Tone: conformTone(r.DPConforms)},
			{Text: string(r.Trend), Tone: trendTone(r.Trend)},
		})
	}
	return components.Table([]string{"Attribute", "DS spec", "DS result", "DP spec", "DP result", "Trend"}, cells, "No attributes.")
}

func lotList(lots []*core.Lot, empty string) templ.Component {
	rows := make([][]components.Cell, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, []components.Cell{
			{Text: l.ID, Href: "/genealogy/" + l.ID},
			components.T(string(l.Stage)),
			components.T(l.Partner),
			components.T(string(l.Status)),
		})
	}
	return components.Table([]string{"Lot", "Stage", "Partner", "Status"}, rows, empty)
}

func deviationTable(devs []*core.Deviation) templ.Component {
	rows := make([][]components.Cell, 0, len(devs))
	for _, d := range devs {
		rows = append(rows, []components.Cell{
			components.T(d.ID),
			components.T(string(d.Type)),
			components.T(string(d.Status)),
			components.T(components.Int(d.AgeDays)),
			components.T(d.RootCause),
		})
	}
	return components.Table([]string{"Deviation", "Type", "Status", "Age (days)", "Root cause"}, rows, "No deviations.")
}

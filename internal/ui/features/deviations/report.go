package deviations

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/report"
	"github.com/leapstack-labs/qcops/internal/ui/components"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// ReportRequest is a parsed regulatory summary query.
type ReportRequest struct {
	Product core.Product
	From    time.Time
	To      time.Time
	// Format is "" for the in-page view, or "md"/"html" for a download.
	Format string
}

// ParseReportRequest reads product, from, to and format from the query.
// The product defaults to DM1 and the period to the full lot history.
func ParseReportRequest(snap *dataset.Snapshot, r *http.Request) (ReportRequest, error) {
	q := r.URL.Query()
	req := ReportRequest{Product: core.ProductDM1, Format: q.Get("format")}
	if s := q.Get("product"); s != "" {
		p, err := core.ParseProduct(s)
		if err != nil {
			return req, err
		}
		req.Product = p
	}
	req.From, req.To = analytics.CreatedRange(snap)
	for key, dst := range map[string]*time.Time{"from": &req.From, "to": &req.To} {
		s := q.Get(key)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return req, fmt.Errorf("invalid %s date %q (want YYYY-MM-DD)", key, s)
		}
		*dst = t
	}
	switch req.Format {
	case "", "md", "html":
	default:
		return req, fmt.Errorf("unknown format %q (want md|html)", req.Format)
	}
	return req, nil
}

// Report renders the regulatory data summary, or downloads it when a
// format is given.
func (h *Handlers) Report(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Snapshot()
	page := components.PageData{Title: "Regulatory Summary", CurrentPath: "/deviations"}

	req, err := ParseReportRequest(snap, r)
	if err == nil {
		var sum *analytics.RegulatorySummary
		sum, err = analytics.Regulatory(snap, req.Product, req.From, req.To)
		if err == nil {
			h.serveReport(w, r, page, req, sum)
			return
		}
	}
	h.deps.Page(w, r, http.StatusBadRequest, page, components.Alert("bad", "Invalid report request.", err.Error()))
}

func (h *Handlers) serveReport(w http.ResponseWriter, r *http.Request, page components.PageData, req ReportRequest, sum *analytics.RegulatorySummary) {
	switch req.Format {
	case "md":
		md, err := report.Markdown(r.Context(), sum)
		if err != nil {
			h.deps.Log().Error("markdown conversion failed", "error", err)
			http.Error(w, "failed to build report", http.StatusInternalServerError)
			return
		}
		attachment(w, report.Filename(sum, "md"), "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
	case "html":
		attachment(w, report.Filename(sum, "html"), "text/html; charset=utf-8")
		if err := report.RenderHTML(r.Context(), w, sum); err != nil {
			h.deps.Log().Error("report render failed", "error", err)
		}
	default:
		h.deps.Page(w, r, http.StatusOK, page, reportView(sum))
	}
}

func attachment(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}

func reportView(sum *analytics.RegulatorySummary) templ.Component {
	base := fmt.Sprintf("/deviations/report?product=%s&from=%s&to=%s",
		sum.Product.Prefix(), sum.From.Format(time.DateOnly), sum.To.Format(time.DateOnly))
	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Raw(`<p class="actions">`)
		h.Elem("a", "Download Markdown", "href", base+"&format=md", "class", "button")
		h.Raw(" ")
		h.Elem("a", "Download HTML", "href", base+"&format=html", "class", "button")
		h.Raw("</p>")
		h.Render(ctx, report.Summary(sum))
	})
}

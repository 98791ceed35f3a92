// Package report renders the regulatory data summary as HTML and Markdown.
//
// The HTML form is embedded in the dashboard and offered as a download; the
// Markdown form is produced from the same HTML so both always agree.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/a-h/templ"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/ui/components"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Title returns the report heading for sum.
func Title(sum *analytics.RegulatorySummary) string {
	return "Regulatory Data Summary: " + string(sum.Product)
}

// Filename returns a download name such as
// regulatory-DM1-2023-09-01_2023-10-27.md.
func Filename(sum *analytics.RegulatorySummary, ext string) string {
	return fmt.Sprintf("regulatory-%s-%s_%s.%s",
		sum.Product.Prefix(), sum.From.Format(time.DateOnly), sum.To.Format(time.DateOnly), ext)
}

// Summary is the report body, without a document frame.
func Summary(sum *analytics.RegulatorySummary) templ.Component {
	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Open("article", "class", "report")
		h.Elem("h1", Title(sum))
		h.Elem("p", fmt.Sprintf("Period: %s to %s", components.Date(sum.From), components.Date(sum.To)))

		open := 0
		for _, d := range sum.Deviations {
			if d.Open() {
				open++
			}
		}
		h.Elem("h2", "Overview")
		h.Raw("<ul>")
		h.Elem("li", "Lots manufactured: "+strconv.Itoa(len(sum.Lots)))
		h.Elem("li", "Lots released: "+strconv.Itoa(sum.Released))
		h.Elem("li", "Deviations raised: "+strconv.Itoa(len(sum.Deviations)))
		h.Elem("li", "Deviations open: "+strconv.Itoa(open))
		h.Raw("</ul>")

		h.Elem("h2", "Lots")
		h.Render(ctx, components.Table(
			[]string{"Lot", "Stage", "Partner", "Status", "Created", "Released", "Purity (%)"},
			lotRows(sum.Lots),
			"No lots in this period.",
		))

		h.Elem("h2", "Deviations")
		h.Render(ctx, components.Table(
			[]string{"Deviation", "Lot", "Type", "Status", "Age (days)", "Root cause"},
			deviationRows(sum.Deviations),
			"No deviations in this period.",
		))
		h.Close("article")
	})
}

func lotRows(lots []*core.Lot) [][]components.Cell {
	rows := make([][]components.Cell, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, []components.Cell{
			components.T(l.ID),
			components.T(l.Stage.String()),
			components.T(l.Partner),
			components.T(string(l.Status)),
			components.T(components.Date(l.CreatedAt)),
			components.T(components.DatePtr(l.ReleasedAt)),
			components.T(components.Num(l.Attributes.Purity)),
		})
	}
	return rows
}

func deviationRows(devs []*core.Deviation) [][]components.Cell {
	rows := make([][]components.Cell, 0, len(devs))
	for _, d := range devs {
		rows = append(rows, []components.Cell{
			components.T(d.ID),
			components.T(d.LotID),
			components.T(string(d.Type)),
			components.T(string(d.Status)),
			components.T(strconv.Itoa(d.AgeDays)),
			components.T(d.RootCause),
		})
	}
	return rows
}

// Document wraps Summary in a standalone HTML page.
func Document(sum *analytics.RegulatorySummary) templ.Component {
	return components.Func(func(ctx context.Context, h *components.HTML) {
		h.Raw(`<!doctype html><html lang="en"><head><meta charset="utf-8">`)
		h.Elem("title", Title(sum))
		h.Raw("</head><body>")
		h.Render(ctx, Summary(sum))
		h.Raw("</body></html>")
	})
}

// RenderHTML writes the standalone HTML document.
func RenderHTML(ctx context.Context, w io.Writer, sum *analytics.RegulatorySummary) error {
	return Document(sum).Render(ctx, w)
}

var markdown = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Markdown renders the report and converts it to Markdown.
func Markdown(ctx context.Context, sum *analytics.RegulatorySummary) (string, error) {
	var buf bytes.Buffer
	if err := Summary(sum).Render(ctx, &buf); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	md, err := markdown.ConvertString(buf.String())
	if err != nil {
		return "", fmt.Errorf("failed to convert report to markdown: %w", err)
	}
	return md, nil
}

package components

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Int formats n with thousands separators.
func Int(n int) string { return printer.Sprintf("%d", n) }

// Pct formats a percentage with one decimal.
func Pct(v float64) string { return printer.Sprintf("%.1f%%", v) }

// Date formats t as YYYY-MM-DD, or "-" for the zero time.
func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}

// DatePtr is Date for optional times.
func DatePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return Date(*t)
}

// Num formats an optional measurement, "-" when absent.
func Num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// KPI is a headline metric tile.
func KPI(label, value, tone string) templ.Component {
	return Func(func(_ context.Context, h *HTML) {
		h.Open("div", "class", "kpi "+tone)
		h.Elem("span", label, "class", "kpi-label")
		h.Elem("span", value, "class", "kpi-value")
		h.Close("div")
	})
}

// Badge is an inline status marker. Tone is "ok", "warn", "bad" or empty.
func Badge(text, tone string) templ.Component {
	return Func(func(_ context.Context, h *HTML) {
		h.Elem("span", text, "class", "badge "+tone)
	})
}

// Alert is a callout panel.
func Alert(tone, title, text string) templ.Component {
	return Func(func(_ context.Context, h *HTML) {
		h.Open("div", "class", "alert "+tone, "role", "alert")
		h.Elem("strong", title)
		if text != "" {
			h.Raw(" ")
			h.Text(text)
		}
		h.Close("div")
	})
}

// Section wraps body under a heading.
func Section(title string, body ...templ.Component) templ.Component {
	return Func(func(ctx context.Context, h *HTML) {
		h.Raw(`<section class="panel">`)
		h.Elem("h2", title)
		for _, c := range body {
			h.Render(ctx, c)
		}
		h.Raw("</section>")
	})
}

// Grid lays children out side by side.
func Grid(children ...templ.Component) templ.Component {
	return Func(func(ctx context.Context, h *HTML) {
		h.Raw(`<div class="grid">`)
		for _, c := range children {
			h.Render(ctx, c)
		}
		h.Raw("</div>")
	})
}

// Paragraph is escaped body text.
func Paragraph(text string) templ.Component {
	return Func(func(_ context.Context, h *HTML) { h.Elem("p", text) })
}

// Cell is one table cell. Href turns the text into a link; Tone colours it.
type Cell struct {
	Text string
	Href string
	Tone string
}

// T is shorthand for a plain cell.
func T(s string) Cell { return Cell{Text: s} }

// Bar is one bar of a horizontal bar chart.
type Bar struct {
	Label string
	Value float64
	// Note is printed after the value, e.g. a forecast or cumulative share.
	Note string
	Tone string
}

// Bars renders a CSS bar chart scaled to the largest value.
func Bars(bars []Bar, empty string) templ.Component {
	return Func(func(_ context.Context, h *HTML) {
		if len(bars) == 0 {
			h.Elem("p", empty, "class", "muted")
			return
		}
		peak := 0.0
		for _, b := range bars {
			peak = max(peak, b.Value)
		}
		h.Raw(`<div class="bars">`)
		for _, b := range bars {
			width := 0.0
			if peak > 0 {
				width = b.Value / peak * 100
			}
			h.Raw(`<div class="bar-row">`)
			h.Elem("span", b.Label, "class", "bar-label")
			h.Open("span", "class", "bar "+b.Tone, "style", fmt.Sprintf("width:%.1f%%", width))
			h.Close("span")
			value := strconv.FormatFloat(b.Value, 'f', -1, 64)
			if b.Note != "" {
				value += " · " + b.Note
			}
			h.Elem("span", value, "class", "bar-value")
			h.Raw("</div>")
		}
		h.Raw("</div>")
	})
}

// Select is one drop-down of a filter form.
type Select struct {
	Name     string
	Label    string
	Options  []string
	Selected string
	// AllLabel, when set, adds a leading empty option.
	AllLabel string
}

// FilterForm is a GET form of drop-downs that submits on change.
func FilterForm(action string, selects ...Select) templ.Component {
	return Func(func(_ context.Context, h *HTML) {
		h.Open("form", "method", "get", "action", action, "class", "filters")
		for _, s := range selects {
			h.Open("label")
			h.Text(s.Label + " ")
			h.Open("select", "name", s.Name, "onchange", "this.form.submit()")
			if s.AllLabel != "" {
				h.Elem("option", s.AllLabel, "value", "")
			}
			for _, o := range s.Options {
				if o == s.Selected {
					h.Elem("option", o, "value", o, "selected")
					continue
				}
				h.Elem("option", o, "value", o)
			}
			h.Close("select")
			h.Close("label")
		}
		h.Raw(`<noscript><button type="submit">Apply</button></noscript>`)
		h.Close("form")
	})
}

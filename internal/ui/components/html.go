// Package components holds the server-rendered building blocks shared by
// the dashboard pages and the regulatory report.
//
// The page frame and tables are templ sources (*.templ, generated into
// *_templ.go). Smaller widgets are written directly in Go over HTML. Every
// piece of data passes through templ.EscapeString on its way out.
package components

//go:generate go run github.com/a-h/templ/cmd/templ generate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// HTML is a small markup writer that remembers the first write error.
type HTML struct {
	w   io.Writer
	err error
}

// NewHTML wraps w.
func NewHTML(w io.Writer) *HTML {
	return &HTML{w: w}
}

// Err returns the first error seen while writing.
func (h *HTML) Err() error { return h.err }

// Raw writes s without escaping. Only for literal markup.
func (h *HTML) Raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

// Text writes s escaped.
func (h *HTML) Text(s string) {
	h.Raw(templ.EscapeString(s))
}

// Textf formats and escapes.
func (h *HTML) Textf(format string, a ...any) {
	h.Text(fmt.Sprintf(format, a...))
}

// Open writes a start tag. attrs are key/value pairs; a pair with an empty
// value is skipped unless the key is "value", and a trailing key without a
// value is written bare.
func (h *HTML) Open(tag string, attrs ...string) {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(tag)
	for i := 0; i < len(attrs); i += 2 {
		key := attrs[i]
		if i+1 >= len(attrs) {
			b.WriteString(" " + key)
			break
		}
		if attrs[i+1] == "" && key != "value" {
			continue
		}
		b.WriteString(" " + key + `="` + templ.EscapeString(attrs[i+1]) + `"`)
	}
	b.WriteByte('>')
	h.Raw(b.String())
}

// Close writes an end tag.
func (h *HTML) Close(tag string) {
	h.Raw("</" + tag + ">")
}

// Elem writes a complete element with escaped text content.
func (h *HTML) Elem(tag, text string, attrs ...string) {
	h.Open(tag, attrs...)
	h.Text(text)
	h.Close(tag)
}

// Render writes a child component.
func (h *HTML) Render(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// Func adapts a writer callback into a component.
func Func(fn func(ctx context.Context, h *HTML)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := NewHTML(w)
		fn(ctx, h)
		return h.Err()
	})
}

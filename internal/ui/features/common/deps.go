// Package common provides shared dependencies and helpers for UI features.
package common

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/gorilla/sessions"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/ui/components"
	"github.com/leapstack-labs/qcops/internal/ui/notifier"
)

// SessionName is the cookie holding dashboard selections.
const SessionName = "qcops"

// Deps are the collaborators every feature handler needs.
type Deps struct {
	Provider *dataset.Provider
	Sessions sessions.Store
	Notifier *notifier.Notifier
	Logger   *slog.Logger
	IsDev    bool
}

// Snapshot returns the snapshot to use for one request.
func (d *Deps) Snapshot() *dataset.Snapshot {
	return d.Provider.Current()
}

// Log returns the feature logger, discarding when none was set.
func (d *Deps) Log() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// Remember resolves selections for keys. A key present in the query string
// wins and is saved to the session, even when empty; otherwise the session
// value is used. Call before writing the response body.
func (d *Deps) Remember(w http.ResponseWriter, r *http.Request, keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	session, err := d.Sessions.Get(r, SessionName)
	if err != nil {
		// A stale or tampered cookie yields a fresh session.
		d.Log().Debug("session decode failed", "error", err)
	}
	q := r.URL.Query()
	dirty := false
	for _, k := range keys {
		if q.Has(k) {
			out[k] = q.Get(k)
			session.Values[k] = out[k]
			dirty = true
			continue
		}
		if v, ok := session.Values[k].(string); ok {
			out[k] = v
		}
	}
	if dirty {
		if err := session.Save(r, w); err != nil {
			d.Log().Warn("failed to save session", "error", err)
		}
	}
	return out
}

// Recall reads selections from the session only. Used by SSE endpoints,
// which cannot set cookies.
func (d *Deps) Recall(r *http.Request, keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	session, _ := d.Sessions.Get(r, SessionName)
	if session == nil {
		return out
	}
	for _, k := range keys {
		if v, ok := session.Values[k].(string); ok {
			out[k] = v
		}
	}
	return out
}

// Page renders content inside the dashboard frame.
func (d *Deps) Page(w http.ResponseWriter, r *http.Request, status int, page components.PageData, content templ.Component) {
	page.Meta = d.Snapshot().Meta()
	page.IsDev = d.IsDev
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := components.Page(page, content).Render(r.Context(), w); err != nil {
		d.Log().Error("render failed", "path", r.URL.Path, "error", err)
	}
}

// Stream is the long-lived SSE loop shared by every page. It sends nothing
// up front, since the page was server-rendered, and re-renders the live
// region each time the snapshot changes.
func (d *Deps) Stream(w http.ResponseWriter, r *http.Request, content func(ctx context.Context) (templ.Component, error)) {
	sse := datastar.NewSSE(w, r)

	updates := d.Notifier.Subscribe()
	defer d.Notifier.Unsubscribe(updates)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			c, err := content(ctx)
			if err == nil {
				err = sse.PatchElementTempl(components.Content(c))
			}
			if err != nil {
				_ = sse.ConsoleError(err)
				// Keep the stream; the next refresh may succeed.
			}
		}
	}
}

// WriteJSON writes payload with status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// WriteError writes {"error": message} with status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]any{"error": message})
}

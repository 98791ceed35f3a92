// Package features provides shared test utilities for UI feature tests.
package features

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/dataset/datasettest"
	"github.com/leapstack-labs/qcops/internal/testutil"
	"github.com/leapstack-labs/qcops/internal/ui/features/common"
	"github.com/leapstack-labs/qcops/internal/ui/notifier"
)

// TestFixture holds all dependencies needed for UI handler tests.
type TestFixture struct {
	Snapshot *dataset.Snapshot
	Deps     *common.Deps
	Notifier *notifier.Notifier
	Sessions *sessions.CookieStore
}

// SetupTestFixture serves the small hand-built snapshot.
func SetupTestFixture(t *testing.T) *TestFixture {
	t.Helper()
	return SetupFixtureWith(t, datasettest.Small(t))
}

// SetupFixtureWith serves snap.
func SetupFixtureWith(t *testing.T, snap *dataset.Snapshot) *TestFixture {
	t.Helper()

	n := notifier.New()
	store := NewTestSessionStore()
	return &TestFixture{
		Snapshot: snap,
		Notifier: n,
		Sessions: store,
		Deps: &common.Deps{
			Provider: dataset.Static(snap),
			Sessions: store,
			Notifier: n,
			Logger:   testutil.NewTestLogger(t),
		},
	}
}

// Router mounts routes the way the server does.
func (f *TestFixture) Router(setup ...func(chi.Router, *common.Deps)) http.Handler {
	r := chi.NewRouter()
	for _, s := range setup {
		s(r, f.Deps)
	}
	return r
}

// Get performs a GET against h and returns the recorder.
func Get(h http.Handler, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// Stream opens an SSE endpoint, broadcasts once the handler has
// subscribed, and returns the body written before timeout.
func (f *TestFixture) Stream(t *testing.T, h http.Handler, target string, timeout time.Duration, cookies ...*http.Cookie) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	ctx, cancel := context.WithTimeout(req.Context(), timeout)
	defer cancel()
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.Notifier.Len() > 0 }, timeout, 5*time.Millisecond,
		"stream never subscribed")
	f.Notifier.Broadcast()
	<-done
	return rec.Body.String()
}

// RequestWithPathParam wraps a request with chi URL params.
func RequestWithPathParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// NewTestSessionStore creates a session store for testing.
func NewTestSessionStore() *sessions.CookieStore {
	return sessions.NewCookieStore([]byte("test-secret-key-32-bytes-long!!"))
}

// Parse parses an HTML response body.
func Parse(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

// Find returns the first element with the given id, or nil.
func Find(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := Find(c, id); found != nil {
			return found
		}
	}
	return nil
}

// Texts collects the trimmed text of every tag element under n.
func Texts(n *html.Node, tag string) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, strings.TrimSpace(TextOf(n)))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// TextOf concatenates all text below n.
func TextOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(TextOf(c))
	}
	return sb.String()
}

// ByClass returns the elements under n carrying class.
func ByClass(n *html.Node, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "class" && slices.Contains(strings.Fields(a.Val), class) {
					out = append(out, n)
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// KPIs maps each KPI tile label under n to its value.
func KPIs(n *html.Node) map[string]string {
	out := map[string]string{}
	for _, tile := range ByClass(n, "kpi") {
		labels, values := ByClass(tile, "kpi-label"), ByClass(tile, "kpi-value")
		if len(labels) == 1 && len(values) == 1 {
			out[strings.TrimSpace(TextOf(labels[0]))] = strings.TrimSpace(TextOf(values[0]))
		}
	}
	return out
}

// Links collects every href under n.
func Links(n *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key == "href" {
					out = append(out, a.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

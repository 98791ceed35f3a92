package commandcenter

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leapstack-labs/qcops/internal/ui/features"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPage(t *testing.T) {
	f := features.SetupTestFixture(t)
	rec := features.Get(f.Router(SetupRoutes), "/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	for _, want := range []string{
		"<!doctype html>",
		"<title>Command Center - QC Ops</title>",
		`data-init="@get(&#39;/updates&#39;)"`,
		`id="ui-content"`,
		"Snapshot test-snapshot",
	} {
		assert.Contains(t, body, want)
	}

	doc := features.Parse(t, body)
	content := features.Find(doc, "ui-content")
	require.NotNil(t, content)

	// Six KPI tiles: 13 lots, 3 released, 2 deviations open, 1 CAPA plan.
	assert.Equal(t, map[string]string{
		"Total lots":        "13",
		"Pending":           "10",
		"Released":          "3",
		"At risk":           "0",
		"Active deviations": "2",
		"Open CAPAs":        "1",
	}, features.KPIs(content))

	links := features.Links(content)
	assert.Contains(t, links, "/partners/Pharma-Mfg")
	assert.Contains(t, links, "/partners/VialFill%20Services")
}

func TestUpdates_SendsContentOnBroadcast(t *testing.T) {
	f := features.SetupTestFixture(t)
	body := f.Stream(t, f.Router(SetupRoutes), "/updates", 300*time.Millisecond)

	assert.GreaterOrEqual(t, strings.Count(body, "event:"), 1)
	assert.Contains(t, body, "ui-content")
	assert.Contains(t, body, "External QC Command Center")
	assert.Equal(t, 0, f.Notifier.Len(), "stream unsubscribes on disconnect")
}

func TestPage_VelocityWeeks(t *testing.T) {
	f := features.SetupTestFixture(t)
	rec := features.Get(f.Router(SetupRoutes), "/")
	// Three releases fall in three distinct weeks.
	assert.Equal(t, 3, strings.Count(rec.Body.String(), "w/c 2023-"))
}

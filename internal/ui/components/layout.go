package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/leapstack-labs/qcops/internal/dataset"
)

// DatastarScript is the client bundle that drives SSE patches.
const DatastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0/bundles/datastar.js"

// ContentID is the element id replaced by live updates.
const ContentID = "ui-content"

// NavItem is one entry of the top navigation.
type NavItem struct {
	Label string
	Href  string
}

// Nav lists the dashboard views in display order.
var Nav = []NavItem{
	{"Command Center", "/"},
	{"Deviations", "/deviations"},
	{"Partners", "/partners"},
	{"Genealogy", "/genealogy"},
}

// PageData describes the frame around a page's content.
type PageData struct {
	Title string
	// CurrentPath selects the active navigation entry.
	CurrentPath string
	// UpdatesURL is the SSE endpoint that re-renders the content.
	UpdatesURL string
	Meta       dataset.Meta
	IsDev      bool
}

func (p PageData) active(href string) bool {
	if href == "/" {
		return p.CurrentPath == "/"
	}
	return strings.HasPrefix(p.CurrentPath, href)
}

func (p PageData) updatesInit() string {
	return "@get('" + p.UpdatesURL + "')"
}

func (p PageData) footer() string {
	return fmt.Sprintf("Snapshot %s · seed %d · reference date %s · built %s",
		p.Meta.ID, p.Meta.Seed, p.Meta.ReferenceDate.Format(time.DateOnly), p.Meta.BuiltAt.Format(time.RFC3339))
}

// Package router sets up HTTP routes for the dashboard server.
package router

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/qcops/internal/metrics"
	apiFeature "github.com/leapstack-labs/qcops/internal/ui/features/api"
	commandcenterFeature "github.com/leapstack-labs/qcops/internal/ui/features/commandcenter"
	"github.com/leapstack-labs/qcops/internal/ui/features/common"
	deviationsFeature "github.com/leapstack-labs/qcops/internal/ui/features/deviations"
	genealogyFeature "github.com/leapstack-labs/qcops/internal/ui/features/genealogy"
	partnersFeature "github.com/leapstack-labs/qcops/internal/ui/features/partners"
	"github.com/leapstack-labs/qcops/internal/ui/resources"
)

// SetupRoutes configures all routes for the dashboard server. m may be nil.
func SetupRoutes(router chi.Router, deps *common.Deps, m *metrics.Metrics) {
	// Hot reload endpoint for dev mode
	if deps.IsDev {
		setupReload(router)
	}

	router.Handle("/static/*", resources.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		common.WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"snapshot": deps.Snapshot().Meta().ID,
		})
	})
	if m != nil {
		router.Handle("/metrics", m.Handler())
	}

	commandcenterFeature.SetupRoutes(router, deps)
	deviationsFeature.SetupRoutes(router, deps)
	partnersFeature.SetupRoutes(router, deps)
	genealogyFeature.SetupRoutes(router, deps)
	apiFeature.SetupRoutes(router, deps)
}

func setupReload(router chi.Router) {
	reloadChan := make(chan struct{}, 1)
	var hotReloadOnce sync.Once

	router.Get("/reload", func(w http.ResponseWriter, r *http.Request) {
		sse := datastar.NewSSE(w, r)
		reload := func() { _ = sse.ExecuteScript("window.location.reload()") }
		hotReloadOnce.Do(reload)
		select {
		case <-reloadChan:
			reload()
		case <-r.Context().Done():
		}
	})

	router.Get("/hotreload", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case reloadChan <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/cli/config"
	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/internal/metrics"
	"github.com/leapstack-labs/qcops/internal/ui"
)

// ServeOptions holds options for the serve command that are not
// configuration keys.
type ServeOptions struct {
	RotateSeed bool
	Dev        bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"ui"},
		Short:   "Start the QC operations dashboard",
		Long: `Start a local web server with the QC operations dashboard.

The dashboard provides:
- Command center with network KPIs, partner matrix and release velocity
- Deviation and CAPA tracker with the regulatory report
- Partner deep dives
- Lot genealogy with the DS to DP CQA cascade
- A JSON API under /api/v1 and Prometheus metrics under /metrics

The dataset is rebuilt every refresh interval and whenever the config file
changes; open pages update in place.`,
		Example: `  # Start on the default port
  qcops serve

  # Start on a custom port without opening a browser
  qcops serve --port 3000 --no-browser

  # New data every five minutes
  qcops serve --refresh-interval 5m --rotate-seed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().Int("port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().Bool("no-browser", false, "Don't auto-open browser")
	cmd.Flags().Bool("watch", true, "Rebuild the dataset when the config file changes")
	cmd.Flags().Duration("refresh-interval", 0, "Rebuild the dataset this often (default: 1h, 0 disables)")
	cmd.Flags().BoolVar(&opts.RotateSeed, "rotate-seed", false, "Advance the seed on every rebuild")
	cmd.Flags().BoolVar(&opts.Dev, "dev", false, "Enable live reload for template development")
	_ = cmd.Flags().MarkHidden("dev")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cc, err := NewCommandContextWithoutData(cmd)
	if err != nil {
		return err
	}
	cfg := cc.Cfg
	logger := cc.Logger
	ctx := cmd.Context()

	m := metrics.New()
	provider, err := dataset.NewProvider(ctx, snapshotBuilder(cfg.Data, logger, m, opts.RotateSeed), logger)
	if err != nil {
		return err
	}

	server := ui.NewServer(ui.Config{
		Provider:        provider,
		Metrics:         m,
		Port:            cfg.UI.Port,
		RefreshInterval: cfg.Data.RefreshInterval,
		Watch:           cfg.UI.Watch,
		ConfigFile:      cfg.ConfigFile,
		OnConfigChange: func(ctx context.Context) error {
			next, err := config.LoadConfig(cfg.ConfigFile, cmd.Flags())
			if err != nil {
				return err
			}
			provider.SetBuild(snapshotBuilder(next.Data, logger, m, opts.RotateSeed))
			return provider.Refresh(ctx)
		},
		SessionSecret: cfg.UI.SessionSecret,
		Logger:        logger,
		IsDev:         opts.Dev,
	})

	url := fmt.Sprintf("http://localhost:%d", cfg.UI.Port)
	if cfg.UI.AutoOpen {
		go openBrowser(url)
	}

	cc.Renderer.Println("Serving QC dashboard on " + url)
	cc.Renderer.Muted("Press Ctrl+C to stop")

	return server.Serve(ctx)
}

// snapshotBuilder generates snapshots from data, counting every rebuild and
// lineage resolution in m. With rotate set, each rebuild after the first
// uses the next seed.
func snapshotBuilder(data config.DataConfig, logger *slog.Logger, m *metrics.Metrics, rotate bool) dataset.BuildFunc {
	var builds atomic.Uint64
	return func(_ context.Context) (*dataset.Snapshot, error) {
		gen := data.SynthOptions()
		n := builds.Add(1) - 1
		if rotate {
			gen.Seed += n
		}
		snap, err := dataset.Generate(gen, dataset.Options{
			Logger:          logger,
			ResolveObserver: m.ObserveLineage,
		})
		m.ObserveRefresh(err)
		return snap, err
	}
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}

package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/report"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// ReportOptions holds options for the report command.
type ReportOptions struct {
	Product string
	From    string
	To      string
	Format  string
	Out     string
}

// NewReportCommand creates the report command.
func NewReportCommand() *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the regulatory data summary",
		Long: `Generate the regulatory data summary for one program: the lots created in
the period with their release status and the deviations raised against them.

The report is written as Markdown or as a standalone HTML document. Without
--out it goes to standard output; when --out names a directory the file is
named after the program and period.`,
		Example: `  # Markdown for DM1 over the whole dataset
  qcops report

  # HTML for one quarter, saved next to the other submissions
  qcops report --product dmd --from 2023-07-01 --to 2023-09-30 --format html --out submissions/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Product, "product", core.ProductDM1.Prefix(), "Program (DM1|DMD|FSHD)")
	cmd.Flags().StringVar(&opts.From, "from", "", "First creation date, YYYY-MM-DD (default: earliest lot)")
	cmd.Flags().StringVar(&opts.To, "to", "", "Last creation date, YYYY-MM-DD (default: latest lot)")
	cmd.Flags().StringVar(&opts.Format, "format", "md", "Document format (md|html)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Output file or directory (default: stdout)")

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions) error {
	product, err := core.ParseProduct(opts.Product)
	if err != nil {
		return err
	}
	if opts.Format != "md" && opts.Format != "html" {
		return fmt.Errorf("unknown format %q (want md|html)", opts.Format)
	}

	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	from, to := analytics.CreatedRange(cc.Snapshot)
	if from, err = parseDate("from", opts.From, from); err != nil {
		return err
	}
	if to, err = parseDate("to", opts.To, to); err != nil {
		return err
	}

	sum, err := analytics.Regulatory(cc.Snapshot, product, from, to)
	if err != nil {
		return err
	}
	if handled, err := cc.Renderer.Data(sum); handled {
		return err
	}

	var buf bytes.Buffer
	if opts.Format == "html" {
		if err := report.RenderHTML(cmd.Context(), &buf, sum); err != nil {
			return err
		}
	} else {
		md, err := report.Markdown(cmd.Context(), sum)
		if err != nil {
			return err
		}
		buf.WriteString(md)
	}

	if opts.Out == "" || opts.Out == "-" {
		_, err := io.Copy(cmd.OutOrStdout(), &buf)
		return err
	}

	path := opts.Out
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, report.Filename(sum, opts.Format))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	cc.Logger.Info("report written", "path", path, "lots", len(sum.Lots))
	cc.Renderer.StatusLine(path, "success", fmt.Sprintf("%d lots, %d deviations", len(sum.Lots), len(sum.Deviations)))
	return nil
}

// parseDate reads an optional YYYY-MM-DD flag, returning def when empty.
func parseDate(name, s string, def time.Time) (time.Time, error) {
	if s == "" {
		return def, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q (want YYYY-MM-DD)", name, s)
	}
	return t, nil
}

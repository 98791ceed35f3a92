package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/cli/output"
	"github.com/leapstack-labs/qcops/internal/dataset"
)

// SummaryOutput is the structured form of the network summary.
type SummaryOutput struct {
	Snapshot dataset.Meta       `json:"snapshot" yaml:"snapshot"`
	KPIs     analytics.KPIs     `json:"kpis" yaml:"kpis"`
	Velocity analytics.Velocity `json:"velocity" yaml:"velocity"`
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand() *cobra.Command {
	var weeks int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the network headline numbers",
		Long: `Show the network KPIs (lot counts, lots at risk, active deviations and
open CAPAs) and the weekly release velocity with its forecast.`,
		Example: `  qcops summary
  qcops summary --weeks 26 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSummary(cmd, weeks)
		},
	}

	cmd.Flags().IntVar(&weeks, "weeks", 12, "Trailing weeks of release velocity (0 = all)")

	return cmd
}

func runSummary(cmd *cobra.Command, weeks int) error {
	if weeks < 0 {
		return fmt.Errorf("--weeks must not be negative")
	}
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	snap := cc.Snapshot
	out := SummaryOutput{
		Snapshot: snap.Meta(),
		KPIs:     analytics.NetworkKPIs(snap),
		Velocity: analytics.ReleaseVelocity(snap, weeks),
	}

	r := cc.Renderer
	if handled, err := r.Data(out); handled {
		return err
	}

	k := out.KPIs
	r.Header(1, "QC network")
	r.KeyValue("Snapshot", fmt.Sprintf("%s (seed %d, as of %s)",
		out.Snapshot.ID, out.Snapshot.Seed, out.Snapshot.ReferenceDate.Format(time.DateOnly)))
	r.KeyValue("Total lots", output.Int(k.TotalLots))
	r.KeyValue("Pending", output.Int(k.PendingLots))
	r.KeyValue("Released", output.Int(k.ReleasedLots))
	r.KeyValue("At risk", output.Int(k.AtRiskLots))
	r.KeyValue("Active deviations", output.Int(k.ActiveDeviations))
	r.KeyValue("Open CAPAs", output.Int(k.OpenCAPAs))

	r.Header(2, "Release velocity")
	if len(out.Velocity.Weeks) == 0 {
		r.Muted("No releases yet.")
		return nil
	}
	rows := make([][]string, 0, len(out.Velocity.Weeks))
	for _, w := range out.Velocity.Weeks {
		rows = append(rows, []string{"w/c " + w.Week.Format(time.DateOnly), strconv.Itoa(w.Releases), strconv.Itoa(w.Forecast)})
	}
	r.Table([]string{"Week", "Released", "Forecast"}, rows)
	r.Muted(fmt.Sprintf("Mean %.1f releases per week", out.Velocity.Mean))
	return nil
}

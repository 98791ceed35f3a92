package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/cli/output"
)

// DeviationsOptions holds options for the deviations command.
type DeviationsOptions struct {
	Product string
	Partner string
	Type    string
}

// DeviationsOutput is the structured form of the tracker.
type DeviationsOutput struct {
	Board   []analytics.Column     `json:"board" yaml:"board"`
	Pareto  []analytics.CauseCount `json:"pareto" yaml:"pareto"`
	Closure analytics.Closure      `json:"closure" yaml:"closure"`
}

// NewDeviationsCommand creates the deviations command.
func NewDeviationsCommand() *cobra.Command {
	opts := &DeviationsOptions{}

	cmd := &cobra.Command{
		Use:     "deviations",
		Aliases: []string{"devs"},
		Short:   "Show the deviation and CAPA tracker",
		Long: fmt.Sprintf(`Show open deviations grouped by workflow status, the root causes of OOS
events ranked by frequency, and the closure cycle time of closed events.

Cards older than %d days are marked warning, older than %d days critical.`,
			analytics.WarningAgeDays, analytics.CriticalAgeDays),
		Example: `  qcops deviations
  qcops deviations --product dm1 --type OOS
  qcops deviations --partner Pharma-Mfg -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeviations(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Product, "product", "", "Program (DM1|DMD|FSHD)")
	cmd.Flags().StringVar(&opts.Partner, "partner", "", "Partner name")
	cmd.Flags().StringVar(&opts.Type, "type", "", "Deviation type (Deviation|OOS|OOT)")

	return cmd
}

func runDeviations(cmd *cobra.Command, opts *DeviationsOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	snap := cc.Snapshot
	f, err := analytics.ParseFilter(snap, map[string]string{
		"product": opts.Product,
		"partner": opts.Partner,
		"type":    opts.Type,
	})
	if err != nil {
		return err
	}

	out := DeviationsOutput{
		Board:   analytics.Board(snap, f),
		Pareto:  analytics.OOSPareto(snap, f),
		Closure: analytics.ClosureTimes(snap, f),
	}
	r := cc.Renderer
	if handled, err := r.Data(out); handled {
		return err
	}

	r.Header(1, "Deviation & CAPA tracker")
	for _, col := range out.Board {
		r.Header(2, fmt.Sprintf("%s (%d)", col.Status, len(col.Cards)))
		if len(col.Cards) == 0 {
			continue
		}
		rows := make([][]string, 0, len(col.Cards))
		for _, c := range col.Cards {
			d := c.Deviation
			rows = append(rows, []string{
				d.ID, d.LotID, d.Partner, string(d.Type),
				r.Styles().Status(fmt.Sprintf("%d d", d.AgeDays), severityTone(c.Severity)),
			})
		}
		r.Table([]string{"ID", "Lot", "Partner", "Type", "Age"}, rows)
	}

	r.Header(2, "OOS root causes")
	if len(out.Pareto) == 0 {
		r.Muted("No OOS events.")
	} else {
		rows := make([][]string, 0, len(out.Pareto))
		for _, c := range out.Pareto {
			rows = append(rows, []string{c.RootCause, output.Int(c.Count), output.Pct(c.Cumulative)})
		}
		r.Table([]string{"Root cause", "Events", "Cumulative"}, rows)
	}

	cl := out.Closure
	r.Header(2, "Closure cycle time")
	r.Println(fmt.Sprintf("%d closed, mean %.1f days, %d within the %d day target.",
		cl.Closed, cl.MeanAgeDays, cl.WithinTarget, cl.TargetDays))
	return nil
}

func severityTone(s analytics.Severity) string {
	switch s {
	case analytics.SeverityCritical:
		return "bad"
	case analytics.SeverityWarning:
		return "warn"
	}
	return ""
}

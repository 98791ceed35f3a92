package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/analytics"
	"github.com/leapstack-labs/qcops/internal/cli/output"
	"github.com/leapstack-labs/qcops/internal/synth"
)

// NewPartnersCommand creates the partners command.
func NewPartnersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "partners",
		Short: "Show the partner performance matrix",
		Long: `Show every manufacturing and testing partner with its lot volume, on-time
rate, deviation count, OOS share and performance band.`,
		Example: `  qcops partners
  qcops partners -o json`,
		Args: cobra.NoArgs,
		RunE: runPartners,
	}
}

func runPartners(cmd *cobra.Command, _ []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	matrix := analytics.PartnerMatrix(cc.Snapshot)

	r := cc.Renderer
	if handled, err := r.Data(matrix); handled {
		return err
	}

	rows := make([][]string, 0, len(matrix))
	for _, p := range matrix {
		rows = append(rows, []string{
			p.Partner.Name,
			string(p.Partner.Role),
			p.Partner.Location,
			output.Int(p.Lots),
			output.Pct(p.OnTimeRate),
			output.Int(p.Deviations),
			output.Pct(p.OOSRate),
			output.Int(p.AgedDeviations),
			r.Styles().Status(string(p.Band), bandTone(p.Band)),
		})
	}
	r.Header(1, "Partner performance")
	r.Table([]string{"Partner", "Role", "Location", "Lots", "On time", "Deviations", "OOS", "Aged", "Band"}, rows)
	return nil
}

func bandTone(b analytics.Band) string {
	switch b {
	case analytics.BandOnTrack:
		return "ok"
	case analytics.BandNeedsImprovement:
		return "warn"
	}
	return "bad"
}

// NewPartnerCommand creates the partner command.
func NewPartnerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partner <name>",
		Short: "Show the deep dive for one partner",
		Long: `Show a single partner's scorecard: on-time and OOS rates, open CAPAs,
purity process capability, turnaround distribution, lots, deviations,
method transfers and the purity/impurity anomaly screen.`,
		Example: `  qcops partner Pharma-Mfg
  qcops partner "VialFill Services" -o yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartner(cmd, args[0])
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			var names []string
			for _, p := range synth.Partners() {
				names = append(names, p.Name)
			}
			return names, cobra.ShellCompDirectiveNoFileComp
		},
	}
	return cmd
}

func runPartner(cmd *cobra.Command, name string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	dd, err := analytics.PartnerDeepDive(cc.Snapshot, name)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if handled, err := r.Data(dd); handled {
		return err
	}

	p := dd.Partner
	r.Header(1, p.Name)
	r.KeyValue("Role", fmt.Sprintf("%s, %s", p.Role, p.Specialty))
	r.KeyValue("Location", p.Location)
	r.KeyValue("SLA", strconv.Itoa(dd.SLADays)+" days")
	r.KeyValue("Lots", output.Int(len(dd.Lots)))
	r.KeyValue("On-time rate", output.Pct(dd.OnTimeRate))
	r.KeyValue("OOS rate", output.Pct(dd.OOSRate))
	r.KeyValue("Open CAPAs", output.Int(dd.OpenCAPAs))
	r.KeyValue("Purity Cpk", fmt.Sprintf("%s (%s)", dd.Capability, dd.Capability.Status()))

	r.Header(2, "Turnaround")
	if len(dd.TAT) == 0 {
		r.Muted("No lots.")
	} else {
		rows := make([][]string, 0, len(dd.TAT))
		for _, b := range dd.TAT {
			rows = append(rows, []string{fmt.Sprintf("%.0f-%.0f d", b.Lo, b.Hi), strconv.Itoa(b.Count)})
		}
		r.Table([]string{"Days", "Lots"}, rows)
	}

	r.Header(2, "Anomaly screen")
	switch {
	case !dd.Anomalies.Ran:
		r.Muted(fmt.Sprintf("Not run: %d lots with purity and impurity results, %d needed.",
			dd.Anomalies.Samples, analytics.MinAnomalySamples))
	case len(dd.Anomalies.Anomalies) == 0:
		r.Success(fmt.Sprintf("No anomalies in %d lots", dd.Anomalies.Samples))
	default:
		rows := make([][]string, 0, len(dd.Anomalies.Anomalies))
		for _, a := range dd.Anomalies.Anomalies {
			rows = append(rows, []string{a.Lot.ID, output.Num(a.Lot.Attributes.Purity),
				output.Num(a.Lot.Attributes.MainImpurity), fmt.Sprintf("%.2f", a.Distance)})
		}
		r.Table([]string{"Lot", "Purity", "Main impurity", "Distance²"}, rows)
	}

	if len(dd.Deviations) > 0 {
		r.Header(2, "Deviations")
		r.Table(deviationHeader, deviationRows(dd.Deviations))
	}
	if len(dd.Transfers) > 0 {
		r.Header(2, "Method transfers")
		rows := make([][]string, 0, len(dd.Transfers))
		for _, t := range dd.Transfers {
			rows = append(rows, []string{t.Method, t.From, t.Status, output.Date(&t.TargetDate)})
		}
		r.Table([]string{"Method", "From", "Status", "Target"}, rows)
	}
	return nil
}

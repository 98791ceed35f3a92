package commands

import (
	"strconv"

	"github.com/leapstack-labs/qcops/internal/cli/output"
	"github.com/leapstack-labs/qcops/internal/cqa"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// Shared table layouts for lot, deviation and CQA listings.

var lotHeader = []string{"Lot", "Product", "Stage", "Partner", "Status", "Created", "Released", "TAT"}

func lotRows(lots []*core.Lot) [][]string {
	rows := make([][]string, 0, len(lots))
	for _, l := range lots {
		rows = append(rows, []string{
			l.ID,
			l.Product.Prefix(),
			string(l.Stage),
			l.Partner,
			string(l.Status),
			output.Date(&l.CreatedAt),
			output.Date(l.ReleasedAt),
			strconv.Itoa(l.ActualTATDays) + "/" + strconv.Itoa(l.SLADays) + " d",
		})
	}
	return rows
}

var deviationHeader = []string{"ID", "Lot", "Partner", "Type", "Status", "Age", "Root cause"}

func deviationRows(devs []*core.Deviation) [][]string {
	rows := make([][]string, 0, len(devs))
	for _, d := range devs {
		rows = append(rows, []string{
			d.ID,
			d.LotID,
			d.Partner,
			string(d.Type),
			string(d.Status),
			strconv.Itoa(d.AgeDays) + " d",
			d.RootCause,
		})
	}
	return rows
}

var cqaHeader = []string{"Attribute", "DS spec", "DS result", "DP spec", "DP result", "Trend"}

func cqaRows(rows []cqa.Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.Attribute,
			r.DSSpec,
			output.Num(r.DSResult),
			r.DPSpec,
			output.Num(r.DPResult),
			string(r.Trend),
		})
	}
	return out
}

// renderCascade writes the cascade table followed by a one-line verdict.
func renderCascade(r *output.Renderer, rows []cqa.Row) {
	r.Table(cqaHeader, cqaRows(rows))
	flagged := cqa.Flagged(rows)
	if len(flagged) == 0 {
		r.Success("All attributes in trend")
		return
	}
	for _, f := range flagged {
		r.Warning(f.Attribute + ": " + string(f.Trend))
	}
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/cqa"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// LineageOptions holds options for the lineage command.
type LineageOptions struct {
	Upstream   bool
	Downstream bool
	CQA        bool
}

// LineageOutput is the structured form of a lineage result. Chain is set
// for Drug Product lots, Upstream/Downstream for every other stage.
type LineageOutput struct {
	Lot        string      `json:"lot" yaml:"lot"`
	Stage      core.Stage  `json:"stage" yaml:"stage"`
	Chain      *core.Chain `json:"chain,omitempty" yaml:"chain,omitempty"`
	CQA        []cqa.Row   `json:"cqa,omitempty" yaml:"cqa,omitempty"`
	Upstream   []string    `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	Downstream []string    `json:"downstream,omitempty" yaml:"downstream,omitempty"`
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	opts := &LineageOptions{}

	cmd := &cobra.Command{
		Use:   "lineage <lot>",
		Short: "Trace a lot through the supply chain",
		Long: `Trace a lot through the manufacturing genealogy.

For a Drug Product lot the command resolves the full chain: the Drug
Substance it was filled from and the antibody and oligonucleotide lots that
were conjugated into that Drug Substance. A chain that cannot be resolved
to exactly those parents is reported as incomplete and the command fails.

For any other lot it lists the lots it was made from and the lots it went
into.`,
		Example: `  # Resolve a Drug Product chain
  qcops lineage DM1-DP-400

  # Include the DS to DP CQA cascade
  qcops lineage DM1-DP-400 --cqa

  # Show only where an intermediate was used
  qcops lineage DM1-Oligo-200 --upstream=false

  # Output as JSON
  qcops lineage DM1-DP-400 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Upstream, "upstream", true, "Include parent lots (non-DP lots)")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", true, "Include derived lots (non-DP lots)")
	cmd.Flags().BoolVar(&opts.CQA, "cqa", false, "Include the CQA cascade (DP lots)")

	return cmd
}

func runLineage(cmd *cobra.Command, lotID string, opts *LineageOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	snap := cc.Snapshot
	r := cc.Renderer

	lot, ok := snap.Lot(lotID)
	if !ok {
		return fmt.Errorf("lot not found: %s", lotID)
	}
	out := LineageOutput{Lot: lot.ID, Stage: lot.Stage}

	if lot.Stage == core.StageDrugProduct {
		chain, err := snap.Resolve(lot.ID)
		if err != nil {
			return err
		}
		out.Chain = chain
		if opts.CQA {
			rows, err := snap.Cascade(chain.DrugSubstance.ID, chain.DrugProduct.ID)
			if err != nil {
				return err
			}
			out.CQA = rows
		}
	} else {
		idx := snap.Index()
		if opts.Upstream {
			out.Upstream = lotIDs(idx.Upstream(lot.ID))
		}
		if opts.Downstream {
			out.Downstream = lotIDs(idx.Downstream(lot.ID))
		}
	}

	if handled, err := r.Data(out); handled {
		return err
	}

	r.Header(1, "Lineage for "+lot.ID)
	if out.Chain != nil {
		r.Table(lotHeader, lotRows(out.Chain.Lots()))
		if opts.CQA {
			r.Header(2, "CQA cascade")
			renderCascade(r, out.CQA)
		}
		return nil
	}

	if opts.Upstream {
		listLots(cc, "Made from", out.Upstream)
	}
	if opts.Downstream {
		listLots(cc, "Used in", out.Downstream)
	}
	return nil
}

func listLots(cc *CommandContext, title string, ids []string) {
	r := cc.Renderer
	r.Header(2, fmt.Sprintf("%s (%d)", title, len(ids)))
	if len(ids) == 0 {
		r.Muted("none")
		return
	}
	lots := make([]*core.Lot, 0, len(ids))
	for _, id := range ids {
		if l, ok := cc.Snapshot.Lot(id); ok {
			lots = append(lots, l)
		}
	}
	r.Table(lotHeader, lotRows(lots))
}

func lotIDs(lots []*core.Lot) []string {
	ids := make([]string, len(lots))
	for i, l := range lots {
		ids[i] = l.ID
	}
	return ids
}

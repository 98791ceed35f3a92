package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/cqa"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// CQAOptions holds options for the cqa command.
type CQAOptions struct {
	FailOnDrift bool
}

// CQAOutput is the structured form of a cascade.
type CQAOutput struct {
	DrugSubstance string    `json:"drug_substance" yaml:"drug_substance"`
	DrugProduct   string    `json:"drug_product" yaml:"drug_product"`
	Rows          []cqa.Row `json:"rows" yaml:"rows"`
	Flagged       int       `json:"flagged" yaml:"flagged"`
}

// NewCQACommand creates the cqa command.
func NewCQACommand() *cobra.Command {
	opts := &CQAOptions{}

	cmd := &cobra.Command{
		Use:   "cqa <dp-lot> | cqa <ds-lot> <dp-lot>",
		Short: "Compare DS and DP critical quality attributes",
		Long: `Compare the critical quality attribute results of a Drug Substance lot
with those of a Drug Product lot and flag attributes that drifted by more
than the allowed margin between the two stages.

With a single Drug Product lot the Drug Substance is found through the
lot's genealogy.`,
		Example: `  # Cascade for a DP lot and its own DS
  qcops cqa DM1-DP-400

  # Compare an explicit pair
  qcops cqa DM1-DS-300 DM1-DP-400

  # Fail the command when any attribute drifts
  qcops cqa DM1-DP-400 --fail-on-drift`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCQA(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.FailOnDrift, "fail-on-drift", false, "Exit non-zero when an attribute is trending")

	return cmd
}

func runCQA(cmd *cobra.Command, args []string, opts *CQAOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	snap := cc.Snapshot
	r := cc.Renderer

	var dsID, dpID string
	if len(args) == 2 {
		dsID, dpID = args[0], args[1]
	} else {
		dpID = args[0]
		lot, ok := snap.Lot(dpID)
		if !ok {
			return &core.MissingAttributeError{LotID: dpID}
		}
		if lot.Stage != core.StageDrugProduct {
			return fmt.Errorf("%s is a %s lot; pass a Drug Product lot or a DS/DP pair", dpID, lot.Stage)
		}
		chain, err := snap.Resolve(dpID)
		if err != nil {
			return err
		}
		dsID = chain.DrugSubstance.ID
	}

	rows, err := snap.Cascade(dsID, dpID)
	if err != nil {
		return err
	}
	flagged := cqa.Flagged(rows)

	out := CQAOutput{DrugSubstance: dsID, DrugProduct: dpID, Rows: rows, Flagged: len(flagged)}
	if handled, err := r.Data(out); handled {
		if err != nil {
			return err
		}
	} else {
		r.Header(1, fmt.Sprintf("CQA cascade: %s → %s", dsID, dpID))
		renderCascade(r, rows)
	}

	if opts.FailOnDrift && len(flagged) > 0 {
		return fmt.Errorf("%d attribute(s) drifting between %s and %s", len(flagged), dsID, dpID)
	}
	return nil
}

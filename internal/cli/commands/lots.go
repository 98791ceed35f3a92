package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/dataset"
	"github.com/leapstack-labs/qcops/pkg/core"
)

// LotsOptions holds options for the lots command.
type LotsOptions struct {
	Product string
	Stage   string
	Status  string
	Partner string
	Open    bool
}

// NewLotsCommand creates the lots command.
func NewLotsCommand() *cobra.Command {
	opts := &LotsOptions{}

	cmd := &cobra.Command{
		Use:     "lots",
		Aliases: []string{"ls"},
		Short:   "List lots",
		Long: `List the lots in the dataset, optionally filtered by program, stage,
status or partner. Products accept the full program name or its prefix;
stages accept short aliases such as ds and dp.`,
		Example: `  # All DM1 drug product lots
  qcops lots --product dm1 --stage dp

  # Lots still waiting for release at one partner
  qcops lots --partner "VialFill Services" --open

  # As YAML
  qcops lots --status Released -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLots(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Product, "product", "", "Program (DM1|DMD|FSHD)")
	cmd.Flags().StringVar(&opts.Stage, "stage", "", "Manufacturing stage")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Lot status")
	cmd.Flags().StringVar(&opts.Partner, "partner", "", "Partner name")
	cmd.Flags().BoolVar(&opts.Open, "open", false, "Only lots not yet released")

	_ = cmd.RegisterFlagCompletionFunc("product", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		out := make([]string, len(core.Products))
		for i, p := range core.Products {
			out[i] = p.Prefix()
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func (o *LotsOptions) get(key string) string {
	switch key {
	case "product":
		return o.Product
	case "stage":
		return o.Stage
	case "status":
		return o.Status
	case "partner":
		return o.Partner
	case "open":
		if o.Open {
			return strconv.FormatBool(o.Open)
		}
	}
	return ""
}

func runLots(cmd *cobra.Command, opts *LotsOptions) error {
	f, err := dataset.ParseLotFilter(opts.get)
	if err != nil {
		return err
	}
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	lots := cc.Snapshot.FilterLots(f)
	if lots == nil {
		lots = []*core.Lot{}
	}

	r := cc.Renderer
	if handled, err := r.Data(lots); handled {
		return err
	}
	r.Header(1, "Lots")
	if len(lots) == 0 {
		r.Muted("No lots match the filter.")
		return nil
	}
	r.Table(lotHeader, lotRows(lots))
	r.Muted(strconv.Itoa(len(lots)) + " lots")
	return nil
}

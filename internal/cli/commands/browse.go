package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/qcops/internal/tui"
)

// NewBrowseCommand creates the browse command.
func NewBrowseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse lots, deviations and partners in the terminal",
		Long: `Open an interactive terminal browser over the dataset with one tab each
for lots, deviations and partners. Press / to filter, enter for details
(the resolved genealogy for Drug Product lots) and q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), cc.Snapshot, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

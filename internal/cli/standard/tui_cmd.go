package standard

import (
	"github.com/spf13/cobra"

	"github.com/ccheshirecat/renderd/internal/cli/tui"
)

func newTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive dashboard for jobs and live events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run()
		},
	}
}

package standard

import (
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pool occupancy and renderer configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiClient(cmd)
			if err != nil {
				return err
			}
			status, err := api.SystemStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

package standard

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ccheshirecat/renderd/internal/shared/version"
)

// Execute runs the Cobra-based CLI entry point.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renderctl",
		Short: "renderd command-line interface",
		Long:  "renderctl renders pages through a renderd daemon and inspects its job history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringP("api", "a", envOrDefault("RENDERD_API_BASE", "http://127.0.0.1:7070"), "renderd base URL")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRenderCmd())
	cmd.AddCommand(newJobsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newTUICmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the renderctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "renderctl %s\n", version.Version)
		},
	}
}

package standard

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ccheshirecat/renderd/internal/cli/client"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect render job history",
	}
	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsGetCmd())
	cmd.AddCommand(newJobsWatchCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent render jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiClient(cmd)
			if err != nil {
				return err
			}
			jobs, err := api.ListJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), jobs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs to return")
	return cmd
}

func newJobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			api, err := apiClient(cmd)
			if err != nil {
				return err
			}
			job, err := api.GetJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func newJobsWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream job lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := apiClient(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return api.WatchJobEvents(cmd.Context(), func(event client.JobEvent) {
				fmt.Fprintf(out, "%s %-13s job=%d %s %s\n",
					event.Timestamp.Format("15:04:05"), event.Type, event.JobID, event.URL, event.Message)
			})
		},
	}
}

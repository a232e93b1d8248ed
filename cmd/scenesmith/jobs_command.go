package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenesmith/internal/apiclient"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			return ctx.withClient(func(client *apiclient.Client) error {
				list, err := client.Jobs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(list.Jobs) == 0 {
					fmt.Fprintln(stdout, "No jobs")
					return nil
				}

				rows := make([][]string, 0, len(list.Jobs))
				for _, job := range list.Jobs {
					rows = append(rows, []string{
						shortID(job.ID),
						string(job.Status),
						formatPercent(job.Progress.Percentage),
						string(job.Quality),
						formatAge(job.CreatedAt),
						truncate(job.Prompt, 48),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]tableColumn{
						{title: "ID"},
						{title: "Status"},
						{title: "Progress", rightAlign: true},
						{title: "Quality"},
						{title: "Age", rightAlign: true},
						{title: "Prompt", maxWidth: 48},
					},
					rows,
				))
				if list.Total > len(list.Jobs) {
					fmt.Fprintf(stdout, "Showing %d of %d jobs\n", len(list.Jobs), list.Total)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to list (0 for all)")
	return cmd
}

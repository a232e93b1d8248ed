package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenesmith/internal/apiclient"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <job-id>",
		Short: "Show the recorded event history for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.Events(cmd.Context(), args[0])
				if apiclient.IsNotFound(err) {
					return fmt.Errorf("job %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if len(resp.Events) == 0 {
					fmt.Fprintln(stdout, "No events recorded")
					return nil
				}

				rows := make([][]string, 0, len(resp.Events))
				for _, event := range resp.Events {
					transition := event.ToStatus
					if event.FromStatus != "" {
						transition = event.FromStatus + " -> " + event.ToStatus
					}
					rows = append(rows, []string{
						formatTimestamp(event.CreatedAt),
						event.Event,
						transition,
						truncate(event.Detail, 60),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]tableColumn{
						{title: "Time"},
						{title: "Event"},
						{title: "Transition"},
						{title: "Detail", maxWidth: 60},
					},
					rows,
				))
				return nil
			})
		},
	}
}

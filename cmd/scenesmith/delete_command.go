package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenesmith/internal/apiclient"
)

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <job-id>",
		Aliases: []string{"cancel"},
		Short:   "Cancel a job if needed and remove it along with its artifacts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			stdout := cmd.OutOrStdout()

			return ctx.withClient(func(client *apiclient.Client) error {
				err := client.Delete(cmd.Context(), jobID)
				switch {
				case apiclient.IsNotFound(err):
					return fmt.Errorf("job %s not found", jobID)
				case apiclient.IsConflict(err):
					return fmt.Errorf("%v", err)
				case err != nil:
					return err
				}
				fmt.Fprintf(stdout, "Job %s deleted\n", jobID)
				return nil
			})
		},
	}
}

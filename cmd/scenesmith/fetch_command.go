package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scenesmith/internal/apiclient"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <job-id>",
		Short: "Download the rendered video for a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := args[0]
			dest := strings.TrimSpace(output)
			if dest == "" {
				dest = jobID + ".mp4"
			}
			stdout := cmd.OutOrStdout()

			return ctx.withClient(func(client *apiclient.Client) error {
				err := client.FetchVideo(cmd.Context(), jobID, dest)
				switch {
				case apiclient.IsNotFound(err):
					return fmt.Errorf("job %s not found", jobID)
				case apiclient.IsConflict(err):
					return fmt.Errorf("%v; wait for the job to complete", err)
				case err != nil:
					return err
				}
				fmt.Fprintf(stdout, "Saved video to %s\n", dest)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination path (defaults to <job-id>.mp4)")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scenesmith/internal/api"
	"scenesmith/internal/apiclient"
	"scenesmith/internal/jobstore"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var quality string
	var sceneName string
	var wait bool
	var output string

	cmd := &cobra.Command{
		Use:   "submit <prompt>",
		Short: "Submit a prompt for animation rendering",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.TrimSpace(strings.Join(args, " "))
			stdout := cmd.OutOrStdout()

			return ctx.withClient(func(client *apiclient.Client) error {
				ack, err := client.Submit(cmd.Context(), api.SubmitRequest{
					Prompt:    prompt,
					Quality:   quality,
					SceneName: sceneName,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Job %s queued\n", ack.JobID)

				if !wait {
					fmt.Fprintf(stdout, "Track it with `scenesmith status %s`\n", ack.JobID)
					return nil
				}

				view, err := waitForJob(cmd.Context(), client, ack.JobID, stdout)
				if err != nil {
					return err
				}
				switch view.Status {
				case jobstore.StatusCompleted:
					fmt.Fprintf(stdout, "Job %s completed (%.1fs of video)\n", view.ID, view.DurationSeconds)
					if output != "" {
						if err := client.FetchVideo(cmd.Context(), view.ID, output); err != nil {
							return err
						}
						fmt.Fprintf(stdout, "Saved video to %s\n", output)
					}
					return nil
				case jobstore.StatusCancelled:
					return fmt.Errorf("job %s was cancelled", view.ID)
				default:
					return fmt.Errorf("job %s failed: %s", view.ID, view.Error)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Render quality (low, medium, high, ultra)")
	cmd.Flags().StringVar(&sceneName, "scene-name", "", "Override the generated scene class name")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the job reaches a terminal state")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Download the finished video to this path (implies --wait)")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if output != "" {
			wait = true
		}
	}
	return cmd
}

// waitForJob polls the daemon until the job settles, echoing stage changes.
func waitForJob(ctx context.Context, client *apiclient.Client, jobID string, stdout io.Writer) (api.JobView, error) {
	var lastStage string
	for {
		view, err := client.Job(ctx, jobID)
		if err != nil {
			return api.JobView{}, err
		}
		if stage := view.Progress.Stage; stage != "" && stage != lastStage {
			fmt.Fprintf(stdout, "  %s (%s)\n", formatStage(stage), formatPercent(view.Progress.Percentage))
			lastStage = stage
		}
		if view.IsTerminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return api.JobView{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

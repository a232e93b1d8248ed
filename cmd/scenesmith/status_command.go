package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenesmith/internal/apiclient"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the current state of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			return ctx.withClient(func(client *apiclient.Client) error {
				view, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				for _, line := range renderSectionHeader("Job "+shortID(view.ID), colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Status", statusKindForJob(view.Status), string(view.Status), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Stage", statusInfo,
					fmt.Sprintf("%s (%s)", formatStage(view.Progress.Stage), formatPercent(view.Progress.Percentage)), colorize))
				fmt.Fprintln(stdout, renderStatusLine("Quality", statusInfo, string(view.Quality), colorize))
				if view.SceneName != "" {
					fmt.Fprintln(stdout, renderStatusLine("Scene", statusInfo, view.SceneName, colorize))
				}
				fmt.Fprintln(stdout, renderStatusLine("Created", statusInfo, formatTimestamp(view.CreatedAt), colorize))
				if view.DurationSeconds > 0 {
					fmt.Fprintln(stdout, renderStatusLine("Video Length", statusInfo, fmt.Sprintf("%.1fs", view.DurationSeconds), colorize))
				}
				if view.VideoURL != "" {
					fmt.Fprintln(stdout, renderStatusLine("Video", statusOK, view.VideoURL, colorize))
				}
				if view.Error != "" {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, view.Error, colorize))
				}
				fmt.Fprintln(stdout, renderStatusLine("Prompt", statusInfo, truncate(view.Prompt, 120), colorize))

				analysis := view.VisualAnalysis
				if analysis == nil {
					return nil
				}

				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Visual Analysis", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Overall Quality", qualityGradeKind(analysis.OverallQuality), analysis.OverallQuality, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Frames Analyzed", statusInfo,
					fmt.Sprintf("%d of %d animations (%s)", analysis.FramesAnalyzed, analysis.TotalAnimations, analysis.ExtractionMethod), colorize))
				if fix := analysis.AutoFix; fix != nil {
					detail := fmt.Sprintf("issues %d -> %d", fix.IssuesBefore, fix.IssuesAfter)
					kind := statusOK
					switch {
					case !fix.Applied:
						kind = statusInfo
						detail = "skipped"
						if fix.Error != "" {
							detail = "skipped: " + fix.Error
						}
					case !fix.Success:
						kind = statusWarn
						detail += " (rolled back)"
					}
					fmt.Fprintln(stdout, renderStatusLine("Auto Repair", kind, detail, colorize))
				}

				if len(analysis.Issues) == 0 {
					fmt.Fprintln(stdout, renderStatusLine("Issues", statusOK, "none detected", colorize))
					return nil
				}

				rows := make([][]string, 0, len(analysis.Issues))
				for _, issue := range analysis.Issues {
					rows = append(rows, []string{
						fmt.Sprintf("%d", issue.FrameIndex),
						issue.Severity,
						issue.Kind,
						truncate(issue.Description, 60),
					})
				}
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, renderTable(
					[]tableColumn{
						{title: "Frame", rightAlign: true},
						{title: "Severity"},
						{title: "Kind"},
						{title: "Description", maxWidth: 60},
					},
					rows,
				))
				return nil
			})
		},
	}
}

func qualityGradeKind(grade string) statusKind {
	switch grade {
	case "good":
		return statusOK
	case "acceptable":
		return statusWarn
	case "poor":
		return statusError
	default:
		return statusInfo
	}
}

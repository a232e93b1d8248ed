package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scenesmith/internal/api"
	"scenesmith/internal/apiclient"
	"scenesmith/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon health, or run local checks when the daemon is down",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			client, err := apiclient.New(ctx.apiAddress())
			if err != nil {
				return err
			}

			health, err := client.Health(cmd.Context())
			if apiclient.IsDaemonUnavailable(err) {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn,
					fmt.Sprintf("not running at %s (start it with `scenesmith daemon start`)", ctx.apiAddress()), colorize))
				fmt.Fprintln(stdout)
				return runLocalChecks(cmd, ctx, colorize)
			}
			if err != nil {
				return err
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			daemonKind := statusOK
			if health.Status != "ok" {
				daemonKind = statusWarn
			}
			fmt.Fprintln(stdout, renderStatusLine("Status", daemonKind, health.Status, colorize))
			for _, check := range health.Checks {
				kind := statusOK
				detail := check.Detail
				if !check.Ready {
					kind = statusError
					if detail == "" {
						detail = "not ready"
					}
				}
				fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, detail, colorize))
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderTable(
				[]tableColumn{
					{title: "Bucket"},
					{title: "Count", rightAlign: true},
				},
				jobCountRows(health.Jobs),
			))
			return nil
		},
	}
}

// runLocalChecks evaluates configuration, directories, model endpoints, and
// system binaries without a running daemon.
func runLocalChecks(cmd *cobra.Command, ctx *commandContext, colorize bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	stdout := cmd.OutOrStdout()

	for _, line := range renderSectionHeader("Local Checks", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, result := range preflight.RunAll(cmd.Context(), cfg) {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		fmt.Fprintln(stdout, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}

	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("System Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, status := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
		if status.Available {
			fmt.Fprintln(stdout, renderStatusLine(status.Name, statusOK,
				fmt.Sprintf("Ready (%s)", status.Detail), colorize))
			continue
		}
		kind := statusError
		if status.Optional {
			kind = statusWarn
		}
		detail := status.Detail
		if detail == "" {
			detail = "not available"
		}
		fmt.Fprintln(stdout, renderStatusLine(status.Name, kind, detail, colorize))
	}
	return nil
}

func jobCountRows(counts api.JobCounts) [][]string {
	return [][]string{
		{"Pending", fmt.Sprintf("%d", counts.Pending)},
		{"Processing", fmt.Sprintf("%d", counts.Processing)},
		{"Completed", fmt.Sprintf("%d", counts.Completed)},
		{"Failed", fmt.Sprintf("%d", counts.Failed)},
		{"Total", fmt.Sprintf("%d", counts.Total)},
	}
}

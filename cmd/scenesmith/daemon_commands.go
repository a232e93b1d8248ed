package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scenesmith/internal/apiclient"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopTimeout  = 10 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the scenesmith daemon process",
	}

	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))

	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon as a background process",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			if daemonReachable(cmd.Context(), ctx.apiAddress()) {
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			launchArgs := []string{"daemon", "run"}
			if ctx.configFlag != nil && strings.TrimSpace(*ctx.configFlag) != "" {
				launchArgs = append(launchArgs, "--config", strings.TrimSpace(*ctx.configFlag))
			}
			proc := exec.Command(exe, launchArgs...)
			if err := proc.Start(); err != nil {
				return fmt.Errorf("launch daemon: %w", err)
			}
			if err := proc.Process.Release(); err != nil {
				return fmt.Errorf("detach daemon: %w", err)
			}
			fmt.Fprintln(stdout, "Daemon launching...")

			if err := waitForDaemon(cmd.Context(), ctx.apiAddress(), daemonStartTimeout); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			pidPath := daemonPIDPath(cfg.Paths.LogDir)
			pid, err := readPIDFile(pidPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					fmt.Fprintln(stdout, "Daemon is not running")
					return nil
				}
				return err
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("locate daemon process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				if errors.Is(err, os.ErrProcessDone) {
					_ = os.Remove(pidPath)
					fmt.Fprintln(stdout, "Daemon is not running")
					return nil
				}
				return fmt.Errorf("signal daemon process %d: %w", pid, err)
			}
			fmt.Fprintf(stdout, "Stopping daemon (pid %d)...\n", pid)

			deadline := time.Now().Add(daemonStopTimeout)
			for time.Now().Before(deadline) {
				if err := proc.Signal(syscall.Signal(0)); err != nil {
					fmt.Fprintln(stdout, "Daemon stopped")
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return fmt.Errorf("daemon process %d did not exit within %s", pid, daemonStopTimeout)
		},
	}
}

func daemonReachable(ctx context.Context, addr string) bool {
	client, err := apiclient.New(addr)
	if err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = client.Health(probeCtx)
	return err == nil
}

func waitForDaemon(ctx context.Context, addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if daemonReachable(ctx, addr) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon failed to start within %s (check the logs under the configured log_dir)", timeout)
}

func daemonPIDPath(logDir string) string {
	return filepath.Join(logDir, "scenesmithd.pid")
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %q", path)
	}
	return pid, nil
}

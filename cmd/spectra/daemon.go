package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/client"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the spectrad daemon",
	Long: `Manage the spectrad daemon, which owns the instrument connection,
its controller and the acquisition manager.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the spectrad daemon",
	Long:  `Start the spectrad daemon in the background and wait until it is ready.`,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the spectrad daemon",
	Long:  `Stop the spectrad daemon gracefully. An open acquisition is finished and saved.`,
	RunE:  runDaemonStop,
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the spectrad daemon",
	Long:  `Stop and start the spectrad daemon.`,
	RunE:  runDaemonRestart,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the daemon, instrument and acquisition status.`,
	RunE:  runDaemonStatus,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonRestartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func runDaemonStart(_ *cobra.Command, _ []string) error {
	paths := daemonPaths()
	printVerbose("starting daemon (socket %s, pid %s)...", paths.Socket, paths.PID)
	if err := client.StartDaemon(paths); err != nil {
		printVerbose("start failed: %v", err)
		return err
	}
	printInfo("Daemon started")
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	paths := daemonPaths()
	if !client.IsDaemonRunning(paths.PID) {
		printInfo("Daemon is not running")
		return nil
	}
	printVerbose("sending shutdown request...")
	if err := client.StopDaemon(paths); err != nil {
		return err
	}
	printInfo("Daemon stopped")
	return nil
}

func runDaemonRestart(_ *cobra.Command, _ []string) error {
	if err := client.RestartDaemon(daemonPaths()); err != nil {
		return err
	}
	printInfo("Daemon restarted")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, _ []string) error {
	if !client.IsDaemonRunning(daemonPaths().PID) {
		printInfo("Daemon status: not running")
		return nil
	}

	return withDaemon(5*time.Second, func(ctx context.Context, c *client.Client) error {
		st, err := c.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get daemon status: %w", err)
		}
		printInfo("Daemon status: running")
		printInfo("  Uptime:      %s", formatDuration(time.Duration(st.UptimeSeconds)*time.Second))
		printInfo("  Memory:      %s", humanize.IBytes(st.MemoryBytes))
		printInfo("  Datasets:    %d", st.Datasets)
		printInfo("  Subscribers: %d", st.Subscribers)
		if !getQuiet() {
			printStatus(cmd.OutOrStdout(), st)
		}
		return nil
	})
}

// printStatus writes the instrument and acquisition part of st.
func printStatus(w io.Writer, st *spectrav1.Status) {
	fmt.Fprintf(w, "Instrument: %s (%s)\n", st.State, st.OperationMode)
	if st.SerialNumber != "" {
		fmt.Fprintf(w, "  Serial:     %s\n", st.SerialNumber)
		fmt.Fprintf(w, "  Hardware:   %s, source %s, firmware %s\n", st.HardwareType, st.SourceType, st.FirmwareVersion)
		fmt.Fprintf(w, "  Mass range: %g-%g\n", st.MinMass, st.MaxMass)
	}
	if len(st.Preventers) > 0 {
		fmt.Fprintf(w, "  Preventers: %s\n", strings.Join(st.Preventers, ", "))
	}
	if st.FaultCause != "" {
		fmt.Fprintf(w, "  Fault:      %s\n", st.FaultCause)
	}
	if st.PumpDownRemaining > 0 {
		fmt.Fprintf(w, "  Pump-down:  %s remaining\n", formatDuration(time.Duration(st.PumpDownRemaining*float64(time.Second))))
	}

	acq := st.Acquisition
	fmt.Fprintf(w, "Acquisition: %s\n", acq.State)
	if acq.SessionID != "" {
		fmt.Fprintf(w, "  Session:    %s\n", acq.SessionID)
	}
	if acq.DurationSeconds > 0 {
		fmt.Fprintf(w, "  Duration:   %s\n", formatDuration(time.Duration(acq.DurationSeconds*float64(time.Second))))
	}
	if acq.LastScanIndex >= 0 {
		fmt.Fprintf(w, "  Last scan:  #%d TIC %s\n", acq.LastScanIndex, humanize.SIWithDigits(acq.LastTIC, 3, ""))
	}
	fmt.Fprintf(w, "  Bins/AMU:   %d acquired, %d written\n", acq.BinsPerAMU, acq.WriteBinsPerAMU)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

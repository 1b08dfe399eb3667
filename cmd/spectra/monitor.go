package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/spectra/cmd/spectra/tui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live view of the instrument and acquisition",
	Long: `Open an interactive view of the daemon: instrument state and
preventers, the running acquisition with its latest scans, and the daemon
log. Keys switch the instrument between states and stop the acquisition.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().Duration("refresh", time.Second, "status polling interval")
	monitorCmd.Flags().String("session", "", "only show scans of this session")
	monitorCmd.Flags().Int("scans", 10, "number of recent scans to list")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	refresh, _ := cmd.Flags().GetDuration("refresh")
	session, _ := cmd.Flags().GetString("session")
	scans, _ := cmd.Flags().GetInt("scans")

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	return tui.Run(tui.Options{
		Source:    c,
		Refresh:   refresh,
		LogLines:  currentConfig().Logging.BufferSize,
		Scans:     scans,
		SessionID: session,
	})
}

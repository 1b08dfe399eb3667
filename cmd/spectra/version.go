package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/spectra/pkg/spectra/controller"
)

// Build-time variables set by goreleaser or go build -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version, commit hash, and build date of spectra.`,
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// runVersion prints version information.
func runVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "spectra %s\n", version)
	fmt.Fprintf(out, "  commit:   %s\n", commit)
	fmt.Fprintf(out, "  built:    %s\n", date)
	fmt.Fprintf(out, "  control:  %s\n", controller.SoftwareVersion)
	fmt.Fprintf(out, "  go:       %s\n", runtime.Version())
	fmt.Fprintf(out, "  os/arch:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

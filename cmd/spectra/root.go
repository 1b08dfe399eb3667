package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "spectra",
		Short: "Control a mass spectrometer and its acquisitions",
		Long: `Spectra drives a mass spectrometer through the spectrad daemon and
works with the datasets it records.

The daemon owns the instrument. Control and acquisition commands talk to it
over a unix socket; dataset commands work on files directly.

Examples:
  spectra daemon start                   # Start spectrad in the background
  spectra pump-down                      # Evacuate the vented instrument
  spectra operate                        # Switch on once in standby
  spectra acquire start -m method.xml -n run1
  spectra monitor                        # Live view of the daemon
  spectra inspect run1.spx               # Summarise a recorded dataset
  spectra convert ~/data --format yaml   # Export every dataset under a tree
  spectra simulate -m method.xml -d 30s  # Record without a daemon`,
		SilenceUsage:      true,
		PersistentPreRunE: initializeLogging,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/spectra/config.yaml)")
	rootCmd.PersistentFlags().String("socket", "", "daemon socket path (default from config)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("socket", rootCmd.PersistentFlags().Lookup("socket"))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...any) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

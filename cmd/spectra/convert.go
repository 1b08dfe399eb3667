package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/spectra/pkg/spectra/convert"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
)

var convertCmd = &cobra.Command{
	Use:   "convert [path]",
	Short: "Export recorded datasets",
	Long: `Convert every .spx dataset under path (default: the configured output
directory) to a compressed arrays file (.spz) or YAML. Files whose
destination already exists are skipped; failures are reported and do not
stop the run.

With --watch, convert keeps running and converts datasets as they appear.`,
	Example: `  spectra convert ~/data
  spectra convert run1.spx --format yaml
  spectra convert ~/data --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("format", "spz", "output format: spz or yaml")
	convertCmd.Flags().BoolP("watch", "w", false, "keep converting new datasets")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()
	root := cfg.Acquisition.OutputDir
	if len(args) > 0 {
		root = args[0]
	}
	if root == "" {
		root = "."
	}
	format, _ := cmd.Flags().GetString("format")
	watch, _ := cmd.Flags().GetBool("watch")

	out := cmd.OutOrStdout()
	conv, err := convert.New(convert.Options{
		Format:  format,
		Dataset: dataset.Options{FloorDeltaAtZero: cfg.Dataset.DeltaFloorAtZero},
		OnResult: func(r convert.Result) {
			if r.Status == convert.StatusConverted && !getQuiet() {
				fmt.Fprintf(out, "converted %s -> %s\n", r.Source, r.Dest)
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := conv.Run(ctx, root)
	printReport(out, rep)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if !watch {
		if rep.Failed > 0 {
			return fmt.Errorf("%d of %d datasets failed to convert", rep.Failed, rep.Total())
		}
		return nil
	}

	w, err := convert.NewWatcher(conv)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Watch(root); err != nil {
		return err
	}
	printInfo("Watching %d directories under %s (Ctrl-C to stop)", w.Watched(), root)
	w.Run(ctx)

	converted, skipped, failed := conv.Counts()
	printInfo("Totals: %d converted, %d skipped, %d failed", converted, skipped, failed)
	return nil
}

// printReport writes the summary of a conversion run.
func printReport(w io.Writer, rep convert.Report) {
	fmt.Fprintf(w, "%d converted, %d skipped, %d failed\n", rep.Converted, rep.Skipped, rep.Failed)
	for _, f := range rep.Failures {
		fmt.Fprintf(w, "  failed %s: %v\n", f.Source, f.Err)
	}
}

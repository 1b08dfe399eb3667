package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/spectra/pkg/spectra/archive"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.spx>",
	Short: "Summarise a recorded dataset",
	Long: `Print the metadata of a dataset file, its mass axis and spectra counts,
scalar channels and auxiliary files. --tic lists the total ion current of
every spectrum and --spectrum prints one spectrum.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Bool("tic", false, "list retention time, TIC and delta IC per spectrum")
	inspectCmd.Flags().Int("spectrum", -1, "print the non-zero bins of spectrum N")
	inspectCmd.Flags().Bool("log", false, "print the experiment log")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	ds, err := archive.ReadDataset(path, dataset.Options{FloorDeltaAtZero: currentConfig().Dataset.DeltaFloorAtZero})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", path, humanize.IBytes(uint64(info.Size())))
	writeSummary(out, ds)

	if showLog, _ := cmd.Flags().GetBool("log"); showLog {
		fmt.Fprintf(out, "\nExperiment log:\n%s\n", ds.ExperimentLog())
	}
	if tic, _ := cmd.Flags().GetBool("tic"); tic {
		if err := writeTIC(out, ds); err != nil {
			return err
		}
	}
	if n, _ := cmd.Flags().GetInt("spectrum"); n >= 0 {
		return writeSpectrum(out, ds, n)
	}
	return nil
}

// writeSummary prints metadata and sizes of ds.
func writeSummary(w io.Writer, ds *dataset.Dataset) {
	meta := ds.Metadata()
	fmt.Fprintf(w, "  Name:        %s\n", meta.Name)
	fmt.Fprintf(w, "  Recorded:    %s (%s)\n", meta.Date.Format("2006-01-02 15:04:05"), humanize.Time(meta.Date))
	fmt.Fprintf(w, "  Instrument:  %s %s, source %s\n", meta.HardwareType, meta.InstrumentID, meta.SourceType)
	fmt.Fprintf(w, "  Versions:    software %s, firmware %s\n", meta.SoftwareVersion, meta.FirmwareVersion)

	masses := ds.Masses()
	if len(masses) > 0 {
		fmt.Fprintf(w, "  Mass axis:   %s bins, %g-%g\n", humanize.Comma(int64(len(masses))), masses[0], masses[len(masses)-1])
	}
	rts := ds.RetentionTimes()
	fmt.Fprintf(w, "  Spectra:     %s", humanize.Comma(int64(ds.NumSpectra())))
	if len(rts) > 0 {
		fmt.Fprintf(w, ", rt %.2f-%.2fs", rts[0], rts[len(rts)-1])
	}
	fmt.Fprintln(w)
	if n := ds.NumSegments(); n > 0 {
		fmt.Fprintf(w, "  Segments:    %d\n", n)
	}
	if err := ds.Validity(); err != nil {
		fmt.Fprintf(w, "  Validity:    %v\n", err)
	}

	for i := 0; i < ds.NumScalarChannels(); i++ {
		name, _ := ds.ScalarChannelName(i)
		n, _ := ds.ScalarChannelNumSamples(i)
		fmt.Fprintf(w, "  Channel %d:   %s (%d samples)\n", i, name, n)
	}
	for i := 0; i < ds.NumAuxFiles(); i++ {
		f, err := ds.AuxFile(i)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "  Aux file %d:  %s [%s] %s\n", i, f.Name, f.Type, humanize.IBytes(uint64(len(f.Text))))
	}
}

func writeTIC(w io.Writer, ds *dataset.Dataset) error {
	fmt.Fprintf(w, "\n%6s %10s %14s %14s\n", "INDEX", "RT", "TIC", "DELTA IC")
	rts := ds.RetentionTimes()
	for i := range rts {
		tic, err := ds.TIC(i)
		if err != nil {
			return err
		}
		delta, err := ds.DeltaIC(i)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%6d %10.3f %14.6g %14.6g\n", i, rts[i], tic, delta)
	}
	return nil
}

func writeSpectrum(w io.Writer, ds *dataset.Dataset, n int) error {
	spectrum, err := ds.Spectrum(n)
	if err != nil {
		return err
	}
	masses := ds.Masses()
	fmt.Fprintf(w, "\nSpectrum %d:\n%10s %14s\n", n, "MASS", "INTENSITY")
	for i, v := range spectrum {
		if v != 0 {
			fmt.Fprintf(w, "%10.2f %14.6g\n", masses[i], v)
		}
	}
	return nil
}

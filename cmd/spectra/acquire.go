package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/client"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Control acquisitions",
	Long: `Start, pause, resume, extend and stop acquisitions on the daemon's
instrument. The instrument must be in operate to start a session.`,
}

var acquireStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an acquisition",
	Long: `Start an acquisition from a method file.

With two --ion-source and two --tune files the session alternates between
them scan by scan (switching mode).`,
	Example: `  spectra acquire start -m method.xml -n run1
  spectra acquire start -m method.xml -n run2 -f plates/a --tune tune.xml
  spectra acquire start -m method.xml -n sw --ion-source esi.xml --ion-source apci.xml \
      --tune esi-tune.xml --tune apci-tune.xml`,
	Args: cobra.NoArgs,
	RunE: runAcquireStart,
}

var acquireStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the acquisition and save its dataset",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withDaemon(30*time.Second, func(ctx context.Context, c *client.Client) error {
			if err := c.StopAcquisition(ctx); err != nil {
				return err
			}
			printInfo("Acquisition stopped")
			return nil
		})
	},
}

var acquirePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the acquisition",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		onInput, _ := cmd.Flags().GetBool("resume-on-input")
		return withDaemon(10*time.Second, func(ctx context.Context, c *client.Client) error {
			if err := c.PauseAcquisition(ctx, onInput); err != nil {
				return err
			}
			if onInput {
				printInfo("Acquisition paused until digital input 1 goes high")
			} else {
				printInfo("Acquisition paused")
			}
			return nil
		})
	},
}

var acquireResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused acquisition",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withDaemon(10*time.Second, func(ctx context.Context, c *client.Client) error {
			if err := c.ResumeAcquisition(ctx); err != nil {
				return err
			}
			printInfo("Acquisition resumed")
			return nil
		})
	},
}

var acquireExtendCmd = &cobra.Command{
	Use:     "extend <duration>",
	Short:   "Lengthen the running acquisition",
	Example: `  spectra acquire extend 5m`,
	Args:    cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", args[0], err)
		}
		return withDaemon(10*time.Second, func(ctx context.Context, c *client.Client) error {
			total, err := c.ExtendAcquisition(ctx, d)
			if err != nil {
				return err
			}
			printInfo("Acquisition extended to %s", formatDuration(total))
			return nil
		})
	},
}

var acquireWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print scans and state changes as they happen",
	Args:  cobra.NoArgs,
	RunE:  runAcquireWatch,
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List recorded datasets",
	Long:  `List the datasets in the daemon's catalog, most recent first.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDaemon(10*time.Second, func(ctx context.Context, c *client.Client) error {
			list, err := c.ListDatasets(ctx)
			if err != nil {
				return err
			}
			printDatasets(cmd.OutOrStdout(), list)
			return nil
		})
	},
}

func init() {
	acquireStartCmd.Flags().StringP("method", "m", "", "method XML file (required)")
	acquireStartCmd.Flags().StringP("name", "n", "", "dataset name (required)")
	acquireStartCmd.Flags().StringP("folder", "f", "", "folder under the output directory")
	acquireStartCmd.Flags().StringArray("ion-source", nil, "ion source optimization XML file (twice for switching)")
	acquireStartCmd.Flags().StringArray("tune", nil, "tune parameters XML file (twice for switching)")
	_ = acquireStartCmd.MarkFlagRequired("method")
	_ = acquireStartCmd.MarkFlagRequired("name")

	acquirePauseCmd.Flags().Bool("resume-on-input", false, "resume automatically when digital input 1 goes high")
	acquireWatchCmd.Flags().String("session", "", "only events of this session")

	acquireCmd.AddCommand(acquireStartCmd, acquireStopCmd, acquirePauseCmd,
		acquireResumeCmd, acquireExtendCmd, acquireWatchCmd)
	rootCmd.AddCommand(acquireCmd, datasetsCmd)
}

// readDocs reads every file named in paths.
func readDocs(paths []string) ([]string, error) {
	docs := make([]string, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		docs[i] = string(data)
	}
	return docs, nil
}

// buildStartRequest assembles the request from flag values. Two ion
// sources select switching mode.
func buildStartRequest(methodFile, name, folder string, sourceFiles, tuneFiles []string) (spectrav1.StartAcquisitionRequest, error) {
	req := spectrav1.StartAcquisitionRequest{Name: name, Folder: folder}

	docs, err := readDocs([]string{methodFile})
	if err != nil {
		return req, fmt.Errorf("reading method: %w", err)
	}
	req.Method = docs[0]

	sources, err := readDocs(sourceFiles)
	if err != nil {
		return req, fmt.Errorf("reading ion source: %w", err)
	}
	tunes, err := readDocs(tuneFiles)
	if err != nil {
		return req, fmt.Errorf("reading tune: %w", err)
	}

	switch {
	case len(sources) > 2 || len(tunes) > 2:
		return req, errors.New("at most two --ion-source and two --tune files")
	case len(sources) == 2 || len(tunes) == 2:
		if len(sources) != 2 || len(tunes) != 2 {
			return req, errors.New("switching needs two --ion-source and two --tune files")
		}
		req.Switching = true
		req.IonSources = [2]string{sources[0], sources[1]}
		req.Tunes = [2]string{tunes[0], tunes[1]}
	default:
		if len(sources) == 1 {
			req.IonSource = sources[0]
		}
		if len(tunes) == 1 {
			req.Tune = tunes[0]
		}
	}
	return req, nil
}

func runAcquireStart(cmd *cobra.Command, _ []string) error {
	methodFile, _ := cmd.Flags().GetString("method")
	name, _ := cmd.Flags().GetString("name")
	folder, _ := cmd.Flags().GetString("folder")
	sources, _ := cmd.Flags().GetStringArray("ion-source")
	tunes, _ := cmd.Flags().GetStringArray("tune")

	req, err := buildStartRequest(methodFile, name, folder, sources, tunes)
	if err != nil {
		return err
	}

	return withDaemon(30*time.Second, func(ctx context.Context, c *client.Client) error {
		id, err := c.StartAcquisition(ctx, req)
		if err != nil {
			return err
		}
		printInfo("Acquisition %s started (session %s)", name, id)
		return nil
	})
}

func runAcquireWatch(cmd *cobra.Command, _ []string) error {
	session, _ := cmd.Flags().GetString("session")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	events, err := c.WatchEvents(ctx, session)
	if err != nil {
		return err
	}
	for ev := range events {
		printEvent(cmd.OutOrStdout(), ev)
	}
	return nil
}

// printEvent writes one daemon event as a single line.
func printEvent(w io.Writer, ev spectrav1.Event) {
	switch ev.Type {
	case "scan":
		fmt.Fprintf(w, "scan  #%-5d rt %8.2fs  TIC %-8s base peak %.2f\n",
			ev.Index, ev.RetentionTime, humanize.SIWithDigits(ev.TIC, 3, ""), ev.BasePeakMass)
	case "state":
		fmt.Fprintf(w, "state %s -> %s\n", ev.From, ev.To)
	case "finished":
		fmt.Fprintf(w, "done  %s: %d spectra (%s) %s\n", ev.SessionID, ev.NumSpectra, ev.Reason, ev.Path)
		if ev.Error != "" {
			fmt.Fprintf(w, "      error: %s\n", ev.Error)
		}
	default:
		fmt.Fprintf(w, "%s\n", ev.Type)
	}
}

// printDatasets writes the catalog as a table.
func printDatasets(w io.Writer, list []spectrav1.Dataset) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No datasets recorded")
		return
	}
	fmt.Fprintf(w, "%-20s %8s %-10s %-14s %s\n", "NAME", "SPECTRA", "REASON", "FINISHED", "PATH")
	for _, d := range list {
		reason := d.Reason
		if d.Error != "" {
			reason = "error"
		}
		fmt.Fprintf(w, "%-20s %8d %-10s %-14s %s\n", d.Name, d.NumSpectra, reason, humanize.Time(d.FinishedAt), d.Path)
	}
}

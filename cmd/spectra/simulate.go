package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/spectra/pkg/spectra/acquisition"
	"github.com/jamesainslie/spectra/pkg/spectra/config"
	"github.com/jamesainslie/spectra/pkg/spectra/controller"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/instrument"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Record a dataset from the simulated instrument without a daemon",
	Long: `Simulate opens the simulated instrument in this process, pumps it down,
switches to operate and runs one acquisition from a method file. Scans are
printed as they arrive; the dataset is written when the method completes,
--duration elapses or the command is interrupted.`,
	Example: `  spectra simulate -m method.xml -n trial
  spectra simulate -m method.xml -n quick -d 10s --profile ~/sim.yaml`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringP("method", "m", "", "method XML file (required)")
	simulateCmd.Flags().StringP("name", "n", "simulated", "dataset name")
	simulateCmd.Flags().StringP("output", "o", "", "output directory (default from config)")
	simulateCmd.Flags().DurationP("duration", "d", 0, "stop after this long (0 runs the full method)")
	simulateCmd.Flags().String("profile", "", "simulator profile YAML (default from config)")
	_ = simulateCmd.MarkFlagRequired("method")
	rootCmd.AddCommand(simulateCmd)
}

// simulation is one in-process instrument and acquisition manager.
type simulation struct {
	inst     *instrument.Instrument
	ctrl     *controller.Controller
	mgr      *acquisition.Manager
	finished chan acquisition.Summary
}

func newSimulation(cfg *config.Config, profile, outputDir string, onScan func(acquisition.ScanEvent)) (*simulation, error) {
	inst, err := instrument.OpenSimulated(profile)
	if err != nil {
		return nil, err
	}

	ctrl := controller.New(controller.Options{
		PollInterval:    cfg.Instrument.PollInterval,
		PumpDownTimeout: cfg.Instrument.PumpDownTimeout,
		SettleTime:      cfg.Instrument.SettleTime,
	})
	if err := ctrl.StartController(inst); err != nil {
		_ = inst.Close()
		return nil, err
	}

	sim := &simulation{inst: inst, ctrl: ctrl, finished: make(chan acquisition.Summary, 1)}
	sim.mgr, err = acquisition.New(ctrl, acquisition.Options{
		ScanInterval:          cfg.Acquisition.ScanInterval,
		AcquisitionBinsPerAMU: cfg.Acquisition.AcquisitionBinsPerAMU,
		WriteBinsPerAMU:       cfg.Acquisition.WriteBinsPerAMU,
		MaxPathLength:         cfg.Acquisition.MaxPathLength,
		OutputDir:             outputDir,
		Dataset:               dataset.Options{FloorDeltaAtZero: cfg.Dataset.DeltaFloorAtZero},
		OnScan:                onScan,
		OnFinish: func(s acquisition.Summary) {
			select {
			case sim.finished <- s:
			default:
			}
		},
	})
	if err != nil {
		sim.close()
		return nil, err
	}
	return sim, nil
}

// waitForState polls until the controller reaches want.
func (s *simulation) waitForState(ctx context.Context, want types.InstrumentState) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		switch st := s.ctrl.State(); st {
		case want:
			return nil
		case types.StateFault:
			return fmt.Errorf("instrument faulted: %v", s.ctrl.FaultCause())
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", want, ctx.Err())
		case <-ticker.C:
		}
	}
}

// bringUp drives the instrument from power-on to operate.
func (s *simulation) bringUp(ctx context.Context) error {
	if err := s.waitForState(ctx, types.StateVented); err != nil {
		return err
	}
	printInfo("Pumping down...")
	if err := s.ctrl.PumpDown(); err != nil {
		return err
	}
	if err := s.waitForState(ctx, types.StateStandby); err != nil {
		return err
	}
	printInfo("Switching to operate")
	return s.ctrl.Operate()
}

// stop ends the session and returns its summary, which may come from a
// session that finished on its own meanwhile.
func (s *simulation) stop() acquisition.Summary {
	if err := s.mgr.Stop(); err != nil && !errors.Is(err, errcode.ErrNotAcquiring) {
		logging.Get("cli").Warn("stopping acquisition", "error", err)
	}
	return <-s.finished
}

func (s *simulation) close() {
	if s.mgr != nil {
		_ = s.mgr.Close()
	}
	if s.ctrl.State() == types.StateOperate {
		_ = s.ctrl.Standby()
	}
	_ = s.ctrl.StopController()
	_ = s.inst.Close()
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg := currentConfig()
	methodFile, _ := cmd.Flags().GetString("method")
	name, _ := cmd.Flags().GetString("name")
	outputDir, _ := cmd.Flags().GetString("output")
	limit, _ := cmd.Flags().GetDuration("duration")
	profile, _ := cmd.Flags().GetString("profile")
	if outputDir == "" {
		outputDir = cfg.Acquisition.OutputDir
	}
	if profile == "" {
		profile = cfg.Instrument.SimulationConfig
	}
	if cfg.Instrument.PollInterval <= 0 || cfg.Acquisition.ScanInterval <= 0 {
		return errors.New("simulate needs positive instrument.poll_interval and acquisition.scan_interval")
	}

	method, err := os.ReadFile(methodFile)
	if err != nil {
		return fmt.Errorf("reading method: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	sim, err := newSimulation(cfg, profile, outputDir, func(ev acquisition.ScanEvent) {
		if !getQuiet() {
			fmt.Fprintf(out, "scan #%-5d rt %8.2fs  TIC %.4g  base peak %.2f\n",
				ev.Index, ev.RetentionTime, ev.TIC, ev.BasePeakMass)
		}
	})
	if err != nil {
		return err
	}
	defer sim.close()

	upCtx, cancel := context.WithTimeout(ctx, cfg.Instrument.PumpDownTimeout+10*time.Second)
	err = sim.bringUp(upCtx)
	cancel()
	if err != nil {
		return err
	}

	if err := sim.mgr.Start(acquisition.Request{Method: string(method), Name: name}); err != nil {
		return err
	}
	printInfo("Acquiring %s (session %s)", name, sim.mgr.SessionID())

	var timeout <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeout = timer.C
	}

	var sum acquisition.Summary
	select {
	case sum = <-sim.finished:
	case <-timeout:
		sum = sim.stop()
	case <-ctx.Done():
		printInfo("Interrupted, saving dataset")
		sum = sim.stop()
	}

	if sum.Err != nil {
		return fmt.Errorf("acquisition %s: %w", sum.Reason, sum.Err)
	}
	printInfo("Wrote %d spectra to %s (%s)", sum.NumSpectra, sum.Path, sum.Reason)
	return nil
}

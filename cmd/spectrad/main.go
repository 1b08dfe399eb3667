// Command spectrad is the spectra daemon. It owns the instrument and serves
// the control API on a unix socket.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jamesainslie/spectra/pkg/daemon"
	"github.com/jamesainslie/spectra/pkg/spectra/acquisition"
	"github.com/jamesainslie/spectra/pkg/spectra/config"
	"github.com/jamesainslie/spectra/pkg/spectra/controller"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "spectrad: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("spectrad", flag.ContinueOnError)
	cfgFile := fs.String("config", "", "config file")
	socket := fs.String("socket", "", "socket path")
	pidFile := fs.String("pid", "", "PID file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgFile)
	if err != nil {
		return err
	}
	paths := daemon.Paths{
		PID:    firstNonEmpty(*pidFile, cfg.Daemon.PIDOrDefault()),
		Socket: firstNonEmpty(*socket, cfg.Daemon.SocketOrDefault()),
		DB:     cfg.Daemon.DBOrDefault(),
	}

	logCfg, err := cfg.Logging.ToLogging()
	if err != nil {
		return reportStartup(paths, err)
	}
	logCfg.ConsoleLevel = "error"
	if err := logging.Init(logCfg); err != nil {
		return reportStartup(paths, fmt.Errorf("initializing logging: %w", err))
	}
	defer func() { _ = logging.Close() }()
	log := logging.Get("daemon")

	if err := daemon.Claim(paths); err != nil {
		if errors.Is(err, daemon.ErrDaemonAlreadyRunning) {
			// The running daemon owns the status file.
			return err
		}
		return reportStartup(paths, err)
	}
	defer func() {
		if err := daemon.RemovePIDFile(paths.PID); err != nil {
			log.Warn("failed to remove PID file", "error", err)
		}
		_ = daemon.RemoveStatus(paths.Status())
	}()

	srv, err := daemon.NewServer(serverConfig(cfg, paths))
	if err != nil {
		log.Error("startup failed", "error", err)
		return reportStartup(paths, err)
	}
	if err := daemon.WriteStatusReady(paths.Status(), paths.Socket, srv.Controller().Instrument().SerialNumber()); err != nil {
		log.Warn("failed to write status file", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	log.Info("spectrad started", "socket", paths.Socket, "pid", os.Getpid())

	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case <-srv.Done():
		log.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			log.Error("server error", "error", err)
		}
		_ = srv.Close()
		return err
	}

	if err := srv.Close(); err != nil {
		log.Warn("error during shutdown", "error", err)
	}
	return <-serveErr
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// serverConfig maps the configuration onto the daemon. Datasets go under
// the data directory unless an output directory is configured.
func serverConfig(cfg *config.Config, paths daemon.Paths) daemon.Config {
	outputDir := cfg.Acquisition.OutputDir
	if outputDir == "" || outputDir == config.DefaultOutputDir {
		outputDir = filepath.Join(config.DataDir(), "datasets")
	}
	return daemon.Config{
		SocketPath:       paths.Socket,
		DataDir:          config.DataDir(),
		DBPath:           paths.DB,
		SimulationConfig: cfg.Instrument.SimulationConfig,
		Controller: controller.Options{
			PollInterval:    cfg.Instrument.PollInterval,
			PumpDownTimeout: cfg.Instrument.PumpDownTimeout,
			SettleTime:      cfg.Instrument.SettleTime,
		},
		Acquisition: acquisition.Options{
			ScanInterval:          cfg.Acquisition.ScanInterval,
			AcquisitionBinsPerAMU: cfg.Acquisition.AcquisitionBinsPerAMU,
			WriteBinsPerAMU:       cfg.Acquisition.WriteBinsPerAMU,
			MaxPathLength:         cfg.Acquisition.MaxPathLength,
			OutputDir:             outputDir,
			Dataset:               dataset.Options{FloorDeltaAtZero: cfg.Dataset.DeltaFloorAtZero},
		},
	}
}

// reportStartup records err in the status file so a client waiting for
// the daemon sees why it did not come up.
func reportStartup(paths daemon.Paths, err error) error {
	_ = os.MkdirAll(filepath.Dir(paths.Status()), 0o755)
	_ = daemon.WriteStatusError(paths.Status(), err)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

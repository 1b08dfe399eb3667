package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/spectra/pkg/client"
	"github.com/jamesainslie/spectra/pkg/spectra/config"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

// appConfig is the configuration loaded by initializeLogging.
var appConfig *config.Config

// loadConfig reads --config if given, otherwise the default search path.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

// initializeLogging is the root PersistentPreRunE: it loads configuration,
// creates the spectra directories and starts file logging.
func initializeLogging(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	appConfig = cfg

	if dir, err := config.ConfigDir(); err == nil {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := config.EnsureDataDir(); err != nil {
		return err
	}
	if err := os.MkdirAll(config.StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	logCfg, err := cfg.Logging.ToLogging()
	if err != nil {
		return err
	}
	if getVerbose() {
		logCfg.ConsoleLevel = "debug"
	}
	if err := logging.Init(logCfg); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logging.Get("cli").Debug("configuration loaded", "file", cfg.File)
	return nil
}

// currentConfig returns the loaded configuration, or defaults when the
// pre-run hook has not run.
func currentConfig() *config.Config {
	if appConfig != nil {
		return appConfig
	}
	cfg, err := loadConfig()
	if err != nil {
		return &config.Config{}
	}
	appConfig = cfg
	return cfg
}

// daemonPaths returns the paths of the daemon this CLI talks to.
func daemonPaths() client.DaemonPaths {
	cfg := currentConfig()
	socket := viper.GetString("socket")
	if socket == "" {
		socket = cfg.Daemon.SocketOrDefault()
	}
	return client.DaemonPaths{
		Binary: cfg.Daemon.BinaryPath,
		Socket: socket,
		PID:    cfg.Daemon.PIDOrDefault(),
		Config: cfg.File,
	}
}

var errDaemonNotRunning = errors.New("daemon is not running (start with: spectra daemon start)")

// connectDaemon connects to the running daemon.
func connectDaemon(ctx context.Context) (*client.Client, error) {
	paths := daemonPaths()
	if !client.IsDaemonRunning(paths.PID) {
		return nil, errDaemonNotRunning
	}
	printVerbose("connecting to %s", paths.Socket)
	c, err := client.ConnectWithContext(ctx, paths.Socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return c, nil
}

// withDaemon runs fn against the daemon under a timeout.
func withDaemon(timeout time.Duration, fn func(ctx context.Context, c *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c, err := connectDaemon(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

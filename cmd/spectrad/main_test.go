package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/spectra/pkg/daemon"
	"github.com/jamesainslie/spectra/pkg/spectra/config"
)

func TestServerConfig(t *testing.T) {
	cfg := &config.Config{
		Instrument: config.InstrumentConfig{
			SimulationConfig: "/etc/spectra/sim.yaml",
			PollInterval:     250 * time.Millisecond,
			PumpDownTimeout:  time.Minute,
		},
		Acquisition: config.AcquisitionConfig{
			ScanInterval:          100 * time.Millisecond,
			AcquisitionBinsPerAMU: 20,
			WriteBinsPerAMU:       5,
			MaxPathLength:         200,
			OutputDir:             "/data/runs",
		},
		Dataset: config.DatasetConfig{DeltaFloorAtZero: true},
	}
	paths := daemon.Paths{PID: "/tmp/s.pid", Socket: "/tmp/s.sock", DB: "/tmp/catalog"}

	got := serverConfig(cfg, paths)
	assert.Equal(t, "/tmp/s.sock", got.SocketPath)
	assert.Equal(t, "/tmp/catalog", got.DBPath)
	assert.Equal(t, "/etc/spectra/sim.yaml", got.SimulationConfig)
	assert.Equal(t, 250*time.Millisecond, got.Controller.PollInterval)
	assert.Equal(t, time.Minute, got.Controller.PumpDownTimeout)
	assert.Equal(t, 20, got.Acquisition.AcquisitionBinsPerAMU)
	assert.Equal(t, 5, got.Acquisition.WriteBinsPerAMU)
	assert.Equal(t, 200, got.Acquisition.MaxPathLength)
	assert.Equal(t, "/data/runs", got.Acquisition.OutputDir)
	assert.True(t, got.Acquisition.Dataset.FloorDeltaAtZero)

	cfg.Acquisition.OutputDir = config.DefaultOutputDir
	got = serverConfig(cfg, paths)
	assert.Equal(t, filepath.Join(config.DataDir(), "datasets"), got.Acquisition.OutputDir)
}

func TestReportStartup(t *testing.T) {
	dir := t.TempDir()
	paths := daemon.Paths{Socket: filepath.Join(dir, "run", "spectra.sock")}

	err := reportStartup(paths, assert.AnError)
	require.ErrorIs(t, err, assert.AnError)

	status, err := daemon.ReadStatus(paths.Status())
	require.NoError(t, err)
	assert.Contains(t, status.Error, assert.AnError.Error())
}

func TestRunRejectsBadFlags(t *testing.T) {
	assert.Error(t, run([]string{"--bogus"}))
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Empty(t, firstNonEmpty("", ""))
}

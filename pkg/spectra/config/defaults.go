// Package config loads spectra configuration from file, environment and
// defaults.
package config

import "time"

// Defaults.
const (
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultPumpDownTimeout = 10 * time.Minute
	DefaultSettleTime      = 0

	DefaultScanInterval          = 200 * time.Millisecond
	DefaultAcquisitionBinsPerAMU = 10
	DefaultWriteBinsPerAMU       = 10
	DefaultMaxPathLength         = 260
	DefaultOutputDir             = "."

	DefaultLogBufferSize = 500

	// DaemonBinary is the daemon executable name.
	DaemonBinary = "spectrad"

	// EnvPrefix prefixes environment overrides, e.g. SPECTRA_ACQUISITION_OUTPUT_DIR.
	EnvPrefix = "SPECTRA"
)

// DefaultComponentLevels are the per-component log levels of a fresh
// configuration.
var DefaultComponentLevels = map[string]string{
	"controller":  "info",
	"acquisition": "info",
	"daemon":      "info",
	"convert":     "info",
}

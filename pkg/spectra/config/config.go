package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

// InstrumentConfig configures the instrument and its controller.
type InstrumentConfig struct {
	// SimulationConfig is a YAML simulator profile. Empty uses the built-in
	// profile.
	SimulationConfig string        `mapstructure:"simulation_config" yaml:"simulation_config"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PumpDownTimeout  time.Duration `mapstructure:"pump_down_timeout" yaml:"pump_down_timeout"`
	SettleTime       time.Duration `mapstructure:"settle_time" yaml:"settle_time"`
}

// AcquisitionConfig configures the acquisition manager.
type AcquisitionConfig struct {
	ScanInterval          time.Duration `mapstructure:"scan_interval" yaml:"scan_interval"`
	AcquisitionBinsPerAMU int           `mapstructure:"acquisition_bins_per_amu" yaml:"acquisition_bins_per_amu"`
	WriteBinsPerAMU       int           `mapstructure:"write_bins_per_amu" yaml:"write_bins_per_amu"`
	MaxPathLength         int           `mapstructure:"max_path_length" yaml:"max_path_length"`
	OutputDir             string        `mapstructure:"output_dir" yaml:"output_dir"`
}

// DatasetConfig configures dataset readers.
type DatasetConfig struct {
	DeltaFloorAtZero bool `mapstructure:"delta_floor_at_zero" yaml:"delta_floor_at_zero"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size" yaml:"max_size"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Daily      bool   `mapstructure:"daily" yaml:"daily"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level        string            `mapstructure:"level" yaml:"level"`
	Path         string            `mapstructure:"path" yaml:"path"`
	ConsoleLevel string            `mapstructure:"console_level" yaml:"console_level"`
	BufferSize   int               `mapstructure:"buffer_size" yaml:"buffer_size"`
	Rotation     RotationConfig    `mapstructure:"rotation" yaml:"rotation"`
	Components   map[string]string `mapstructure:"components" yaml:"components"`
}

// DaemonConfig configures spectrad. Empty paths use the XDG defaults.
type DaemonConfig struct {
	SocketPath string `mapstructure:"socket_path" yaml:"socket_path"`
	PIDPath    string `mapstructure:"pid_path" yaml:"pid_path"`
	DBPath     string `mapstructure:"db_path" yaml:"db_path"`
	BinaryPath string `mapstructure:"binary_path" yaml:"binary_path"`
}

// Config is the complete configuration.
type Config struct {
	Instrument  InstrumentConfig  `mapstructure:"instrument" yaml:"instrument"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition" yaml:"acquisition"`
	Dataset     DatasetConfig     `mapstructure:"dataset" yaml:"dataset"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Daemon      DaemonConfig      `mapstructure:"daemon" yaml:"daemon"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instrument.simulation_config", "")
	v.SetDefault("instrument.poll_interval", DefaultPollInterval)
	v.SetDefault("instrument.pump_down_timeout", DefaultPumpDownTimeout)
	v.SetDefault("instrument.settle_time", time.Duration(DefaultSettleTime))

	v.SetDefault("acquisition.scan_interval", DefaultScanInterval)
	v.SetDefault("acquisition.acquisition_bins_per_amu", DefaultAcquisitionBinsPerAMU)
	v.SetDefault("acquisition.write_bins_per_amu", DefaultWriteBinsPerAMU)
	v.SetDefault("acquisition.max_path_length", DefaultMaxPathLength)
	v.SetDefault("acquisition.output_dir", DefaultOutputDir)

	v.SetDefault("dataset.delta_floor_at_zero", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console_level", "")
	v.SetDefault("logging.buffer_size", DefaultLogBufferSize)
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", DefaultComponentLevels)

	v.SetDefault("daemon.socket_path", "")
	v.SetDefault("daemon.pid_path", "")
	v.SetDefault("daemon.db_path", "")
	v.SetDefault("daemon.binary_path", "")
}

// Load reads the configuration. The file is the first config.yaml found in
// $XDG_CONFIG_HOME/spectra and $HOME/.config/spectra; environment variables
// prefixed SPECTRA_ override it, and defaults fill the rest.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads the configuration from an explicit file.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		dirs, err := searchDirs()
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	var err error
	if cfg.Instrument.SimulationConfig, err = ExpandPath(cfg.Instrument.SimulationConfig); err != nil {
		return nil, err
	}
	if cfg.Acquisition.OutputDir, err = ExpandPath(cfg.Acquisition.OutputDir); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	for _, b := range []struct {
		key string
		n   int
	}{
		{"acquisition.acquisition_bins_per_amu", c.Acquisition.AcquisitionBinsPerAMU},
		{"acquisition.write_bins_per_amu", c.Acquisition.WriteBinsPerAMU},
	} {
		if b.n < 1 || b.n > 100 {
			return fmt.Errorf("%s: %d out of range [1, 100]", b.key, b.n)
		}
	}
	if c.Acquisition.MaxPathLength <= 0 {
		return fmt.Errorf("acquisition.max_path_length: must be positive")
	}
	if c.Instrument.PollInterval < 0 || c.Acquisition.ScanInterval < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if _, err := c.Logging.ToLogging(); err != nil {
		return err
	}
	return nil
}

// ToLogging converts the logging section for logging.Init.
func (l LoggingConfig) ToLogging() (logging.Config, error) {
	if _, err := logging.ParseLevel(l.Level); err != nil {
		return logging.Config{}, fmt.Errorf("logging.level: %w", err)
	}
	out := logging.Config{
		Level:        l.Level,
		Path:         l.Path,
		ConsoleLevel: l.ConsoleLevel,
		BufferSize:   l.BufferSize,
		Components:   l.Components,
		Rotation: logging.RotationConfig{
			MaxAge:     l.Rotation.MaxAge,
			MaxBackups: l.Rotation.MaxBackups,
			Daily:      l.Rotation.Daily,
		},
	}
	if l.Rotation.MaxSize != "" {
		size, err := logging.ParseSize(l.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		out.Rotation.MaxSize = size
	}
	if out.Path == "" {
		out.Path = DefaultLogPath()
	}
	return out, nil
}

// SocketOrDefault returns the daemon socket, falling back to the default.
func (d DaemonConfig) SocketOrDefault() string {
	if d.SocketPath != "" {
		return d.SocketPath
	}
	return DefaultSocketPath()
}

// PIDOrDefault returns the PID file path, falling back to the default.
func (d DaemonConfig) PIDOrDefault() string {
	if d.PIDPath != "" {
		return d.PIDPath
	}
	return DefaultPIDPath()
}

// DBOrDefault returns the catalog path, falling back to the default.
func (d DaemonConfig) DBOrDefault() string {
	if d.DBPath != "" {
		return d.DBPath
	}
	return DefaultDBPath()
}

func searchDirs() ([]string, error) {
	var dirs []string
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		dirs = append(dirs, filepath.Join(x, "spectra"))
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("locating home directory: %w", err)
	}
	return append(dirs, filepath.Join(home, ".config", "spectra")), nil
}

// ConfigDir returns the directory WriteDefault writes to.
func ConfigDir() (string, error) {
	dirs, err := searchDirs()
	if err != nil {
		return "", err
	}
	return dirs[0], nil
}

// ConfigPath returns the default configuration file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WriteDefault writes a commented default configuration file and returns
// its path. An existing file is left alone.
func WriteDefault() (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile()), 0o644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

func defaultFile() string {
	return fmt.Sprintf(`# spectra configuration

instrument:
  # Simulator profile (YAML). Empty uses the built-in profile.
  simulation_config: ""
  poll_interval: %s
  pump_down_timeout: %s
  # Operate stays blocked this long after vacuum is reached.
  settle_time: 0s

acquisition:
  # Zero leaves scanning to explicit steps.
  scan_interval: %s
  acquisition_bins_per_amu: %d   # 1..100
  write_bins_per_amu: %d         # 1..100
  max_path_length: %d
  output_dir: %q

dataset:
  # Clamp background-subtracted intensities at zero.
  delta_floor_at_zero: false

logging:
  level: info             # debug, info, warn, error
  path: ""                # default: $XDG_STATE_HOME/spectra/spectra.log
  console_level: ""
  buffer_size: %d
  rotation:
    max_size: 10MB
    max_age: 30           # days
    max_backups: 5
    daily: true
  components:
    controller: info
    acquisition: info
    daemon: info
    convert: info

daemon:
  socket_path: ""         # default: $XDG_DATA_HOME/spectra/spectra.sock
  pid_path: ""            # default: $XDG_DATA_HOME/spectra/spectra.pid
  db_path: ""             # default: $XDG_DATA_HOME/spectra/catalog.db
  binary_path: ""         # spectrad, found next to spectra or on PATH
`, DefaultPollInterval, DefaultPumpDownTimeout, DefaultScanInterval,
		DefaultAcquisitionBinsPerAMU, DefaultWriteBinsPerAMU, DefaultMaxPathLength,
		DefaultOutputDir, DefaultLogBufferSize)
}

// ExpandPath expands a leading ~ to the home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/spectra, home of the socket, PID file and
// catalog.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "spectra")
}

// StateDir returns $XDG_STATE_HOME/spectra, home of the log and status
// files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "spectra")
}

func DefaultSocketPath() string { return filepath.Join(DataDir(), "spectra.sock") }
func DefaultPIDPath() string    { return filepath.Join(DataDir(), "spectra.pid") }
func DefaultDBPath() string     { return filepath.Join(DataDir(), "catalog.db") }
func DefaultLogPath() string    { return logging.DefaultLogPath() }

// EnsureDataDir creates DataDir.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// DefaultBinaryPath returns spectrad from the Go install locations, checked
// in order GOBIN, GOPATH/bin, ~/go/bin. It returns "" when none has it.
func DefaultBinaryPath() string {
	var dirs []string
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		dirs = append(dirs, gobin)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		dirs = append(dirs, filepath.Join(gopath, "bin"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "go", "bin"))
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, DaemonBinary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

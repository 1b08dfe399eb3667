package instrument

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// Peak is a simulated analyte peak.
type Peak struct {
	Mass      float64 `yaml:"mass"`
	Intensity float64 `yaml:"intensity"`
	Width     float64 `yaml:"width"` // standard deviation in AMU
}

// Profile configures a simulated instrument. It is loaded from YAML:
//
//	serial_number: SIM-0001
//	hardware: Simulated
//	source: ESI
//	pump_down_time: 2s
//	peaks:
//	  - {mass: 195.1, intensity: 1.0e6, width: 0.2}
type Profile struct {
	SerialNumber    string        `yaml:"serial_number"`
	Hardware        string        `yaml:"hardware"`
	Source          string        `yaml:"source"`
	FirmwareVersion string        `yaml:"firmware_version"`
	MinMass         float64       `yaml:"min_mass"`
	MaxMass         float64       `yaml:"max_mass"`
	MaxScanSpeed    float64       `yaml:"max_scan_speed"`
	DualSource      bool          `yaml:"dual_source"`
	PumpDownTime    time.Duration `yaml:"pump_down_time"`
	VacuumFails     bool          `yaml:"vacuum_fails"`
	FirmwareOK      *bool         `yaml:"firmware_ok"`
	Baseline        float64       `yaml:"baseline"`
	Noise           float64       `yaml:"noise"`
	Seed            uint64        `yaml:"seed"`
	Peaks           []Peak        `yaml:"peaks"`
}

// DefaultProfile returns the profile used when no file is given.
func DefaultProfile() Profile {
	return Profile{
		SerialNumber:    "SIM-0001",
		Hardware:        types.HardwareSimulated.String(),
		Source:          types.SourceESI.String(),
		FirmwareVersion: "6.4.14",
		MinMass:         10,
		MaxMass:         1200,
		MaxScanSpeed:    10000,
		PumpDownTime:    2 * time.Second,
		Baseline:        100,
		Noise:           10,
		Seed:            1,
		Peaks: []Peak{
			{Mass: 118.09, Intensity: 4.0e5, Width: 0.15},
			{Mass: 195.09, Intensity: 1.0e6, Width: 0.2},
			{Mass: 322.05, Intensity: 2.5e5, Width: 0.2},
			{Mass: 622.03, Intensity: 6.0e5, Width: 0.25},
		},
	}
}

// LoadProfile reads a YAML profile. Missing fields keep their defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("reading simulation profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing simulation profile %s: %w", path, err)
	}
	return p, nil
}

// OpenSimulated opens a simulated instrument. An empty path uses
// DefaultProfile.
func OpenSimulated(profilePath string) (*Instrument, error) {
	p := DefaultProfile()
	if profilePath != "" {
		var err error
		if p, err = LoadProfile(profilePath); err != nil {
			return nil, err
		}
	}
	sim, err := NewSimulator(p)
	if err != nil {
		return nil, err
	}
	return Open(sim)
}

// Simulator is an in-memory Transport and Scanner.
type Simulator struct {
	mu      sync.Mutex
	profile Profile
	info    Info
	now     func() time.Time
	rng     *rand.Rand

	pumpOn      bool
	pumpStarted time.Time
	highVoltage bool
	safetyOK    bool
	commOK      bool
	switches    [types.NumInstrumentSwitches]bool
	digital     [4]bool
	analog      map[int]float64
	tune        map[types.TuneParameter]float64

	faults chan error
	closed bool
}

// ErrSimulatorClosed is returned after Close.
var ErrSimulatorClosed = errors.New("simulator closed")

// NewSimulator builds a simulator from a profile.
func NewSimulator(p Profile) (*Simulator, error) {
	hw, err := types.ParseHardwareType(p.Hardware)
	if err != nil {
		hw = types.HardwareUnknown
	}
	src, err := types.ParseSourceType(p.Source)
	if err != nil {
		return nil, fmt.Errorf("simulation profile: %w", err)
	}

	return &Simulator{
		profile: p,
		info: Info{
			SerialNumber:    p.SerialNumber,
			HardwareType:    hw,
			SourceType:      src,
			FirmwareVersion: p.FirmwareVersion,
			MinMass:         p.MinMass,
			MaxMass:         p.MaxMass,
			MaxScanSpeed:    p.MaxScanSpeed,
			DualSource:      p.DualSource,
		},
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15)),
		safetyOK: true,
		commOK:   true,
		analog:   make(map[int]float64),
		tune:     make(map[types.TuneParameter]float64),
		faults:   make(chan error, 4),
	}, nil
}

// SetClock replaces the time source.
func (s *Simulator) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetDigitalInput sets digital input line 1..4.
func (s *Simulator) SetDigitalInput(line int, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if line >= 1 && line <= len(s.digital) {
		s.digital[line-1] = on
	}
}

// SetAnalogInput sets the value returned by ReadAnalogInput(line).
func (s *Simulator) SetAnalogInput(line int, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analog[line] = v
}

// SetSafetySwitch opens or closes the safety interlock.
func (s *Simulator) SetSafetySwitch(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safetyOK = ok
}

// SetCommunication simulates losing or regaining the link.
func (s *Simulator) SetCommunication(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commOK = ok
}

// InjectFault delivers an asynchronous hardware fault.
func (s *Simulator) InjectFault(err error) {
	select {
	case s.faults <- err:
	default:
	}
}

// Info implements Transport.
func (s *Simulator) Info() (Info, error) {
	return s.info, nil
}

func (s *Simulator) pumpProgress() float64 {
	if !s.pumpOn {
		return 0
	}
	if s.profile.PumpDownTime <= 0 {
		return 1
	}
	return math.Min(1, float64(s.now().Sub(s.pumpStarted))/float64(s.profile.PumpDownTime))
}

func (s *Simulator) vacuumOK() bool {
	return !s.profile.VacuumFails && s.pumpProgress() >= 1
}

// BinaryReadback implements Transport.
func (s *Simulator) BinaryReadback(rb types.BinaryReadback) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSimulatorClosed
	}

	switch rb {
	case types.RBCommunicationOK:
		return s.commOK, nil
	case types.RBFirmwareVersionOK:
		return s.profile.FirmwareOK == nil || *s.profile.FirmwareOK, nil
	case types.RBPumpSpeedOK:
		return s.pumpProgress() >= 0.5, nil
	case types.RBVacuumOK:
		return s.vacuumOK(), nil
	case types.RBSafetySwitchOK:
		return s.safetyOK, nil
	case types.RBFIASignal:
		return false, nil
	case types.RBDigitalInput1, types.RBDigitalInput2, types.RBDigitalInput3, types.RBDigitalInput4:
		return s.digital[rb-types.RBDigitalInput1], nil
	case types.RBPumpPower:
		return s.pumpOn, nil
	case types.RBHighVoltages:
		return s.highVoltage, nil
	}
	if rb >= types.RBPositiveIon && rb <= types.RBUsingHelium {
		return s.switches[rb-types.RBPositiveIon], nil
	}
	return false, fmt.Errorf("unknown binary readback %d", int(rb))
}

// NumberReadback implements Transport.
func (s *Simulator) NumberReadback(rb types.NumberReadback) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSimulatorClosed
	}

	progress := s.pumpProgress()
	hv := 0.0
	if s.highVoltage {
		hv = 1
	}

	switch rb {
	case types.RBPiraniPressure:
		// mbar, log-linear from atmosphere to 1e-2.
		if s.profile.VacuumFails {
			return 10, nil
		}
		return math.Pow(10, 3-5*progress), nil
	case types.RBTurboSpeed:
		return 100 * math.Min(1, 2*progress), nil
	case types.RBCapillaryTemperature:
		return s.tune[types.CapillaryTemperature], nil
	case types.RBSourceGasTemperature:
		return s.tune[types.SourceGasTemperature], nil
	case types.RBTransferLineTemperature:
		return s.tune[types.TransferLineTemperature], nil
	case types.RBCapillaryVoltage:
		return hv * s.tune[types.CapillaryVoltage], nil
	case types.RBSourceVoltage:
		return hv * s.tune[types.SourceVoltageOffset], nil
	case types.RBExtractionElectrode:
		return hv * s.tune[types.ExtractionElectrode], nil
	case types.RBHexapoleBias, types.RBPoleBias:
		return hv * s.tune[types.HexapoleBias], nil
	case types.RBHexapoleRF:
		return hv * s.tune[types.HexapoleRFOffset], nil
	case types.RBRectifiedRF:
		return hv * s.tune[types.HexapoleRFOffset] / 10, nil
	case types.RBESIVoltage:
		return hv * s.tune[types.ESIVoltage], nil
	case types.RBAPCICurrent:
		return hv * s.tune[types.APCICoronaDischarge], nil
	case types.RBDetectorVoltage:
		return hv * s.tune[types.DetectorVoltage], nil
	case types.RBDynodeVoltage:
		return hv * 5000, nil
	case types.RBDC1, types.RBDC2:
		return hv * s.tune[types.ResolutionOffset], nil
	}
	return 0, fmt.Errorf("unknown number readback %d", int(rb))
}

// ReadAnalogInput implements Transport.
func (s *Simulator) ReadAnalogInput(line int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSimulatorClosed
	}
	if line < 0 || line > 3 {
		return 0, fmt.Errorf("analog line %d out of range", line)
	}
	return s.analog[line], nil
}

// SetSwitch implements Transport.
func (s *Simulator) SetSwitch(sw types.InstrumentSwitch, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSimulatorClosed
	}
	s.switches[sw] = on
	return nil
}

// WriteTuneParameter implements Transport.
func (s *Simulator) WriteTuneParameter(p types.TuneParameter, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSimulatorClosed
	}
	s.tune[p] = v
	return nil
}

// SetPump implements Transport.
func (s *Simulator) SetPump(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSimulatorClosed
	}
	if on && !s.pumpOn {
		s.pumpStarted = s.now()
	}
	s.pumpOn = on
	if !on {
		s.highVoltage = false
	}
	return nil
}

// SetHighVoltage implements Transport.
func (s *Simulator) SetHighVoltage(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSimulatorClosed
	}
	if on && !s.vacuumOK() {
		return errors.New("high voltage refused: no vacuum")
	}
	s.highVoltage = on
	return nil
}

// PumpDownRemaining implements Transport.
func (s *Simulator) PumpDownRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pumpOn {
		return s.profile.PumpDownTime
	}
	remaining := s.pumpStarted.Add(s.profile.PumpDownTime).Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Faults implements Transport.
func (s *Simulator) Faults() <-chan error {
	return s.faults
}

// Close implements Transport.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSimulatorClosed
	}
	s.closed = true
	s.pumpOn = false
	s.highVoltage = false
	return nil
}

// Scan implements Scanner. Peaks are Gaussian on a flat baseline with
// uniform noise; the signal scales with detector voltage and is zero
// without high voltage.
func (s *Simulator) Scan(req ScanRequest) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ScanResult{}, ErrSimulatorClosed
	}

	out := make([]float64, len(req.Masses))
	if !s.highVoltage {
		return ScanResult{Intensities: out}, nil
	}

	gain := 1.0
	if dv, ok := req.Tune[types.DetectorVoltage]; ok && dv > 0 {
		gain = dv / 1200
	}

	for k, m := range req.Masses {
		v := s.profile.Baseline
		for _, p := range s.profile.Peaks {
			if p.Width <= 0 {
				continue
			}
			d := (m - p.Mass) / p.Width
			if d > -6 && d < 6 {
				v += p.Intensity * math.Exp(-0.5*d*d)
			}
		}
		if s.profile.Noise > 0 {
			v += (s.rng.Float64()*2 - 1) * s.profile.Noise
		}
		out[k] = math.Max(0, v*gain)
	}

	return ScanResult{Intensities: out, AnalogOutput: s.analog[0]}, nil
}

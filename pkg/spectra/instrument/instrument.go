// Package instrument provides the handle to one mass spectrometer.
//
// An Instrument owns its Transport and a tune.Registry. The handle must be
// released with Close, which is safe to call more than once:
//
//	inst, err := instrument.OpenSimulated("sim.yaml")
//	if err != nil {
//	    return err
//	}
//	defer inst.Close()
package instrument

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
	"github.com/jamesainslie/spectra/pkg/spectra/tune"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// ErrClosed is returned by every call on a closed Instrument.
var ErrClosed = errors.New("instrument closed")

// Instrument is a handle to one physical or simulated device.
type Instrument struct {
	mu        sync.Mutex // serialises transport writes
	transport Transport
	info      Info
	tune      *tune.Registry

	closeOnce sync.Once
	closed    bool
}

// Open wraps a connected transport. The transport is closed if Open fails.
func Open(t Transport) (*Instrument, error) {
	info, err := t.Info()
	if err != nil {
		closeTransport(t)
		return nil, fmt.Errorf("%w: %v", errcode.ErrNoUSBConnection, err)
	}
	if info.MinMass >= info.MaxMass {
		closeTransport(t)
		return nil, fmt.Errorf("%w: mass range [%g, %g]", errcode.ErrInstrumentTypeUnknown, info.MinMass, info.MaxMass)
	}

	inst := &Instrument{
		transport: t,
		info:      info,
		tune:      tune.NewRegistry(info.SourceType),
	}

	// Push the power-on tune so hardware and registry agree.
	if err := inst.writeAll(inst.tune.Snapshot()); err != nil {
		closeTransport(t)
		return nil, err
	}

	logging.Get("instrument").Info("instrument opened",
		"serial", info.SerialNumber, "hardware", info.HardwareType, "source", info.SourceType)
	return inst, nil
}

func closeTransport(t Transport) {
	if err := t.Close(); err != nil {
		logging.Get("instrument").Warn("failed to release transport", "error", err)
	}
}

// Close releases the device handle. Release failures are logged and
// otherwise ignored.
func (i *Instrument) Close() error {
	i.closeOnce.Do(func() {
		i.mu.Lock()
		i.closed = true
		i.mu.Unlock()

		closeTransport(i.transport)
		logging.Get("instrument").Debug("instrument released", "serial", i.info.SerialNumber)
	})
	return nil
}

// Info returns the identity of the device.
func (i *Instrument) Info() Info {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.info
}

// SerialNumber returns the device serial number.
func (i *Instrument) SerialNumber() string { return i.info.SerialNumber }

// FirmwareVersion returns the firmware version string.
func (i *Instrument) FirmwareVersion() string { return i.info.FirmwareVersion }

// HardwareType returns the device family.
func (i *Instrument) HardwareType() types.HardwareType { return i.info.HardwareType }

// SourceType returns the fitted ion source.
func (i *Instrument) SourceType() types.SourceType { return i.Info().SourceType }

// MinMass returns the lowest scannable mass.
func (i *Instrument) MinMass() float64 { return i.info.MinMass }

// MaxMass returns the highest scannable mass.
func (i *Instrument) MaxMass() float64 { return i.info.MaxMass }

// MaxScanSpeed returns the maximum scan speed in AMU per second.
func (i *Instrument) MaxScanSpeed() float64 { return i.info.MaxScanSpeed }

// Tune returns the tune registry. Writes through the registry do not reach
// the hardware; use SetTuneParameter or ApplyTune.
func (i *Instrument) Tune() *tune.Registry { return i.tune }

// BinaryReadback reads a boolean readback.
func (i *Instrument) BinaryReadback(rb types.BinaryReadback) (bool, error) {
	if !rb.Valid() {
		return false, fmt.Errorf("%w: binary readback %d", errcode.ErrIndexOutOfRange, int(rb))
	}
	if err := i.check(); err != nil {
		return false, err
	}
	return i.transport.BinaryReadback(rb)
}

// NumberReadback reads a numeric readback.
func (i *Instrument) NumberReadback(rb types.NumberReadback) (float64, error) {
	if !rb.Valid() {
		return 0, fmt.Errorf("%w: number readback %d", errcode.ErrIndexOutOfRange, int(rb))
	}
	if err := i.check(); err != nil {
		return 0, err
	}
	return i.transport.NumberReadback(rb)
}

// ReadAnalogInput reads an analog input line.
func (i *Instrument) ReadAnalogInput(line int) (float64, error) {
	if err := i.check(); err != nil {
		return 0, err
	}
	return i.transport.ReadAnalogInput(line)
}

// SetSwitch turns an instrument switch on or off.
func (i *Instrument) SetSwitch(sw types.InstrumentSwitch, on bool) error {
	if !sw.Valid() {
		return fmt.Errorf("%w: switch %d", errcode.ErrIndexOutOfRange, int(sw))
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	return i.transport.SetSwitch(sw, on)
}

// TuneParameter returns the current value of p.
func (i *Instrument) TuneParameter(p types.TuneParameter) (float64, error) {
	return i.tune.Get(p)
}

// TuneParameterMin returns the lower user bound of p.
func (i *Instrument) TuneParameterMin(p types.TuneParameter) (float64, error) {
	s, err := i.tune.Setting(p)
	return s.UserMin, err
}

// TuneParameterMax returns the upper user bound of p.
func (i *Instrument) TuneParameterMax(p types.TuneParameter) (float64, error) {
	s, err := i.tune.Setting(p)
	return s.UserMax, err
}

// SetTuneParameter validates and writes a single tune value.
func (i *Instrument) SetTuneParameter(p types.TuneParameter, v float64) error {
	return i.ApplyTune(map[types.TuneParameter]float64{p: v})
}

// ApplyTune writes a set of tune values atomically: either the registry and
// the hardware take every value, or neither changes.
func (i *Instrument) ApplyTune(values map[types.TuneParameter]float64) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return ErrClosed
	}
	if err := i.tune.Validate(values); err != nil {
		return err
	}

	previous := i.tune.Snapshot()
	if err := i.writeAllLocked(values); err != nil {
		restore := make(map[types.TuneParameter]float64, len(values))
		for p := range values {
			restore[p] = previous[p]
		}
		if rerr := i.writeAllLocked(restore); rerr != nil {
			logging.Get("instrument").Error("failed to restore tune after write error", "error", rerr)
		}
		return err
	}
	return i.tune.Apply(values)
}

func (i *Instrument) writeAll(values map[types.TuneParameter]float64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writeAllLocked(values)
}

func (i *Instrument) writeAllLocked(values map[types.TuneParameter]float64) error {
	for p, v := range values {
		if err := i.transport.WriteTuneParameter(p, v); err != nil {
			return fmt.Errorf("%w: %s: %v", errcode.ErrWriteFailed, p, err)
		}
	}
	return nil
}

// SetSourceType records a source change and rederives tune limits.
func (i *Instrument) SetSourceType(source types.SourceType) {
	i.mu.Lock()
	i.info.SourceType = source
	i.mu.Unlock()
	i.tune.SetSourceType(source)
}

// SetPump starts or stops the vacuum pump.
func (i *Instrument) SetPump(on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	return i.transport.SetPump(on)
}

// SetHighVoltage enables or disables the high voltages.
func (i *Instrument) SetHighVoltage(on bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	return i.transport.SetHighVoltage(on)
}

// PumpDownRemaining returns the estimated time until vacuum is ready.
func (i *Instrument) PumpDownRemaining() time.Duration {
	return i.transport.PumpDownRemaining()
}

// PumpDownRemainingSeconds returns PumpDownRemaining in whole seconds.
func (i *Instrument) PumpDownRemainingSeconds() int {
	return int(i.PumpDownRemaining().Round(time.Second) / time.Second)
}

// Faults delivers asynchronous hardware faults.
func (i *Instrument) Faults() <-chan error {
	return i.transport.Faults()
}

// Scan records one spectrum. The transport must implement Scanner.
func (i *Instrument) Scan(req ScanRequest) (ScanResult, error) {
	if err := i.check(); err != nil {
		return ScanResult{}, err
	}
	sc, ok := i.transport.(Scanner)
	if !ok {
		return ScanResult{}, fmt.Errorf("%w: transport cannot scan", errcode.ErrNotSupported)
	}
	if req.Tune == nil {
		req.Tune = i.tune.Snapshot()
	}
	res, err := sc.Scan(req)
	if err != nil {
		return ScanResult{}, fmt.Errorf("%w: %v", errcode.ErrDataReadFail, err)
	}
	if len(res.Intensities) != len(req.Masses) {
		return ScanResult{}, fmt.Errorf("%w: got %d intensities for %d masses",
			errcode.ErrDataReadFail, len(res.Intensities), len(req.Masses))
	}
	return res, nil
}

func (i *Instrument) check() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return ErrClosed
	}
	return nil
}

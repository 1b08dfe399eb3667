package instrument

import (
	"time"

	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// Info describes the identity and fixed capabilities of a device.
type Info struct {
	SerialNumber    string
	HardwareType    types.HardwareType
	SourceType      types.SourceType
	FirmwareVersion string
	MinMass         float64
	MaxMass         float64
	MaxScanSpeed    float64 // AMU per second
	DualSource      bool    // supports polarity/source switching acquisitions
}

// Transport is the device plumbing an Instrument drives. Implementations
// translate these calls into whatever the physical link speaks.
type Transport interface {
	Info() (Info, error)

	BinaryReadback(rb types.BinaryReadback) (bool, error)
	NumberReadback(rb types.NumberReadback) (float64, error)
	ReadAnalogInput(line int) (float64, error)

	SetSwitch(sw types.InstrumentSwitch, on bool) error
	WriteTuneParameter(p types.TuneParameter, v float64) error

	SetPump(on bool) error
	SetHighVoltage(on bool) error
	PumpDownRemaining() time.Duration

	// Faults delivers asynchronous hardware fault signals.
	Faults() <-chan error

	Close() error
}

// ScanRequest asks the device for one spectrum over a mass axis.
type ScanRequest struct {
	Masses   []float64
	Polarity Polarity
	Tune     map[types.TuneParameter]float64
}

// Polarity selects the ion polarity of a scan.
type Polarity int

// Polarities.
const (
	Positive Polarity = iota
	Negative
)

func (p Polarity) String() string {
	if p == Negative {
		return "negative"
	}
	return "positive"
}

// ScanResult is one raw spectrum.
type ScanResult struct {
	Intensities  []float64 // aligned with ScanRequest.Masses
	AnalogOutput float64
}

// Scanner is implemented by transports that can record spectra.
type Scanner interface {
	Scan(req ScanRequest) (ScanResult, error)
}

// Package dataset holds recorded mass spectra and serves indexed reads,
// chromatograms and background-subtracted ("delta") views of them.
//
// A Dataset is live while an acquisition appends scans to it and becomes
// read-only once closed. Reads may run concurrently with Append; each scan
// is published atomically so a reader never sees a retention time without
// its intensity row.
package dataset

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// Metadata describes how and where a dataset was recorded.
type Metadata struct {
	Name            string             `json:"name" yaml:"name"`
	SoftwareVersion string             `json:"software_version" yaml:"software_version"`
	FirmwareVersion string             `json:"firmware_version" yaml:"firmware_version"`
	HardwareType    types.HardwareType `json:"hardware_type" yaml:"hardware_type"`
	SourceType      types.SourceType   `json:"source_type" yaml:"source_type"`
	InstrumentID    string             `json:"instrument_id" yaml:"instrument_id"`
	Date            time.Time          `json:"date" yaml:"date"`
	IsCentroid      bool               `json:"is_centroid" yaml:"is_centroid"`

	MethodXML                  string `json:"method_xml,omitempty" yaml:"method_xml,omitempty"`
	ExperimentXML              string `json:"experiment_xml,omitempty" yaml:"experiment_xml,omitempty"`
	ICPMSExperimentXML         string `json:"icpms_experiment_xml,omitempty" yaml:"icpms_experiment_xml,omitempty"`
	ICPMSInstrumentSettingsXML string `json:"icpms_instrument_settings_xml,omitempty" yaml:"icpms_instrument_settings_xml,omitempty"`
	IonSourceOptimizationXML   string `json:"ion_source_optimization_xml,omitempty" yaml:"ion_source_optimization_xml,omitempty"`
	TuneParametersXML          string `json:"tune_parameters_xml,omitempty" yaml:"tune_parameters_xml,omitempty"`
	ExperimentLog              string `json:"experiment_log,omitempty" yaml:"experiment_log,omitempty"`

	// SegmentTimes holds the planned duration of each method segment in
	// the retention time unit.
	SegmentTimes []float64 `json:"segment_times,omitempty" yaml:"segment_times,omitempty"`
}

// Options tunes derived views.
type Options struct {
	// FloorDeltaAtZero clamps background-subtracted values at zero. When
	// false delta values may be negative.
	FloorDeltaAtZero bool
}

// Dataset is a recorded or live set of spectra on a fixed mass axis.
type Dataset struct {
	mu   sync.RWMutex
	opts Options
	meta Metadata

	masses      []float64
	times       []float64
	intensities [][]float64
	scanModes   []int
	closed      bool

	background *BackgroundParameters

	channels []*ScalarChannel
	auxFiles []*AuxFile
}

// New creates an empty live dataset on the given mass axis, which must be
// non-empty and strictly ascending.
func New(meta Metadata, masses []float64, opts Options) (*Dataset, error) {
	if len(masses) == 0 {
		return nil, fmt.Errorf("%w: empty mass axis", errcode.ErrCreateDatasetFailed)
	}
	if k := firstNonAscending(masses); k >= 0 {
		return nil, fmt.Errorf("%w: mass axis not ascending at index %d", errcode.ErrCreateDatasetFailed, k)
	}
	meta.SegmentTimes = append([]float64(nil), meta.SegmentTimes...)
	return &Dataset{
		opts:   opts,
		meta:   meta,
		masses: append([]float64(nil), masses...),
	}, nil
}

// firstNonAscending returns the first index k with s[k] >= s[k+1], or -1.
func firstNonAscending(s []float64) int {
	for k := 0; k+1 < len(s); k++ {
		if !(s[k] < s[k+1]) {
			return k
		}
	}
	return -1
}

// Append publishes one scan. The retention time must be greater than the
// previous one and the row must match the mass axis with no negative
// values. The row is copied.
func (d *Dataset) Append(retentionTime float64, scanMode int, intensities []float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return errcode.ErrNotWritingData
	}
	if len(intensities) != len(d.masses) {
		return fmt.Errorf("%w: row has %d values, mass axis has %d",
			errcode.ErrDataParameterOutOfRange, len(intensities), len(d.masses))
	}
	if math.IsNaN(retentionTime) || math.IsInf(retentionTime, 0) {
		return fmt.Errorf("%w: retention time %g", errcode.ErrDataParameterOutOfRange, retentionTime)
	}
	if n := len(d.times); n > 0 && !(retentionTime > d.times[n-1]) {
		return fmt.Errorf("%w: retention time %g not after %g",
			errcode.ErrDataParameterOutOfRange, retentionTime, d.times[n-1])
	}
	for k, v := range intensities {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: invalid intensity %g at mass index %d", errcode.ErrDataParameterOutOfRange, v, k)
		}
	}

	d.intensities = append(d.intensities, append([]float64(nil), intensities...))
	d.scanModes = append(d.scanModes, scanMode)
	d.times = append(d.times, retentionTime)
	return nil
}

// Close makes the dataset read-only. It is idempotent.
func (d *Dataset) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
}

// Closed reports whether the dataset is read-only.
func (d *Dataset) Closed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// SetExperimentLog replaces the experiment log text.
func (d *Dataset) SetExperimentLog(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errcode.ErrNotWritingData
	}
	d.meta.ExperimentLog = text
	return nil
}

// Metadata returns a copy of the descriptive metadata.
func (d *Dataset) Metadata() Metadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m := d.meta
	m.SegmentTimes = append([]float64(nil), d.meta.SegmentTimes...)
	return m
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.Metadata().Name }

// SoftwareVersion returns the version of the recording software.
func (d *Dataset) SoftwareVersion() string { return d.Metadata().SoftwareVersion }

// FirmwareVersion returns the instrument firmware version.
func (d *Dataset) FirmwareVersion() string { return d.Metadata().FirmwareVersion }

// InstrumentID returns the serial number of the recording instrument.
func (d *Dataset) InstrumentID() string { return d.Metadata().InstrumentID }

// Date returns when recording started.
func (d *Dataset) Date() time.Time { return d.Metadata().Date }

// IsCentroid reports whether spectra are centroided rather than profile.
func (d *Dataset) IsCentroid() bool { return d.Metadata().IsCentroid }

// MethodXML returns the acquisition method document.
func (d *Dataset) MethodXML() string { return d.Metadata().MethodXML }

// ExperimentXML returns the experiment document.
func (d *Dataset) ExperimentXML() string { return d.Metadata().ExperimentXML }

// ExperimentLog returns the session log text.
func (d *Dataset) ExperimentLog() string { return d.Metadata().ExperimentLog }

// HardwareType returns the hardware model that recorded the data.
func (d *Dataset) HardwareType() types.HardwareType { return d.Metadata().HardwareType }

// SourceType returns the fitted ion source.
func (d *Dataset) SourceType() types.SourceType { return d.Metadata().SourceType }

// ICPMSExperimentXML returns the ICP-MS experiment document, if any.
func (d *Dataset) ICPMSExperimentXML() string { return d.Metadata().ICPMSExperimentXML }

// ICPMSInstrumentSettingsXML returns the ICP-MS instrument settings, if any.
func (d *Dataset) ICPMSInstrumentSettingsXML() string { return d.Metadata().ICPMSInstrumentSettingsXML }

// IonSourceOptimizationXML returns the ion source settings in effect at start.
func (d *Dataset) IonSourceOptimizationXML() string { return d.Metadata().IonSourceOptimizationXML }

// TuneParametersXML returns the tune parameters in effect at start.
func (d *Dataset) TuneParametersXML() string { return d.Metadata().TuneParametersXML }

// NumSegments returns the number of method segments.
func (d *Dataset) NumSegments() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.meta.SegmentTimes)
}

// SegmentTime returns the duration of segment i.
func (d *Dataset) SegmentTime(i int) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.meta.SegmentTimes) {
		return 0, fmt.Errorf("%w: segment %d of %d", errcode.ErrDataIndexOutOfRange, i, len(d.meta.SegmentTimes))
	}
	return d.meta.SegmentTimes[i], nil
}

// ScanModeIndex returns the scan mode used for spectrum i.
func (d *Dataset) ScanModeIndex(i int) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkSpectrumLocked(i); err != nil {
		return 0, err
	}
	return d.scanModes[i], nil
}

// Validity checks the structural invariants of the dataset: matching
// shapes, ascending axes and non-negative intensities.
func (d *Dataset) Validity() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.arraysLocked().Validate()
}

package acquisition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// Live telemetry reads refer to the most recently completed scan of the
// open or last session and fail with ErrNoSpectra before the first scan.
// They do not take the manager lock.

func (m *Manager) lastScan() (*dataset.Dataset, int, error) {
	ds := m.last.Load()
	if ds == nil {
		return nil, 0, errcode.ErrNoSpectra
	}
	n := ds.NumSpectra()
	if n == 0 {
		return nil, 0, errcode.ErrNoSpectra
	}
	return ds, n - 1, nil
}

// LastScanIndex returns the index of the most recent scan.
func (m *Manager) LastScanIndex() (int, error) {
	_, i, err := m.lastScan()
	return i, err
}

// LastTIC returns the total ion current of the most recent scan.
func (m *Manager) LastTIC() (float64, error) {
	ds, i, err := m.lastScan()
	if err != nil {
		return 0, err
	}
	return ds.TIC(i)
}

// LastDeltaIC returns the background-subtracted ion current of the most
// recent scan.
func (m *Manager) LastDeltaIC() (float64, error) {
	ds, i, err := m.lastScan()
	if err != nil {
		return 0, err
	}
	return ds.DeltaIC(i)
}

// LastXIC sums the most recent scan over [startMass, endMass].
func (m *Manager) LastXIC(startMass, endMass float64) (float64, error) {
	return m.lastXIC(startMass, endMass, (*dataset.Dataset).Spectrum)
}

// LastDeltaXIC sums the most recent delta scan over [startMass, endMass].
func (m *Manager) LastDeltaXIC(startMass, endMass float64) (float64, error) {
	return m.lastXIC(startMass, endMass, (*dataset.Dataset).DeltaSpectrum)
}

func (m *Manager) lastXIC(startMass, endMass float64, spectrum func(*dataset.Dataset, int) ([]float64, error)) (float64, error) {
	ds, i, err := m.lastScan()
	if err != nil {
		return 0, err
	}
	idx := ds.MassIndexRange(startMass, endMass)
	if len(idx) == 0 {
		return 0, fmt.Errorf("%w: no masses in [%g, %g]", errcode.ErrParameterOutOfRange, startMass, endMass)
	}
	row, err := spectrum(ds, i)
	if err != nil {
		return 0, err
	}
	sel := make([]float64, len(idx))
	for j, k := range idx {
		sel[j] = row[k]
	}
	return floats.Sum(sel), nil
}

// LastAnalogOutput returns the analog channel value sampled with the most
// recent scan.
func (m *Manager) LastAnalogOutput() (float64, error) {
	if _, _, err := m.lastScan(); err != nil {
		return 0, err
	}
	return math.Float64frombits(m.lastAnalog.Load()), nil
}

// LastSpectrumMasses returns the mass axis of the most recent scan.
func (m *Manager) LastSpectrumMasses() ([]float64, error) {
	ds, _, err := m.lastScan()
	if err != nil {
		return nil, err
	}
	return ds.Masses(), nil
}

// LastSpectrumIntensities returns the intensities of the most recent scan.
func (m *Manager) LastSpectrumIntensities() ([]float64, error) {
	ds, i, err := m.lastScan()
	if err != nil {
		return nil, err
	}
	return ds.Spectrum(i)
}

// LastDeltaSpectrumIntensities returns the background-subtracted
// intensities of the most recent scan.
func (m *Manager) LastDeltaSpectrumIntensities() ([]float64, error) {
	ds, i, err := m.lastScan()
	if err != nil {
		return nil, err
	}
	return ds.DeltaSpectrum(i)
}

// SetDeltaBackgroundParameters sets the background window used by the delta
// telemetry of the open or last session.
func (m *Manager) SetDeltaBackgroundParameters(p dataset.BackgroundParameters) error {
	ds := m.last.Load()
	if ds == nil {
		return errcode.ErrNotAcquiring
	}
	return ds.SetDeltaBackgroundParameters(p)
}

func (m *Manager) liveDataset() (*dataset.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil, errcode.ErrNotAcquiring
	}
	return m.sess.ds, nil
}

// CreateScalarChannel adds a scalar channel to the open session.
func (m *Manager) CreateScalarChannel(name string) (int, error) {
	ds, err := m.liveDataset()
	if err != nil {
		return 0, err
	}
	return ds.CreateScalarChannel(name)
}

// SetScalarChannelAttribute sets a header attribute of a scalar channel.
func (m *Manager) SetScalarChannelAttribute(id int, name string, value float64) error {
	ds, err := m.liveDataset()
	if err != nil {
		return err
	}
	return ds.SetScalarChannelAttribute(id, name, value)
}

// WriteScalarEntry appends one sample to a scalar channel.
func (m *Manager) WriteScalarEntry(id int, time, value float64) error {
	ds, err := m.liveDataset()
	if err != nil {
		return err
	}
	return ds.WriteScalarEntry(id, time, value)
}

// WriteScalarEntries appends samples to a scalar channel.
func (m *Manager) WriteScalarEntries(id int, times, values []float64) error {
	ds, err := m.liveDataset()
	if err != nil {
		return err
	}
	return ds.WriteScalarEntries(id, times, values)
}

// CreateAuxiliaryFile adds a text file to the open session.
func (m *Manager) CreateAuxiliaryFile(name, fileType string) (int, error) {
	ds, err := m.liveDataset()
	if err != nil {
		return 0, err
	}
	return ds.CreateAuxFile(name, fileType)
}

// WriteTextToFile appends text to an auxiliary file.
func (m *Manager) WriteTextToFile(id int, text string) error {
	ds, err := m.liveDataset()
	if err != nil {
		return err
	}
	return ds.WriteTextToFile(id, text)
}

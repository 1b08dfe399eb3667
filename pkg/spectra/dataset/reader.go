package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// NumMasses returns the length of the mass axis.
func (d *Dataset) NumMasses() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.masses)
}

// NumSpectra returns the number of published scans.
func (d *Dataset) NumSpectra() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.times)
}

// Masses returns a copy of the mass axis.
func (d *Dataset) Masses() []float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]float64(nil), d.masses...)
}

// RetentionTimes returns a copy of the retention times.
func (d *Dataset) RetentionTimes() []float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]float64(nil), d.times...)
}

func (d *Dataset) checkSpectrumLocked(i int) error {
	if i < 0 || i >= len(d.times) {
		return fmt.Errorf("%w: spectrum %d of %d", errcode.ErrDataIndexOutOfRange, i, len(d.times))
	}
	return nil
}

func (d *Dataset) checkMassesLocked(massIndices []int) error {
	if len(massIndices) == 0 {
		return fmt.Errorf("%w: no mass indices", errcode.ErrDataParameterOutOfRange)
	}
	for _, m := range massIndices {
		if m < 0 || m >= len(d.masses) {
			return fmt.Errorf("%w: mass index %d of %d", errcode.ErrDataIndexOutOfRange, m, len(d.masses))
		}
	}
	return nil
}

// Spectrum returns a copy of the intensities of scan i.
func (d *Dataset) Spectrum(i int) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkSpectrumLocked(i); err != nil {
		return nil, err
	}
	return append([]float64(nil), d.intensities[i]...), nil
}

// DeltaSpectrum returns scan i minus the delta background.
func (d *Dataset) DeltaSpectrum(i int) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkSpectrumLocked(i); err != nil {
		return nil, err
	}
	return d.subtract(d.intensities[i], d.backgroundLocked()), nil
}

// AveragedSpectrum returns the elementwise mean of the given scans.
func (d *Dataset) AveragedSpectrum(indices []int) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.averageLocked(indices)
}

// AveragedDeltaSpectrum returns the elementwise mean of the given scans
// minus the delta background.
func (d *Dataset) AveragedDeltaSpectrum(indices []int) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	avg, err := d.averageLocked(indices)
	if err != nil {
		return nil, err
	}
	return d.subtract(avg, d.backgroundLocked()), nil
}

func (d *Dataset) averageLocked(indices []int) ([]float64, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: no spectra to average", errcode.ErrDataParameterOutOfRange)
	}
	sum := make([]float64, len(d.masses))
	for _, i := range indices {
		if err := d.checkSpectrumLocked(i); err != nil {
			return nil, err
		}
		floats.Add(sum, d.intensities[i])
	}
	floats.Scale(1/float64(len(indices)), sum)
	return sum, nil
}

// TIC returns the total ion current of scan i.
func (d *Dataset) TIC(i int) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkSpectrumLocked(i); err != nil {
		return 0, err
	}
	return floats.Sum(d.intensities[i]), nil
}

// DeltaIC returns the total ion current of the delta spectrum of scan i.
func (d *Dataset) DeltaIC(i int) (float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkSpectrumLocked(i); err != nil {
		return 0, err
	}
	return floats.Sum(d.subtract(d.intensities[i], d.backgroundLocked())), nil
}

// GenerateXIC sums, for every scan, the intensities at the given mass
// indices.
func (d *Dataset) GenerateXIC(massIndices []int) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkMassesLocked(massIndices); err != nil {
		return nil, err
	}
	xic := make([]float64, len(d.times))
	for i, row := range d.intensities {
		xic[i] = sumAt(row, massIndices)
	}
	return xic, nil
}

// GenerateDeltaXIC is GenerateXIC over delta spectra.
func (d *Dataset) GenerateDeltaXIC(massIndices []int) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkMassesLocked(massIndices); err != nil {
		return nil, err
	}
	bg := d.backgroundLocked()
	xic := make([]float64, len(d.times))
	for i, row := range d.intensities {
		xic[i] = sumAt(d.subtract(row, bg), massIndices)
	}
	return xic, nil
}

// MassIndexRange returns the indices of the mass axis within
// [startMass, endMass].
func (d *Dataset) MassIndexRange(startMass, endMass float64) []int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var idx []int
	for k, m := range d.masses {
		if m >= startMass && m <= endMass {
			idx = append(idx, k)
		}
	}
	return idx
}

func sumAt(row []float64, idx []int) float64 {
	var s float64
	for _, k := range idx {
		s += row[k]
	}
	return s
}

package dataset

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// Arrays is the numeric payload of a dataset: the mass axis, the retention
// times and the numSpectra x numMasses intensity matrix.
type Arrays struct {
	Masses      []float64   `json:"masses" yaml:"masses"`
	Times       []float64   `json:"times" yaml:"times"`
	Intensities [][]float64 `json:"intensities" yaml:"intensities"`
}

// Validate checks that the three arrays agree in shape, that both axes are
// strictly ascending and that intensities are non-negative.
func (a Arrays) Validate() error {
	if len(a.Intensities) != len(a.Times) {
		return fmt.Errorf("%w: %d retention times, %d spectra",
			errcode.ErrDataParameterOutOfRange, len(a.Times), len(a.Intensities))
	}
	for i, row := range a.Intensities {
		if len(row) != len(a.Masses) {
			return fmt.Errorf("%w: spectrum %d has %d values, mass axis has %d",
				errcode.ErrDataParameterOutOfRange, i, len(row), len(a.Masses))
		}
		for _, v := range row {
			if v < 0 || math.IsNaN(v) {
				return fmt.Errorf("%w: invalid intensity in spectrum %d", errcode.ErrDataParameterOutOfRange, i)
			}
		}
	}
	if k := firstNonAscending(a.Masses); k >= 0 {
		return fmt.Errorf("%w: masses not ascending at %d", errcode.ErrDataParameterOutOfRange, k)
	}
	if k := firstNonAscending(a.Times); k >= 0 {
		return fmt.Errorf("%w: retention times not ascending at %d", errcode.ErrDataParameterOutOfRange, k)
	}
	return nil
}

// Persister writes dataset arrays to durable storage.
type Persister interface {
	Persist(dest string, a Arrays) error
}

// Arrays returns a deep copy of the numeric payload.
func (d *Dataset) Arrays() Arrays {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.arraysLocked()
}

func (d *Dataset) arraysLocked() Arrays {
	a := Arrays{
		Masses:      append([]float64(nil), d.masses...),
		Times:       append([]float64(nil), d.times...),
		Intensities: make([][]float64, len(d.intensities)),
	}
	for i, row := range d.intensities {
		a.Intensities[i] = append([]float64(nil), row...)
	}
	return a
}

// Save hands a consistent snapshot of the arrays to p.
func (d *Dataset) Save(dest string, p Persister) error {
	a := d.Arrays()
	if err := a.Validate(); err != nil {
		return err
	}
	if err := p.Persist(dest, a); err != nil {
		return fmt.Errorf("%w: %v", errcode.ErrFileWriteFailed, err)
	}
	return nil
}

// Record is the complete serialisable form of a dataset.
type Record struct {
	Metadata   Metadata              `json:"metadata" yaml:"metadata"`
	Arrays     Arrays                `json:"arrays" yaml:"arrays"`
	ScanModes  []int                 `json:"scan_modes,omitempty" yaml:"scan_modes,omitempty"`
	Background *BackgroundParameters `json:"background,omitempty" yaml:"background,omitempty"`
	Channels   []ScalarChannel       `json:"channels,omitempty" yaml:"channels,omitempty"`
	AuxFiles   []AuxFile             `json:"aux_files,omitempty" yaml:"aux_files,omitempty"`
}

// Record returns a deep copy of the dataset.
func (d *Dataset) Record() *Record {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r := &Record{
		Metadata:  d.meta,
		Arrays:    d.arraysLocked(),
		ScanModes: append([]int(nil), d.scanModes...),
	}
	r.Metadata.SegmentTimes = append([]float64(nil), d.meta.SegmentTimes...)
	if d.background != nil {
		bg := *d.background
		r.Background = &bg
	}
	for _, ch := range d.channels {
		c := *ch
		c.Times = append([]float64(nil), ch.Times...)
		c.Values = append([]float64(nil), ch.Values...)
		c.Attributes = append([]Attribute(nil), ch.Attributes...)
		r.Channels = append(r.Channels, c)
	}
	for _, f := range d.auxFiles {
		r.AuxFiles = append(r.AuxFiles, *f)
	}
	return r
}

// FromRecord rebuilds a closed dataset from a record after checking its
// invariants.
func FromRecord(r *Record, opts Options) (*Dataset, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil record", errcode.ErrOpenDatasetFailed)
	}
	if err := r.Arrays.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errcode.ErrOpenDatasetFailed, err)
	}
	if len(r.Arrays.Masses) == 0 {
		return nil, fmt.Errorf("%w: empty mass axis", errcode.ErrOpenDatasetFailed)
	}
	modes := r.ScanModes
	if len(modes) == 0 {
		modes = make([]int, len(r.Arrays.Times))
	}
	if len(modes) != len(r.Arrays.Times) {
		return nil, fmt.Errorf("%w: %d scan modes for %d spectra", errcode.ErrOpenDatasetFailed, len(modes), len(r.Arrays.Times))
	}

	d, err := New(r.Metadata, r.Arrays.Masses, opts)
	if err != nil {
		return nil, err
	}
	for i, t := range r.Arrays.Times {
		if err := d.Append(t, modes[i], r.Arrays.Intensities[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", errcode.ErrOpenDatasetFailed, err)
		}
	}
	if r.Background != nil {
		if err := d.SetDeltaBackgroundParameters(*r.Background); err != nil {
			return nil, fmt.Errorf("%w: %v", errcode.ErrOpenDatasetFailed, err)
		}
	}
	for _, ch := range r.Channels {
		if len(ch.Times) != len(ch.Values) {
			return nil, fmt.Errorf("%w: channel %q has %d times and %d values",
				errcode.ErrOpenDatasetFailed, ch.Name, len(ch.Times), len(ch.Values))
		}
		c := ch
		c.headerClosed = true
		d.channels = append(d.channels, &c)
	}
	for _, f := range r.AuxFiles {
		aux := f
		d.auxFiles = append(d.auxFiles, &aux)
	}
	d.Close()
	return d, nil
}

// Rebin returns a closed copy of the dataset on a mass axis with
// binsPerAMU points per unit mass. Source masses falling in the same bin are
// summed, so the total ion current of every scan is preserved. Bins that
// receive no source mass are omitted.
func (d *Dataset) Rebin(binsPerAMU int) (*Dataset, error) {
	if binsPerAMU <= 0 {
		return nil, fmt.Errorf("%w: %d bins per AMU", errcode.ErrDataParameterOutOfRange, binsPerAMU)
	}
	r := d.Record()

	bins := make(map[int64][]int)
	for k, m := range r.Arrays.Masses {
		key := int64(math.Round(m * float64(binsPerAMU)))
		bins[key] = append(bins[key], k)
	}
	keys := make([]int64, 0, len(bins))
	for key := range bins {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })

	masses := make([]float64, len(keys))
	for j, key := range keys {
		masses[j] = float64(key) / float64(binsPerAMU)
	}
	for i, row := range r.Arrays.Intensities {
		out := make([]float64, len(keys))
		for j, key := range keys {
			src := bins[key]
			vals := make([]float64, len(src))
			for n, k := range src {
				vals[n] = row[k]
			}
			out[j] = floats.Sum(vals)
		}
		r.Arrays.Intensities[i] = out
	}
	r.Arrays.Masses = masses

	return FromRecord(r, d.opts)
}

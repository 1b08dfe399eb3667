package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// BackgroundParameters define the window and noise model of the delta
// background.
//
// Within [StartTime, EndTime], a run of consecutive scans whose intensity
// at a mass exceeds Threshold for at least MinWidth (retention time units)
// is treated as signal and left out. The background at that mass is the
// mean of the remaining window samples plus NoiseOffset. A Threshold of
// zero or less disables signal rejection.
type BackgroundParameters struct {
	StartTime   float64 `json:"start_time" yaml:"start_time"`
	EndTime     float64 `json:"end_time" yaml:"end_time"`
	Threshold   float64 `json:"threshold" yaml:"threshold"`
	MinWidth    float64 `json:"min_width" yaml:"min_width"`
	NoiseOffset float64 `json:"noise_offset" yaml:"noise_offset"`
}

// Validate checks the parameters on their own. They are not compared with
// the recorded retention times.
func (p BackgroundParameters) Validate() error {
	for _, v := range []float64{p.StartTime, p.EndTime, p.Threshold, p.MinWidth, p.NoiseOffset} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite background parameter", errcode.ErrDataParameterOutOfRange)
		}
	}
	if p.EndTime < p.StartTime {
		return fmt.Errorf("%w: background window ends before it starts", errcode.ErrDataParameterOutOfRange)
	}
	if p.MinWidth < 0 {
		return fmt.Errorf("%w: negative minimum width", errcode.ErrDataParameterOutOfRange)
	}
	return nil
}

// SetDeltaBackgroundParameters replaces the background window. Every later
// delta query uses the new window.
func (d *Dataset) SetDeltaBackgroundParameters(p BackgroundParameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.background = &p
	return nil
}

// DeltaBackgroundParameters returns the current window and whether one is
// set.
func (d *Dataset) DeltaBackgroundParameters() (BackgroundParameters, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.background == nil {
		return BackgroundParameters{}, false
	}
	return *d.background, true
}

// DeltaBackgroundSpectrum returns the background subtracted from delta
// views. Without parameters it is all zeros.
func (d *Dataset) DeltaBackgroundSpectrum() []float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.backgroundLocked()
}

func (d *Dataset) backgroundLocked() []float64 {
	bg := make([]float64, len(d.masses))
	p := d.background
	if p == nil {
		return bg
	}

	var window []int
	for i, t := range d.times {
		if t >= p.StartTime && t <= p.EndTime {
			window = append(window, i)
		}
	}

	for k := range d.masses {
		var sum float64
		var n int
		for _, keep := range d.backgroundMask(window, k, p) {
			if keep >= 0 {
				sum += d.intensities[keep][k]
				n++
			}
		}
		if n > 0 {
			bg[k] = sum / float64(n)
		}
	}
	floats.AddConst(p.NoiseOffset, bg)
	return bg
}

// backgroundMask returns window with every scan that belongs to a signal
// run at mass k replaced by -1.
func (d *Dataset) backgroundMask(window []int, k int, p *BackgroundParameters) []int {
	out := append([]int(nil), window...)
	if p.Threshold <= 0 {
		return out
	}

	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		if d.times[window[end]]-d.times[window[start]] >= p.MinWidth {
			for j := start; j <= end; j++ {
				out[j] = -1
			}
		}
		start = -1
	}
	for j, i := range window {
		if d.intensities[i][k] > p.Threshold {
			if start < 0 {
				start = j
			}
			continue
		}
		flush(j - 1)
	}
	flush(len(window) - 1)
	return out
}

// subtract returns row - bg, floored at zero when configured.
func (d *Dataset) subtract(row, bg []float64) []float64 {
	out := make([]float64, len(row))
	floats.SubTo(out, row, bg)
	if d.opts.FloorDeltaAtZero {
		for k, v := range out {
			if v < 0 {
				out[k] = 0
			}
		}
	}
	return out
}

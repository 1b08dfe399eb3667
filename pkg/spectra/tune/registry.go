// Package tune holds the bounded tune parameters of an instrument and the
// XML documents used to exchange them.
//
// Every parameter carries a value and a user range [UserMin, UserMax] that
// must lie inside the hardware limits of the fitted ion source. Writes outside
// the user range are rejected with errcode.ErrParameterOutOfRange; values are
// never clamped.
package tune

import (
	"fmt"
	"math"
	"sync"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// Setting is the state of one tune parameter.
type Setting struct {
	Value   float64
	UserMin float64
	UserMax float64
}

// Registry is a concurrency-safe set of tune parameter settings.
type Registry struct {
	mu       sync.RWMutex
	source   types.SourceType
	limits   [types.NumTuneParameters]Limit
	settings [types.NumTuneParameters]Setting
}

// NewRegistry returns a registry initialised to the power-on defaults of
// the given source type.
func NewRegistry(source types.SourceType) *Registry {
	r := &Registry{}
	r.reset(source)
	return r
}

func (r *Registry) reset(source types.SourceType) {
	r.source = source
	r.limits = LimitsFor(source)
	for i, l := range r.limits {
		r.settings[i] = Setting{Value: l.Default, UserMin: l.Min, UserMax: l.Max}
	}
}

// SourceType returns the source type the limits are derived from.
func (r *Registry) SourceType() types.SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// SetSourceType switches the limits to another ion source. User ranges are
// reset to the new hardware limits and values outside them revert to the
// new defaults.
func (r *Registry) SetSourceType(source types.SourceType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if source == r.source {
		return
	}
	prev := r.settings
	r.reset(source)
	for i, s := range prev {
		if r.limits[i].Contains(s.Value) {
			r.settings[i].Value = s.Value
		}
	}
}

// Get returns the current value of p.
func (r *Registry) Get(p types.TuneParameter) (float64, error) {
	s, err := r.Setting(p)
	return s.Value, err
}

// Setting returns the full setting of p.
func (r *Registry) Setting(p types.TuneParameter) (Setting, error) {
	if !p.Valid() {
		return Setting{}, fmt.Errorf("%w: %d", errcode.ErrTuneIndexOutOfRange, int(p))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings[p], nil
}

// Limit returns the hardware limit of p for the current source type.
func (r *Registry) Limit(p types.TuneParameter) (Limit, error) {
	if !p.Valid() {
		return Limit{}, fmt.Errorf("%w: %d", errcode.ErrTuneIndexOutOfRange, int(p))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limits[p], nil
}

// Set writes a single value.
func (r *Registry) Set(p types.TuneParameter, v float64) error {
	return r.Apply(map[types.TuneParameter]float64{p: v})
}

// Apply writes every value in values, or none of them if any is invalid.
func (r *Registry) Apply(values map[types.TuneParameter]float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for p, v := range values {
		if err := r.checkValue(p, v); err != nil {
			return err
		}
	}
	for p, v := range values {
		r.settings[p].Value = v
	}
	return nil
}

// Validate reports the first value that Apply would reject.
func (r *Registry) Validate(values map[types.TuneParameter]float64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for p, v := range values {
		if err := r.checkValue(p, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) checkValue(p types.TuneParameter, v float64) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", errcode.ErrTuneIndexOutOfRange, int(p))
	}
	s := r.settings[p]
	if math.IsNaN(v) || v < s.UserMin || v > s.UserMax {
		return fmt.Errorf("%w: %s=%g outside [%g, %g]", errcode.ErrParameterOutOfRange, p, v, s.UserMin, s.UserMax)
	}
	return nil
}

// SetUserRange narrows the range accepted for p. The range must lie inside
// the hardware limits and contain the current value.
func (r *Registry) SetUserRange(p types.TuneParameter, userMin, userMax float64) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", errcode.ErrTuneIndexOutOfRange, int(p))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.limits[p]
	if math.IsNaN(userMin) || math.IsNaN(userMax) || userMin > userMax || !l.Contains(userMin) || !l.Contains(userMax) {
		return fmt.Errorf("%w: %s user range [%g, %g] outside [%g, %g]",
			errcode.ErrParameterOutOfRange, p, userMin, userMax, l.Min, l.Max)
	}
	if v := r.settings[p].Value; v < userMin || v > userMax {
		return fmt.Errorf("%w: %s current value %g outside [%g, %g]",
			errcode.ErrParameterOutOfRange, p, v, userMin, userMax)
	}
	r.settings[p].UserMin = userMin
	r.settings[p].UserMax = userMax
	return nil
}

// Snapshot returns a copy of every value.
func (r *Registry) Snapshot() map[types.TuneParameter]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[types.TuneParameter]float64, len(r.settings))
	for i, s := range r.settings {
		out[types.TuneParameter(i)] = s.Value
	}
	return out
}

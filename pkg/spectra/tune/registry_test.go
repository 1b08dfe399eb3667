package tune

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

func TestNewRegistry_Defaults(t *testing.T) {
	r := NewRegistry(types.SourceESI)

	v, err := r.Get(types.ESIVoltage)
	require.NoError(t, err)
	assert.Equal(t, 3500.0, v)

	s, err := r.Setting(types.ESIVoltage)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.UserMin)
	assert.Equal(t, 5000.0, s.UserMax)
}

func TestRegistry_SetRejectsOutOfRange(t *testing.T) {
	r := NewRegistry(types.SourceESI)

	err := r.Set(types.CapillaryTemperature, 351)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrParameterOutOfRange))

	// Rejected writes leave the value untouched.
	v, _ := r.Get(types.CapillaryTemperature)
	assert.Equal(t, 250.0, v)

	require.NoError(t, r.Set(types.CapillaryTemperature, 350))
	v, _ = r.Get(types.CapillaryTemperature)
	assert.Equal(t, 350.0, v)
}

func TestRegistry_RejectsNaN(t *testing.T) {
	r := NewRegistry(types.SourceESI)
	nan := math.NaN()

	assert.ErrorIs(t, r.Set(types.CapillaryTemperature, nan), errcode.ErrParameterOutOfRange)
	v, _ := r.Get(types.CapillaryTemperature)
	assert.Equal(t, 250.0, v)

	values := map[types.TuneParameter]float64{types.DetectorVoltage: nan}
	assert.ErrorIs(t, r.Validate(values), errcode.ErrParameterOutOfRange)
	assert.ErrorIs(t, r.Apply(values), errcode.ErrParameterOutOfRange)

	assert.ErrorIs(t, r.SetUserRange(types.DetectorVoltage, nan, 1400), errcode.ErrParameterOutOfRange)
	assert.ErrorIs(t, r.SetUserRange(types.DetectorVoltage, 1000, nan), errcode.ErrParameterOutOfRange)
}

func TestRegistry_SourceDependentLimits(t *testing.T) {
	esi := NewRegistry(types.SourceESI)
	apci := NewRegistry(types.SourceAPCI)

	assert.NoError(t, esi.Set(types.ESIVoltage, 4000))
	assert.ErrorIs(t, apci.Set(types.ESIVoltage, 4000), errcode.ErrParameterOutOfRange)

	assert.NoError(t, apci.Set(types.APCICoronaDischarge, 4))
	assert.ErrorIs(t, esi.Set(types.APCICoronaDischarge, 4), errcode.ErrParameterOutOfRange)
}

func TestRegistry_InvalidParameter(t *testing.T) {
	r := NewRegistry(types.SourceESI)

	_, err := r.Get(types.TuneParameter(99))
	assert.ErrorIs(t, err, errcode.ErrTuneIndexOutOfRange)
	assert.ErrorIs(t, r.Set(types.TuneParameter(-1), 0), errcode.ErrTuneIndexOutOfRange)
}

func TestRegistry_ApplyIsAtomic(t *testing.T) {
	r := NewRegistry(types.SourceESI)
	before := r.Snapshot()

	err := r.Apply(map[types.TuneParameter]float64{
		types.CapillaryTemperature: 200,
		types.DetectorVoltage:      5000, // out of range
	})
	require.ErrorIs(t, err, errcode.ErrParameterOutOfRange)
	assert.Equal(t, before, r.Snapshot())

	require.NoError(t, r.Apply(map[types.TuneParameter]float64{
		types.CapillaryTemperature: 200,
		types.DetectorVoltage:      1500,
	}))
	after := r.Snapshot()
	assert.Equal(t, 200.0, after[types.CapillaryTemperature])
	assert.Equal(t, 1500.0, after[types.DetectorVoltage])
}

func TestRegistry_SetUserRange(t *testing.T) {
	r := NewRegistry(types.SourceESI)

	require.NoError(t, r.SetUserRange(types.DetectorVoltage, 1000, 1400))
	assert.ErrorIs(t, r.Set(types.DetectorVoltage, 1500), errcode.ErrParameterOutOfRange)
	assert.NoError(t, r.Set(types.DetectorVoltage, 1400))

	// Outside hardware limits.
	assert.ErrorIs(t, r.SetUserRange(types.DetectorVoltage, 500, 1400), errcode.ErrParameterOutOfRange)
	// Inverted.
	assert.ErrorIs(t, r.SetUserRange(types.DetectorVoltage, 1400, 1000), errcode.ErrParameterOutOfRange)
	// Excludes the current value.
	assert.ErrorIs(t, r.SetUserRange(types.DetectorVoltage, 900, 1000), errcode.ErrParameterOutOfRange)
}

func TestRegistry_SetSourceType(t *testing.T) {
	r := NewRegistry(types.SourceESI)
	require.NoError(t, r.Set(types.CapillaryTemperature, 300))

	r.SetSourceType(types.SourceAPCI)
	assert.Equal(t, types.SourceAPCI, r.SourceType())

	v, _ := r.Get(types.CapillaryTemperature)
	assert.Equal(t, 300.0, v, "values inside the new limits survive")

	v, _ = r.Get(types.ESIVoltage)
	assert.Equal(t, 0.0, v, "values outside the new limits revert to defaults")
}

func TestRegistry_ConcurrentApply(t *testing.T) {
	r := NewRegistry(types.SourceESI)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := float64(100 + i)
			_ = r.Apply(map[types.TuneParameter]float64{
				types.CapillaryTemperature:    v,
				types.TransferLineTemperature: v,
			})
		}(i)
	}

	for i := 0; i < 100; i++ {
		snap := r.Snapshot()
		capTemp := snap[types.CapillaryTemperature]
		tl := snap[types.TransferLineTemperature]
		if capTemp != 250 || tl != 150 {
			// After the first write both values come from the same Apply.
			assert.Equal(t, capTemp, tl)
		}
	}
	wg.Wait()
}

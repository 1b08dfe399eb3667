package tune

import (
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// Limit is the hardware range of a tune parameter and its power-on value.
type Limit struct {
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Default float64 `yaml:"default"`
}

// Contains reports whether v lies in [Min, Max].
func (l Limit) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

// baseLimits apply to every source type unless overridden below.
var baseLimits = [types.NumTuneParameters]Limit{
	types.CapillaryTemperature:    {Min: 50, Max: 350, Default: 250},
	types.CapillaryVoltage:        {Min: 0, Max: 250, Default: 180},
	types.SourceGasTemperature:    {Min: 0, Max: 400, Default: 250},
	types.TransferLineTemperature: {Min: 0, Max: 300, Default: 150},
	types.ESIVoltage:              {Min: 0, Max: 0, Default: 0},
	types.APCICoronaDischarge:     {Min: 0, Max: 0, Default: 0},
	types.SourceVoltageOffset:     {Min: 0, Max: 60, Default: 20},
	types.SourceVoltageSpan:       {Min: 0, Max: 60, Default: 0},
	types.ExtractionElectrode:     {Min: -20, Max: 20, Default: 1},
	types.HexapoleBias:            {Min: -10, Max: 10, Default: 1.5},
	types.HexapoleRFOffset:        {Min: 0, Max: 400, Default: 60},
	types.HexapoleRFSpan:          {Min: 0, Max: 400, Default: 100},
	types.IonEnergyOffset:         {Min: -5, Max: 5, Default: 0},
	types.IonEnergySpan:           {Min: -5, Max: 5, Default: 0},
	types.ResolutionOffset:        {Min: -100, Max: 100, Default: 0},
	types.ResolutionSpan:          {Min: -100, Max: 100, Default: 0},
	types.DetectorVoltage:         {Min: 800, Max: 2200, Default: 1200},
}

var sourceOverrides = map[types.SourceType]map[types.TuneParameter]Limit{
	types.SourceESI: {
		types.ESIVoltage: {Min: 0, Max: 5000, Default: 3500},
	},
	types.SourceAPCI: {
		types.APCICoronaDischarge:  {Min: 0, Max: 10, Default: 5},
		types.SourceGasTemperature: {Min: 0, Max: 450, Default: 350},
	},
	types.SourceASAP: {
		types.APCICoronaDischarge:  {Min: 0, Max: 10, Default: 5},
		types.SourceGasTemperature: {Min: 0, Max: 600, Default: 350},
	},
}

// LimitsFor returns the hardware limits of every parameter for a source type.
func LimitsFor(source types.SourceType) [types.NumTuneParameters]Limit {
	limits := baseLimits
	for p, l := range sourceOverrides[source] {
		limits[p] = l
	}
	return limits
}

// SourceParameters are the parameters carried by an ion source optimization
// document.
var SourceParameters = []types.TuneParameter{
	types.CapillaryTemperature,
	types.CapillaryVoltage,
	types.SourceGasTemperature,
	types.TransferLineTemperature,
	types.ESIVoltage,
	types.APCICoronaDischarge,
	types.SourceVoltageOffset,
	types.SourceVoltageSpan,
}

// IsSourceParameter reports whether p belongs to the ion source optimization.
func IsSourceParameter(p types.TuneParameter) bool {
	for _, sp := range SourceParameters {
		if sp == p {
			return true
		}
	}
	return false
}

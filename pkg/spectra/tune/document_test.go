package tune

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

func TestParseDocument(t *testing.T) {
	doc := `<TuneParameters source="ESI">
  <Parameter name="CapillaryTemperature" value="240"/>
  <Parameter name="DetectorVoltage" value="1300.5"/>
</TuneParameters>`

	values, err := ParseDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, map[types.TuneParameter]float64{
		types.CapillaryTemperature: 240,
		types.DetectorVoltage:      1300.5,
	}, values)
}

func TestParseDocument_NaNFailsValidation(t *testing.T) {
	doc := `<TuneParameters><Parameter name="DetectorVoltage" value="NaN"/></TuneParameters>`

	values, err := ParseDocument(doc)
	require.NoError(t, err)
	r := NewRegistry(types.SourceESI)
	assert.ErrorIs(t, r.Validate(values), errcode.ErrParameterOutOfRange)
}

func TestParseDocument_Malformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "   "},
		{"not xml", "capillary=240"},
		{"unterminated", `<TuneParameters><Parameter name="HexapoleBias" value="1"/>`},
		{"wrong root", `<Method><Parameter name="HexapoleBias" value="1"/></Method>`},
		{"unknown parameter", `<TuneParameters><Parameter name="Warp" value="9"/></TuneParameters>`},
		{"bad number", `<TuneParameters><Parameter name="HexapoleBias" value="high"/></TuneParameters>`},
		{"duplicate", `<TuneParameters><Parameter name="HexapoleBias" value="1"/><Parameter name="HexapoleBias" value="2"/></TuneParameters>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument(tt.doc)
			assert.ErrorIs(t, err, errcode.ErrParsingFailed)
		})
	}
}

func TestParseSourceDocument(t *testing.T) {
	doc := `<IonSourceOptimization source="APCI"><Parameter name="APCICoronaDischarge" value="4"/></IonSourceOptimization>`

	source, values, err := ParseSourceDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, types.SourceAPCI, source)
	assert.Equal(t, 4.0, values[types.APCICoronaDischarge])

	_, _, err = ParseSourceDocument(`<IonSourceOptimization><Parameter name="DetectorVoltage" value="1200"/></IonSourceOptimization>`)
	assert.ErrorIs(t, err, errcode.ErrParsingFailed, "detector voltage is not a source parameter")

	_, _, err = ParseSourceDocument(`<IonSourceOptimization source="Plasma"/>`)
	assert.ErrorIs(t, err, errcode.ErrParsingFailed)
}

func TestMarshalDocument_RoundTrip(t *testing.T) {
	r := NewRegistry(types.SourceESI)

	text, err := MarshalDocument(r.SourceType(), r.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, text, `<TuneParameters source="ESI">`)

	values, err := ParseDocument(text)
	require.NoError(t, err)
	assert.Equal(t, r.Snapshot(), values)
	assert.NoError(t, r.Apply(values))
}

func TestMarshalSourceDocument_OnlySourceParameters(t *testing.T) {
	r := NewRegistry(types.SourceESI)

	text, err := MarshalSourceDocument(types.SourceESI, r.Snapshot())
	require.NoError(t, err)
	assert.NotContains(t, text, "DetectorVoltage")

	_, values, err := ParseSourceDocument(text)
	require.NoError(t, err)
	assert.Len(t, values, len(SourceParameters))
}

package tune

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// Parameter is one <Parameter name="..." value="..."/> element.
type Parameter struct {
	Name  string  `xml:"name,attr"`
	Value float64 `xml:"value,attr"`
}

// Document is a tune parameter document:
//
//	<TuneParameters>
//	  <Parameter name="CapillaryTemperature" value="250"/>
//	</TuneParameters>
type Document struct {
	XMLName    xml.Name    `xml:"TuneParameters"`
	Source     string      `xml:"source,attr,omitempty"`
	Parameters []Parameter `xml:"Parameter"`
}

// SourceDocument is an ion source optimization document. It may only carry
// the parameters listed in SourceParameters.
type SourceDocument struct {
	XMLName    xml.Name    `xml:"IonSourceOptimization"`
	Source     string      `xml:"source,attr,omitempty"`
	Parameters []Parameter `xml:"Parameter"`
}

// ParseDocument decodes a tune document into parameter values.
// Any malformed, unknown or duplicated entry yields errcode.ErrParsingFailed.
func ParseDocument(text string) (map[types.TuneParameter]float64, error) {
	var doc Document
	if err := decode(text, &doc); err != nil {
		return nil, err
	}
	return collect(doc.Parameters, false)
}

// ParseSourceDocument decodes an ion source optimization document. The
// source attribute, when present, must name a known source type.
func ParseSourceDocument(text string) (types.SourceType, map[types.TuneParameter]float64, error) {
	var doc SourceDocument
	if err := decode(text, &doc); err != nil {
		return types.SourceNone, nil, err
	}

	source := types.SourceNone
	if doc.Source != "" {
		s, err := types.ParseSourceType(doc.Source)
		if err != nil {
			return types.SourceNone, nil, fmt.Errorf("%w: %v", errcode.ErrParsingFailed, err)
		}
		source = s
	}

	values, err := collect(doc.Parameters, true)
	if err != nil {
		return types.SourceNone, nil, err
	}
	return source, values, nil
}

func decode(text string, v any) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty document", errcode.ErrParsingFailed)
	}
	if err := xml.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("%w: %v", errcode.ErrParsingFailed, err)
	}
	return nil
}

func collect(params []Parameter, sourceOnly bool) (map[types.TuneParameter]float64, error) {
	values := make(map[types.TuneParameter]float64, len(params))
	for _, el := range params {
		p, err := types.ParseTuneParameter(el.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errcode.ErrParsingFailed, err)
		}
		if sourceOnly && !IsSourceParameter(p) {
			return nil, fmt.Errorf("%w: %s is not an ion source parameter", errcode.ErrParsingFailed, p)
		}
		if _, dup := values[p]; dup {
			return nil, fmt.Errorf("%w: duplicate parameter %s", errcode.ErrParsingFailed, p)
		}
		values[p] = el.Value
	}
	return values, nil
}

// MarshalDocument encodes values as a tune document, ordered by parameter.
func MarshalDocument(source types.SourceType, values map[types.TuneParameter]float64) (string, error) {
	return marshal(Document{Source: source.String(), Parameters: elements(values, false)})
}

// MarshalSourceDocument encodes the source parameters of values as an ion
// source optimization document.
func MarshalSourceDocument(source types.SourceType, values map[types.TuneParameter]float64) (string, error) {
	return marshal(SourceDocument{Source: source.String(), Parameters: elements(values, true)})
}

func elements(values map[types.TuneParameter]float64, sourceOnly bool) []Parameter {
	keys := make([]types.TuneParameter, 0, len(values))
	for p := range values {
		if sourceOnly && !IsSourceParameter(p) {
			continue
		}
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]Parameter, 0, len(keys))
	for _, p := range keys {
		out = append(out, Parameter{Name: p.String(), Value: values[p]})
	}
	return out
}

func marshal(v any) (string, error) {
	data, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

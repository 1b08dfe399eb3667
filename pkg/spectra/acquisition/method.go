package acquisition

import (
	"encoding/xml"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/instrument"
)

// Method is an acquisition method document:
//
//	<Method name="full-scan" duration="120">
//	  <ScanMode name="pos" startMass="100" endMass="800" polarity="positive"/>
//	  <Segment time="60"/>
//	</Method>
//
// Durations are in seconds. When segments are present the run lasts for
// the sum of their times and cannot be extended.
type Method struct {
	XMLName   xml.Name   `xml:"Method"`
	Name      string     `xml:"name,attr,omitempty"`
	Duration  float64    `xml:"duration,attr,omitempty"`
	ScanModes []ScanMode `xml:"ScanMode"`
	Segments  []Segment  `xml:"Segment"`
}

// ScanMode is one scan of the acquisition cycle.
type ScanMode struct {
	Name      string  `xml:"name,attr,omitempty"`
	StartMass float64 `xml:"startMass,attr"`
	EndMass   float64 `xml:"endMass,attr"`
	Polarity  string  `xml:"polarity,attr,omitempty"`
}

// Segment is a fixed-length part of a method.
type Segment struct {
	Time float64 `xml:"time,attr"`
}

// ParseMethod decodes and checks a method document.
func ParseMethod(text string) (*Method, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty method", errcode.ErrParsingFailed)
	}
	var m Method
	if err := xml.Unmarshal([]byte(text), &m); err != nil {
		return nil, fmt.Errorf("%w: method: %v", errcode.ErrParsingFailed, err)
	}
	if len(m.ScanModes) == 0 {
		return nil, fmt.Errorf("%w: method has no scan modes", errcode.ErrParsingFailed)
	}
	for i, sm := range m.ScanModes {
		if !(sm.StartMass < sm.EndMass) {
			return nil, fmt.Errorf("%w: scan mode %d has empty mass range", errcode.ErrParsingFailed, i)
		}
		if _, err := sm.polarity(); err != nil {
			return nil, err
		}
	}
	for i, seg := range m.Segments {
		if !(seg.Time > 0) {
			return nil, fmt.Errorf("%w: segment %d has no time", errcode.ErrParsingFailed, i)
		}
	}
	if m.TotalDuration() <= 0 {
		return nil, fmt.Errorf("%w: method has no duration", errcode.ErrParsingFailed)
	}
	return &m, nil
}

func (sm ScanMode) polarity() (instrument.Polarity, error) {
	switch strings.ToLower(sm.Polarity) {
	case "", "positive", "+":
		return instrument.Positive, nil
	case "negative", "-":
		return instrument.Negative, nil
	}
	return instrument.Positive, fmt.Errorf("%w: polarity %q", errcode.ErrParsingFailed, sm.Polarity)
}

// TotalDuration returns the planned run length.
func (m *Method) TotalDuration() time.Duration {
	secs := m.Duration
	if len(m.Segments) > 0 {
		secs = 0
		for _, seg := range m.Segments {
			secs += seg.Time
		}
	}
	return time.Duration(secs * float64(time.Second))
}

// SegmentTimes returns the segment durations in seconds.
func (m *Method) SegmentTimes() []float64 {
	out := make([]float64, len(m.Segments))
	for i, seg := range m.Segments {
		out[i] = seg.Time
	}
	return out
}

// checkRange fails when a scan mode leaves the instrument mass range.
func (m *Method) checkRange(minMass, maxMass float64) error {
	for i, sm := range m.ScanModes {
		if sm.StartMass < minMass || sm.EndMass > maxMass {
			return fmt.Errorf("%w: scan mode %d [%g, %g] outside instrument range [%g, %g]",
				errcode.ErrParameterOutOfRange, i, sm.StartMass, sm.EndMass, minMass, maxMass)
		}
	}
	return nil
}

// massAxis returns the union mass axis of every scan mode at binsPerAMU,
// and for each scan mode the axis indices it covers.
func (m *Method) massAxis(binsPerAMU int) ([]float64, [][]int) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, sm := range m.ScanModes {
		lo = math.Min(lo, sm.StartMass)
		hi = math.Max(hi, sm.EndMass)
	}
	bins := float64(binsPerAMU)
	first := math.Ceil(lo * bins)
	last := math.Floor(hi * bins)

	masses := make([]float64, 0, int(last-first)+1)
	for k := first; k <= last; k++ {
		masses = append(masses, k/bins)
	}

	cover := make([][]int, len(m.ScanModes))
	for i, sm := range m.ScanModes {
		for k, mass := range masses {
			if mass >= sm.StartMass && mass <= sm.EndMass {
				cover[i] = append(cover[i], k)
			}
		}
	}
	return masses, cover
}

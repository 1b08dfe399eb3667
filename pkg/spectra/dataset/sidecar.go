package dataset

import (
	"fmt"

	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

// ScalarChannel is a named (time, value) series recorded next to the
// spectra, such as a pressure or temperature log. Attributes may only be
// added until the header is closed, which happens on the first sample.
type ScalarChannel struct {
	Name       string      `json:"name" yaml:"name"`
	Times      []float64   `json:"times" yaml:"times"`
	Values     []float64   `json:"values" yaml:"values"`
	Attributes []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	headerClosed bool
}

// Attribute is a named scalar attached to a channel header.
type Attribute struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// AuxFile is a named, typed text blob attached to the dataset.
type AuxFile struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
	Text string `json:"text" yaml:"text"`
}

// CreateScalarChannel adds an empty channel and returns its id.
func (d *Dataset) CreateScalarChannel(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: channel name", errcode.ErrDataParameterIsNull)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errcode.ErrNotWritingData
	}
	d.channels = append(d.channels, &ScalarChannel{Name: name})
	return len(d.channels) - 1, nil
}

func (d *Dataset) channelLocked(id int) (*ScalarChannel, error) {
	if id < 0 || id >= len(d.channels) {
		return nil, fmt.Errorf("%w: channel %d", errcode.ErrChannelNotDefined, id)
	}
	return d.channels[id], nil
}

// SetScalarChannelAttribute adds or replaces a header attribute.
func (d *Dataset) SetScalarChannelAttribute(id int, name string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, err := d.channelLocked(id)
	if err != nil {
		return err
	}
	if d.closed || ch.headerClosed {
		return fmt.Errorf("%w: channel %q", errcode.ErrChannelHeaderClosed, ch.Name)
	}
	for k := range ch.Attributes {
		if ch.Attributes[k].Name == name {
			ch.Attributes[k].Value = value
			return nil
		}
	}
	ch.Attributes = append(ch.Attributes, Attribute{Name: name, Value: value})
	return nil
}

// CloseScalarChannelHeader freezes the attributes of a channel.
func (d *Dataset) CloseScalarChannelHeader(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, err := d.channelLocked(id)
	if err != nil {
		return err
	}
	ch.headerClosed = true
	return nil
}

// WriteScalarEntries appends samples to a channel. Times need not be
// monotonic.
func (d *Dataset) WriteScalarEntries(id int, times, values []float64) error {
	if len(times) != len(values) {
		return fmt.Errorf("%w: %d times, %d values", errcode.ErrDataParameterOutOfRange, len(times), len(values))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, err := d.channelLocked(id)
	if err != nil {
		return err
	}
	if d.closed {
		return errcode.ErrNotWritingData
	}
	ch.headerClosed = true
	ch.Times = append(ch.Times, times...)
	ch.Values = append(ch.Values, values...)
	return nil
}

// WriteScalarEntry appends one sample.
func (d *Dataset) WriteScalarEntry(id int, time, value float64) error {
	return d.WriteScalarEntries(id, []float64{time}, []float64{value})
}

// NumScalarChannels returns the number of channels.
func (d *Dataset) NumScalarChannels() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.channels)
}

func (d *Dataset) readChannel(id int, fn func(*ScalarChannel)) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, err := d.channelLocked(id)
	if err != nil {
		return err
	}
	fn(ch)
	return nil
}

// ScalarChannelName returns the name of channel id.
func (d *Dataset) ScalarChannelName(id int) (string, error) {
	var name string
	err := d.readChannel(id, func(ch *ScalarChannel) { name = ch.Name })
	return name, err
}

// ScalarChannelNumSamples returns the number of samples in channel id.
func (d *Dataset) ScalarChannelNumSamples(id int) (int, error) {
	var n int
	err := d.readChannel(id, func(ch *ScalarChannel) { n = len(ch.Times) })
	return n, err
}

// ScalarChannelTimes returns a copy of the sample times of channel id.
func (d *Dataset) ScalarChannelTimes(id int) ([]float64, error) {
	var out []float64
	err := d.readChannel(id, func(ch *ScalarChannel) { out = append([]float64(nil), ch.Times...) })
	return out, err
}

// ScalarChannelValues returns a copy of the sample values of channel id.
func (d *Dataset) ScalarChannelValues(id int) ([]float64, error) {
	var out []float64
	err := d.readChannel(id, func(ch *ScalarChannel) { out = append([]float64(nil), ch.Values...) })
	return out, err
}

// ScalarChannelNumAttributes returns the number of header attributes.
func (d *Dataset) ScalarChannelNumAttributes(id int) (int, error) {
	var n int
	err := d.readChannel(id, func(ch *ScalarChannel) { n = len(ch.Attributes) })
	return n, err
}

// ScalarChannelAttributeName returns the name of attribute j of channel id.
func (d *Dataset) ScalarChannelAttributeName(id, j int) (string, error) {
	a, err := d.attribute(id, j)
	return a.Name, err
}

// ScalarChannelAttributeValue returns the value of attribute j of channel
// id.
func (d *Dataset) ScalarChannelAttributeValue(id, j int) (float64, error) {
	a, err := d.attribute(id, j)
	return a.Value, err
}

func (d *Dataset) attribute(id, j int) (Attribute, error) {
	var a Attribute
	var inRange bool
	err := d.readChannel(id, func(ch *ScalarChannel) {
		if j >= 0 && j < len(ch.Attributes) {
			a, inRange = ch.Attributes[j], true
		}
	})
	if err != nil {
		return a, err
	}
	if !inRange {
		return a, fmt.Errorf("%w: attribute %d of channel %d", errcode.ErrDataIndexOutOfRange, j, id)
	}
	return a, nil
}

// CreateAuxFile adds an empty auxiliary file and returns its id.
func (d *Dataset) CreateAuxFile(name, fileType string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: aux file name", errcode.ErrDataParameterIsNull)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, errcode.ErrNotWritingData
	}
	d.auxFiles = append(d.auxFiles, &AuxFile{Name: name, Type: fileType})
	return len(d.auxFiles) - 1, nil
}

// WriteTextToFile appends text to auxiliary file id.
func (d *Dataset) WriteTextToFile(id int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := d.auxFileLocked(id)
	if err != nil {
		return err
	}
	if d.closed {
		return errcode.ErrNotWritingData
	}
	f.Text += text
	return nil
}

func (d *Dataset) auxFileLocked(id int) (*AuxFile, error) {
	if id < 0 || id >= len(d.auxFiles) {
		return nil, fmt.Errorf("%w: aux file %d", errcode.ErrAuxFileNotDefined, id)
	}
	return d.auxFiles[id], nil
}

// NumAuxFiles returns the number of auxiliary files.
func (d *Dataset) NumAuxFiles() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.auxFiles)
}

// AuxFile returns a copy of auxiliary file id.
func (d *Dataset) AuxFile(id int) (AuxFile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, err := d.auxFileLocked(id)
	if err != nil {
		return AuxFile{}, err
	}
	return *f, nil
}

// AuxFileName returns the name of auxiliary file id.
func (d *Dataset) AuxFileName(id int) (string, error) {
	f, err := d.AuxFile(id)
	return f.Name, err
}

// AuxFileType returns the type of auxiliary file id.
func (d *Dataset) AuxFileType(id int) (string, error) {
	f, err := d.AuxFile(id)
	return f.Type, err
}

// AuxFileText returns the text of auxiliary file id.
func (d *Dataset) AuxFileText(id int) (string, error) {
	f, err := d.AuxFile(id)
	return f.Text, err
}

// Package types provides the core enumerations shared by the instrument,
// controller, acquisition and dataset packages.
// Numeric values match the ones reported by the instrument firmware and
// stored in recorded datasets, so they must never be renumbered.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownName is returned when parsing an enumeration name fails.
var ErrUnknownName = errors.New("unknown name")

// InstrumentState is the lifecycle state of the instrument.
type InstrumentState int

// Instrument states.
const (
	StateFault InstrumentState = iota
	StateInitializing
	StateVented
	StatePumpingDown
	StateStandby
	StateOperate
)

var instrumentStateNames = []string{"Fault", "Initializing", "Vented", "PumpingDown", "Standby", "Operate"}

func (s InstrumentState) String() string {
	return enumName(instrumentStateNames, int(s))
}

// OperationMode describes what the instrument is doing while in StateOperate.
type OperationMode int

// Operation modes.
const (
	ModeIdle OperationMode = iota
	ModeTuning
	ModeAutoTuning
	ModeAcquiring
)

var operationModeNames = []string{"Idle", "Tuning", "AutoTuning", "Acquiring"}

func (m OperationMode) String() string {
	return enumName(operationModeNames, int(m))
}

// OperatePreventer is a bitmask of conditions blocking the Operate state.
type OperatePreventer uint32

// Operate preventer bits.
const (
	PreventNoCommunication OperatePreventer = 1 << iota
	PreventPumpOff
	PreventPumpSpeedTooLow
	PreventVacuumTooHigh
	PreventWaitingAfterPumpDown
	PreventNoIonSource
	PreventSafetySwitchTripped
	PreventIncompatibleFirmware
)

var preventerNames = []string{
	"NoCommunication", "PumpOff", "PumpSpeedTooLow", "VacuumTooHigh",
	"WaitingAfterPumpDown", "NoIonSource", "SafetySwitchTripped", "IncompatibleFirmware",
}

// Has reports whether every bit of flag is set.
func (p OperatePreventer) Has(flag OperatePreventer) bool {
	return flag != 0 && p&flag == flag
}

// Names returns the names of the set bits, lowest bit first.
func (p OperatePreventer) Names() []string {
	var names []string
	for i, name := range preventerNames {
		if p&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return names
}

func (p OperatePreventer) String() string {
	if p == 0 {
		return "None"
	}
	return strings.Join(p.Names(), "|")
}

// AcquisitionState is the state of the acquisition manager.
type AcquisitionState int

// Acquisition states.
const (
	AcqPrevented AcquisitionState = iota
	AcqReady
	AcqWaiting
	AcqUnderway
	AcqPaused
)

var acquisitionStateNames = []string{"Prevented", "Ready", "Waiting", "Underway", "Paused"}

func (s AcquisitionState) String() string {
	return enumName(acquisitionStateNames, int(s))
}

// Active reports whether a session is open in this state.
func (s AcquisitionState) Active() bool {
	return s == AcqWaiting || s == AcqUnderway || s == AcqPaused
}

// HardwareType identifies the instrument model family.
type HardwareType int

// Hardware types.
const (
	HardwareUnknown HardwareType = iota
	HardwareExpression
	HardwareExpressionL
	HardwareExpressionS
	HardwareSimulated
)

var hardwareTypeNames = []string{"Unknown", "Expression", "ExpressionL", "ExpressionS", "Simulated"}

func (h HardwareType) String() string {
	return enumName(hardwareTypeNames, int(h))
}

// ParseHardwareType parses a hardware type name, case-insensitively.
func ParseHardwareType(s string) (HardwareType, error) {
	i, err := parseEnum(hardwareTypeNames, s)
	return HardwareType(i), err
}

// SourceType identifies the ion source fitted to the instrument.
type SourceType int

// Source types.
const (
	SourceNone SourceType = iota
	SourceESI
	SourceAPCI
	SourceASAP
)

var sourceTypeNames = []string{"None", "ESI", "APCI", "ASAP"}

func (s SourceType) String() string {
	return enumName(sourceTypeNames, int(s))
}

// ParseSourceType parses an ion source name, case-insensitively.
func ParseSourceType(s string) (SourceType, error) {
	i, err := parseEnum(sourceTypeNames, s)
	return SourceType(i), err
}

// TuneParameter identifies a bounded numeric instrument setting.
type TuneParameter int

// Tune parameters.
const (
	CapillaryTemperature TuneParameter = iota
	CapillaryVoltage
	SourceGasTemperature
	TransferLineTemperature
	ESIVoltage
	APCICoronaDischarge
	SourceVoltageOffset
	SourceVoltageSpan
	ExtractionElectrode
	HexapoleBias
	HexapoleRFOffset
	HexapoleRFSpan
	IonEnergyOffset
	IonEnergySpan
	ResolutionOffset
	ResolutionSpan
	DetectorVoltage

	NumTuneParameters = int(DetectorVoltage) + 1
)

var tuneParameterNames = []string{
	"CapillaryTemperature", "CapillaryVoltage", "SourceGasTemperature", "TransferLineTemperature",
	"ESIVoltage", "APCICoronaDischarge", "SourceVoltageOffset", "SourceVoltageSpan",
	"ExtractionElectrode", "HexapoleBias", "HexapoleRFOffset", "HexapoleRFSpan",
	"IonEnergyOffset", "IonEnergySpan", "ResolutionOffset", "ResolutionSpan", "DetectorVoltage",
}

func (p TuneParameter) String() string {
	return enumName(tuneParameterNames, int(p))
}

// Valid reports whether p is a known parameter.
func (p TuneParameter) Valid() bool {
	return p >= 0 && int(p) < NumTuneParameters
}

// ParseTuneParameter parses a tune parameter name, case-insensitively.
func ParseTuneParameter(s string) (TuneParameter, error) {
	i, err := parseEnum(tuneParameterNames, s)
	return TuneParameter(i), err
}

// AllTuneParameters returns every tune parameter in numeric order.
func AllTuneParameters() []TuneParameter {
	params := make([]TuneParameter, NumTuneParameters)
	for i := range params {
		params[i] = TuneParameter(i)
	}
	return params
}

// InstrumentSwitch identifies an on/off instrument output.
type InstrumentSwitch int

// Instrument switches.
const (
	SwitchPositiveIon InstrumentSwitch = iota
	SwitchFullNebulizationGas
	SwitchStandbyNebulizationGas
	SwitchSourceGas
	SwitchCapillaryHeater
	SwitchSourceGasHeater
	SwitchTransferLineHeater
	SwitchPositiveCalibrant
	SwitchNegativeCalibrant
	SwitchUsingHelium

	NumInstrumentSwitches = int(SwitchUsingHelium) + 1
)

var switchNames = []string{
	"PositiveIon", "FullNebulizationGas", "StandbyNebulizationGas", "SourceGas", "CapillaryHeater",
	"SourceGasHeater", "TransferLineHeater", "PositiveCalibrant", "NegativeCalibrant", "UsingHelium",
}

func (s InstrumentSwitch) String() string {
	return enumName(switchNames, int(s))
}

// Valid reports whether s is a known switch.
func (s InstrumentSwitch) Valid() bool {
	return s >= 0 && int(s) < NumInstrumentSwitches
}

// Readback returns the binary readback that reflects this switch.
func (s InstrumentSwitch) Readback() BinaryReadback {
	return RBPositiveIon + BinaryReadback(s)
}

// BinaryReadback identifies a boolean value read back from the instrument.
type BinaryReadback int

// Binary readbacks.
const (
	RBCommunicationOK BinaryReadback = iota
	RBFirmwareVersionOK
	RBPumpSpeedOK
	RBVacuumOK
	RBSafetySwitchOK
	RBFIASignal
	RBDigitalInput1
	RBDigitalInput2
	RBDigitalInput3
	RBDigitalInput4
	RBPumpPower
	RBHighVoltages
	RBPositiveIon
	RBFullNebulizationGas
	RBStandbyNebulizationGas
	RBSourceGas
	RBCapillaryHeater
	RBSourceGasHeater
	RBTransferLineHeater
	RBPositiveCalibrant
	RBNegativeCalibrant
	RBUsingHelium

	NumBinaryReadbacks = int(RBUsingHelium) + 1
)

var binaryReadbackNames = []string{
	"CommunicationOK", "FirmwareVersionOK", "PumpSpeedOK", "VacuumOK", "SafetySwitchOK", "FIASignal",
	"DigitalInput1", "DigitalInput2", "DigitalInput3", "DigitalInput4", "PumpPowerRB", "HighVoltagesRB",
	"PositiveIonRB", "FullNebulizationGasRB", "StandbyNebulizationGasRB", "SourceGasRB", "CapillaryHeaterRB",
	"SourceGasHeaterRB", "TransferLineHeaterRB", "PositiveCalibrantRB", "NegativeCalibrantRB", "UsingHeliumRB",
}

func (r BinaryReadback) String() string {
	return enumName(binaryReadbackNames, int(r))
}

// Valid reports whether r is a known readback.
func (r BinaryReadback) Valid() bool {
	return r >= 0 && int(r) < NumBinaryReadbacks
}

// NumberReadback identifies a numeric value read back from the instrument.
type NumberReadback int

// Number readbacks.
const (
	RBPiraniPressure NumberReadback = iota
	RBTurboSpeed
	RBCapillaryTemperature
	RBSourceGasTemperature
	RBTransferLineTemperature
	RBCapillaryVoltage
	RBSourceVoltage
	RBExtractionElectrode
	RBHexapoleBias
	RBPoleBias
	RBHexapoleRF
	RBRectifiedRF
	RBESIVoltage
	RBAPCICurrent
	RBDetectorVoltage
	RBDynodeVoltage
	RBDC1
	RBDC2

	NumNumberReadbacks = int(RBDC2) + 1
)

var numberReadbackNames = []string{
	"PiraniPressureRB", "TurboSpeedRB", "CapillaryTemperatureRB", "SourceGasTemperatureRB",
	"TransferLineTemperatureRB", "CapillaryVoltageRB", "SourceVoltageRB", "ExtractionElectrodeRB",
	"HexapoleBiasRB", "PoleBiasRB", "HexapoleRFRB", "RectifiedRFRB", "ESIVoltageRB", "APCICurrentRB",
	"DetectorVoltageRB", "DynodeVoltageRB", "DC1RB", "DC2RB",
}

func (r NumberReadback) String() string {
	return enumName(numberReadbackNames, int(r))
}

// Valid reports whether r is a known readback.
func (r NumberReadback) Valid() bool {
	return r >= 0 && int(r) < NumNumberReadbacks
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return fmt.Sprintf("Unknown(%d)", i)
	}
	return names[i]
}

func parseEnum(names []string, s string) (int, error) {
	for i, name := range names {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownName, s)
}

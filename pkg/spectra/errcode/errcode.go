// Package errcode defines the error codes reported by the instrument control
// layer (CMS) and the dataset layer (Data).
//
// Both code types implement error, so every named code doubles as a sentinel:
//
//	if errors.Is(err, errcode.ErrOperatingNotAllowed) { ... }
//
// Callers add context with fmt.Errorf("%w: ...", code).
package errcode

import (
	"errors"
	"fmt"
)

// CMS is an instrument control error code.
type CMS int

// Instrument control error codes.
const (
	CMSOK CMS = 0

	ErrNoUSBConnection           CMS = 1
	ErrUSBConnected              CMS = 2
	ErrLostUSBConnection         CMS = 3
	ErrIncompatibleFirmware      CMS = 4
	ErrHiVoltOffBadVacuum        CMS = 10
	ErrStandbyIonSourceRemoved   CMS = 11
	ErrStandbyIonSourceUnplugged CMS = 12
	ErrVacuumTooLow              CMS = 13
	ErrVacuumOK                  CMS = 14
	ErrAlreadyAcquiring          CMS = 20
	ErrAlreadyPaused             CMS = 21
	ErrNotAcquiring              CMS = 22
	ErrNotPaused                 CMS = 23
	ErrNotWritingData            CMS = 24
	ErrWriteFailed               CMS = 25
	ErrSwitchingNotAllowed       CMS = 26
	ErrSegmentsNotAllowed        CMS = 27
	ErrScanModeOutOfRange        CMS = 28
	ErrTuneIndexOutOfRange       CMS = 30
	ErrControllerAlreadyStarted  CMS = 40
	ErrControllerNotStarted      CMS = 41
	ErrInstrumentIsOperating     CMS = 42
	ErrPumpAlreadyOn             CMS = 43
	ErrOperatingNotAllowed       CMS = 44
	ErrStandbyNotAllowed         CMS = 45
	ErrInstrumentNotOperating    CMS = 46
	ErrParsingFailed             CMS = 47
	ErrIndexOutOfRange           CMS = 48
	ErrInstrumentTypeUnknown     CMS = 49
	ErrAlreadyAutoTuning         CMS = 50
	ErrCancelled                 CMS = 51
	ErrPeaksNotFound             CMS = 52
	ErrCouldNotAutotune          CMS = 53
	ErrNotEnoughTuningMasses     CMS = 54
	ErrRangeScanTimeTooLow       CMS = 60
	ErrRangeScanTimeTooHigh      CMS = 61
	ErrSIMDwellTimeTooLow        CMS = 62
	ErrSIMDwellTimeTooHigh       CMS = 63
	ErrScanSpeedTooHigh          CMS = 64
	ErrSIMNoMasses               CMS = 65
	ErrDataReadFail              CMS = 70
	ErrInvalidFilterParams       CMS = 71
	ErrParameterOutOfRange       CMS = 80
	ErrDatasetFolderLocked       CMS = 81
	ErrPathTooLong               CMS = 82
	ErrNotLicensed               CMS = 83
	ErrNotSupported              CMS = 84

	// ErrNoSpectra is not a firmware code. It is raised by live telemetry
	// reads before the first scan of a session completes.
	ErrNoSpectra CMS = 1000
)

var cmsMessages = map[CMS]string{
	CMSOK:                        "ok",
	ErrNoUSBConnection:           "no usb connection",
	ErrUSBConnected:              "usb connected",
	ErrLostUSBConnection:         "lost usb connection",
	ErrIncompatibleFirmware:      "incompatible firmware",
	ErrHiVoltOffBadVacuum:        "high voltage off: bad vacuum",
	ErrStandbyIonSourceRemoved:   "standby: ion source removed",
	ErrStandbyIonSourceUnplugged: "standby: ion source unplugged",
	ErrVacuumTooLow:              "vacuum too low",
	ErrVacuumOK:                  "vacuum ok",
	ErrAlreadyAcquiring:          "already acquiring",
	ErrAlreadyPaused:             "already paused",
	ErrNotAcquiring:              "not acquiring",
	ErrNotPaused:                 "not paused",
	ErrNotWritingData:            "not writing data",
	ErrWriteFailed:               "write failed",
	ErrSwitchingNotAllowed:       "switching not allowed",
	ErrSegmentsNotAllowed:        "segments not allowed",
	ErrScanModeOutOfRange:        "scan mode out of range",
	ErrTuneIndexOutOfRange:       "tune index out of range",
	ErrControllerAlreadyStarted:  "controller already started",
	ErrControllerNotStarted:      "controller not started",
	ErrInstrumentIsOperating:     "instrument is operating",
	ErrPumpAlreadyOn:             "pump already on",
	ErrOperatingNotAllowed:       "operating not allowed",
	ErrStandbyNotAllowed:         "standby not allowed",
	ErrInstrumentNotOperating:    "instrument not operating",
	ErrParsingFailed:             "parsing failed",
	ErrIndexOutOfRange:           "index out of range",
	ErrInstrumentTypeUnknown:     "instrument type unknown",
	ErrAlreadyAutoTuning:         "already auto tuning",
	ErrCancelled:                 "cancelled",
	ErrPeaksNotFound:             "peaks not found",
	ErrCouldNotAutotune:          "could not autotune",
	ErrNotEnoughTuningMasses:     "not enough tuning masses",
	ErrRangeScanTimeTooLow:       "range scan time too low",
	ErrRangeScanTimeTooHigh:      "range scan time too high",
	ErrSIMDwellTimeTooLow:        "sim dwell time too low",
	ErrSIMDwellTimeTooHigh:       "sim dwell time too high",
	ErrScanSpeedTooHigh:          "scan speed too high",
	ErrSIMNoMasses:               "sim: no masses",
	ErrDataReadFail:              "data read failed",
	ErrInvalidFilterParams:       "invalid filter parameters",
	ErrParameterOutOfRange:       "parameter out of range",
	ErrDatasetFolderLocked:       "dataset folder locked",
	ErrPathTooLong:               "path too long",
	ErrNotLicensed:               "not licensed",
	ErrNotSupported:              "not supported",
	ErrNoSpectra:                 "no spectra",
}

func (c CMS) Error() string {
	if msg, ok := cmsMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("cms error %d", int(c))
}

// Data is a dataset error code.
type Data int

// Dataset error codes.
const (
	DataOK Data = 0

	ErrFileOpenFailed          Data = 1
	ErrFileWriteFailed         Data = 2
	ErrOutOfMemory             Data = 3
	ErrCreateDatasetFailed     Data = 4
	ErrOpenDatasetFailed       Data = 5
	ErrChannelNotDefined       Data = 6
	ErrAuxFileNotDefined       Data = 7
	ErrDataVersionTooHigh      Data = 8
	ErrDataParameterIsNull     Data = 9
	ErrDataParsingFailed       Data = 10
	ErrDataIndexOutOfRange     Data = 11
	ErrDataParameterOutOfRange Data = 12
	ErrDataNoSpectra           Data = 13
	ErrChannelHeaderClosed     Data = 14
	ErrDataFolderLocked        Data = 15
	ErrDataPathTooLong         Data = 16
)

var dataMessages = map[Data]string{
	DataOK:                     "ok",
	ErrFileOpenFailed:          "file open failed",
	ErrFileWriteFailed:         "file write failed",
	ErrOutOfMemory:             "out of memory",
	ErrCreateDatasetFailed:     "create dataset failed",
	ErrOpenDatasetFailed:       "open dataset failed",
	ErrChannelNotDefined:       "channel not defined",
	ErrAuxFileNotDefined:       "aux file not defined",
	ErrDataVersionTooHigh:      "data version too high",
	ErrDataParameterIsNull:     "data parameter is null",
	ErrDataParsingFailed:       "parsing failed",
	ErrDataIndexOutOfRange:     "index out of range",
	ErrDataParameterOutOfRange: "parameter out of range",
	ErrDataNoSpectra:           "no spectra",
	ErrChannelHeaderClosed:     "channel header closed",
	ErrDataFolderLocked:        "dataset folder locked",
	ErrDataPathTooLong:         "path too long",
}

func (d Data) Error() string {
	if msg, ok := dataMessages[d]; ok {
		return msg
	}
	return fmt.Sprintf("data error %d", int(d))
}

// Domain names the error domain of a code carried over the wire.
type Domain string

// Error domains.
const (
	DomainNone Domain = ""
	DomainCMS  Domain = "cms"
	DomainData Domain = "data"
)

// CodeOf extracts the first CMS or Data code wrapped in err.
// It returns DomainNone for nil or foreign errors.
func CodeOf(err error) (Domain, int) {
	if err == nil {
		return DomainNone, 0
	}
	var c CMS
	if errors.As(err, &c) {
		return DomainCMS, int(c)
	}
	var d Data
	if errors.As(err, &d) {
		return DomainData, int(d)
	}
	return DomainNone, 0
}

// FromCode rebuilds the sentinel for a code extracted with CodeOf.
// Unknown domains yield nil.
func FromCode(domain Domain, code int) error {
	switch domain {
	case DomainCMS:
		return CMS(code)
	case DomainData:
		return Data(code)
	default:
		return nil
	}
}

package spectrav1

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encode converts a message struct to its wire form. A nil v encodes the
// empty message.
func Encode(v any) (*structpb.Struct, error) {
	if v == nil {
		return &structpb.Struct{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// Decode fills v from a wire message.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}

// Empty is the message of calls without arguments or results.
type Empty struct{}

// Status is the GetStatus response.
type Status struct {
	State             string   `json:"state"`
	OperationMode     string   `json:"operation_mode"`
	Preventers        []string `json:"preventers,omitempty"`
	FaultCause        string   `json:"fault_cause,omitempty"`
	PumpDownRemaining float64  `json:"pump_down_remaining_seconds,omitempty"`

	SerialNumber    string  `json:"serial_number,omitempty"`
	HardwareType    string  `json:"hardware_type,omitempty"`
	SourceType      string  `json:"source_type,omitempty"`
	FirmwareVersion string  `json:"firmware_version,omitempty"`
	SoftwareVersion string  `json:"software_version"`
	MinMass         float64 `json:"min_mass,omitempty"`
	MaxMass         float64 `json:"max_mass,omitempty"`

	Acquisition AcquisitionStatus `json:"acquisition"`

	UptimeSeconds int64  `json:"uptime_seconds"`
	MemoryBytes   uint64 `json:"memory_bytes"`
	Datasets      int    `json:"datasets"`
	Subscribers   int    `json:"subscribers"`
}

// AcquisitionStatus describes the acquisition manager.
type AcquisitionStatus struct {
	State           string  `json:"state"`
	SessionID       string  `json:"session_id,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	LastScanIndex   int     `json:"last_scan_index"`
	LastTIC         float64 `json:"last_tic,omitempty"`
	LastDeltaIC     float64 `json:"last_delta_ic,omitempty"`
	BinsPerAMU      int     `json:"bins_per_amu"`
	WriteBinsPerAMU int     `json:"write_bins_per_amu"`
}

// StartAcquisitionRequest starts a session. With Switching set the
// IonSources and Tunes pairs are used instead of IonSource and Tune.
type StartAcquisitionRequest struct {
	Method    string `json:"method"`
	Name      string `json:"name"`
	Folder    string `json:"folder,omitempty"`
	IonSource string `json:"ion_source,omitempty"`
	Tune      string `json:"tune,omitempty"`

	Switching  bool      `json:"switching,omitempty"`
	IonSources [2]string `json:"ion_sources"`
	Tunes      [2]string `json:"tunes"`
}

// StartAcquisitionResponse identifies the new session.
type StartAcquisitionResponse struct {
	SessionID string `json:"session_id"`
}

// PauseAcquisitionRequest pauses the session.
type PauseAcquisitionRequest struct {
	ResumeOnDigitalInput bool `json:"resume_on_digital_input,omitempty"`
}

// ExtendAcquisitionRequest lengthens the session.
type ExtendAcquisitionRequest struct {
	Seconds float64 `json:"seconds"`
}

// ExtendAcquisitionResponse reports the new total duration.
type ExtendAcquisitionResponse struct {
	TotalSeconds float64 `json:"total_seconds"`
}

// Dataset is one catalog entry.
type Dataset struct {
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	NumSpectra   int       `json:"num_spectra"`
	Reason       string    `json:"reason"`
	Error        string    `json:"error,omitempty"`
	InstrumentID string    `json:"instrument_id,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// ListDatasetsResponse lists the catalog, most recent first.
type ListDatasetsResponse struct {
	Datasets []Dataset `json:"datasets"`
}

// RecentLogRequest asks for the last Count buffered log entries.
type RecentLogRequest struct {
	Count int `json:"count"`
}

// LogEntry is one buffered log line.
type LogEntry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Fields    string    `json:"fields,omitempty"`
}

// RecentLogResponse carries buffered log entries, oldest first.
type RecentLogResponse struct {
	Entries []LogEntry `json:"entries"`
}

// WatchEventsRequest restricts the stream to one session. State events are
// always sent.
type WatchEventsRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// Event is one streamed notification; see broadcaster.Event.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`

	Index             int     `json:"index,omitempty"`
	RetentionTime     float64 `json:"retention_time,omitempty"`
	TIC               float64 `json:"tic,omitempty"`
	BasePeakMass      float64 `json:"base_peak_mass,omitempty"`
	BasePeakIntensity float64 `json:"base_peak_intensity,omitempty"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	Path       string `json:"path,omitempty"`
	NumSpectra int    `json:"num_spectra,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

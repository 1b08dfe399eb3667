package daemon

import (
	"context"
	"runtime"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/daemon/broadcaster"
	"github.com/jamesainslie/spectra/pkg/spectra/acquisition"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
)

// DefaultRecentLogCount is used when a RecentLog request names no count.
const DefaultRecentLogCount = 50

// Service implements the spectra control gRPC service.
type Service struct {
	spectrav1.UnimplementedControlServer

	srv       *Server
	startTime time.Time
}

// NewService creates a new gRPC service over the server's components.
func NewService(srv *Server) *Service {
	return &Service{
		srv:       srv,
		startTime: time.Now(),
	}
}

func reply(ctx context.Context, v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, spectrav1.EncodeError(ctx, err)
	}
	out, err := spectrav1.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func decode(in *structpb.Struct, v any) error {
	if err := spectrav1.Decode(in, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// GetStatus returns instrument, acquisition and daemon health information.
func (s *Service) GetStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(ctx, s.status(), nil)
}

func (s *Service) status() spectrav1.Status {
	ctrl, mgr := s.srv.ctrl, s.srv.mgr

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	st := spectrav1.Status{
		State:           ctrl.State().String(),
		OperationMode:   ctrl.OperationMode().String(),
		Preventers:      ctrl.OperatePreventers().Names(),
		SoftwareVersion: ctrl.SoftwareVersion(),
		UptimeSeconds:   int64(time.Since(s.startTime).Seconds()),
		MemoryBytes:     mem.Alloc,
		Subscribers:     s.srv.bcast.SubscriberCount(),
		Acquisition: spectrav1.AcquisitionStatus{
			State:           mgr.State().String(),
			SessionID:       mgr.SessionID(),
			LastScanIndex:   -1,
			BinsPerAMU:      mgr.AcquisitionBinsPerAMU(),
			WriteBinsPerAMU: mgr.WriteBinsPerAMU(),
		},
	}
	if cause := ctrl.FaultCause(); cause != nil {
		st.FaultCause = cause.Error()
	}
	if d, err := ctrl.PumpDownRemaining(); err == nil {
		st.PumpDownRemaining = d.Seconds()
	}
	if inst := ctrl.Instrument(); inst != nil {
		st.SerialNumber = inst.SerialNumber()
		st.HardwareType = inst.HardwareType().String()
		st.SourceType = inst.SourceType().String()
		st.FirmwareVersion = inst.FirmwareVersion()
		st.MinMass = inst.MinMass()
		st.MaxMass = inst.MaxMass()
	}
	if d, err := mgr.Duration(); err == nil {
		st.Acquisition.DurationSeconds = d.Seconds()
	}
	if i, err := mgr.LastScanIndex(); err == nil {
		st.Acquisition.LastScanIndex = i
		st.Acquisition.LastTIC, _ = mgr.LastTIC()
		st.Acquisition.LastDeltaIC, _ = mgr.LastDeltaIC()
	}
	if n, err := s.srv.store.Count(); err == nil {
		st.Datasets = n
	}
	return st
}

// PumpDown starts evacuating the vented instrument.
func (s *Service) PumpDown(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.command(ctx, "pump-down", s.srv.ctrl.PumpDown)
}

// Operate switches the instrument on.
func (s *Service) Operate(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.command(ctx, "operate", s.srv.ctrl.Operate)
}

// Standby switches the instrument to standby.
func (s *Service) Standby(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.command(ctx, "standby", s.srv.ctrl.Standby)
}

// Vent vents the instrument.
func (s *Service) Vent(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.command(ctx, "vent", s.srv.ctrl.Vent)
}

// command runs a controller transition and answers with the new status.
func (s *Service) command(ctx context.Context, name string, fn func() error) (*structpb.Struct, error) {
	log := logging.Get("daemon")
	if err := fn(); err != nil {
		log.Warn("command rejected", "command", name, "error", err)
		return nil, spectrav1.EncodeError(ctx, err)
	}
	log.Info("command accepted", "command", name)
	return reply(ctx, s.status(), nil)
}

// StartAcquisition opens a session.
func (s *Service) StartAcquisition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req spectrav1.StartAcquisitionRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	var err error
	if req.Switching {
		err = s.srv.mgr.StartWithSwitching(acquisition.SwitchingRequest{
			Method:     req.Method,
			IonSources: req.IonSources,
			Tunes:      req.Tunes,
			Name:       req.Name,
			Folder:     req.Folder,
		})
	} else {
		err = s.srv.mgr.Start(acquisition.Request{
			Method:    req.Method,
			IonSource: req.IonSource,
			Tune:      req.Tune,
			Name:      req.Name,
			Folder:    req.Folder,
		})
	}
	return reply(ctx, spectrav1.StartAcquisitionResponse{SessionID: s.srv.mgr.SessionID()}, err)
}

// StopAcquisition closes the open session and writes its dataset.
func (s *Service) StopAcquisition(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(ctx, spectrav1.Empty{}, s.srv.mgr.Stop())
}

// PauseAcquisition suspends scanning.
func (s *Service) PauseAcquisition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req spectrav1.PauseAcquisitionRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(ctx, spectrav1.Empty{}, s.srv.mgr.Pause(req.ResumeOnDigitalInput))
}

// ResumeAcquisition continues a paused session.
func (s *Service) ResumeAcquisition(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(ctx, spectrav1.Empty{}, s.srv.mgr.Resume())
}

// ExtendAcquisition lengthens the open session.
func (s *Service) ExtendAcquisition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req spectrav1.ExtendAcquisitionRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	total, err := s.srv.mgr.Extend(time.Duration(req.Seconds * float64(time.Second)))
	return reply(ctx, spectrav1.ExtendAcquisitionResponse{TotalSeconds: total.Seconds()}, err)
}

// ListDatasets returns the catalog, most recent first.
func (s *Service) ListDatasets(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	entries, err := s.srv.store.List()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	resp := spectrav1.ListDatasetsResponse{Datasets: make([]spectrav1.Dataset, 0, len(entries))}
	for _, e := range entries {
		resp.Datasets = append(resp.Datasets, spectrav1.Dataset{
			SessionID:    e.SessionID,
			Name:         e.Name,
			Path:         e.Path,
			NumSpectra:   e.NumSpectra,
			Reason:       e.Reason,
			Error:        e.Error,
			InstrumentID: e.InstrumentID,
			FinishedAt:   e.FinishedAt,
		})
	}
	return reply(ctx, resp, nil)
}

// RecentLog returns buffered log entries.
func (s *Service) RecentLog(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req spectrav1.RecentLogRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.Count <= 0 {
		req.Count = DefaultRecentLogCount
	}
	entries := logging.Recent(req.Count)
	resp := spectrav1.RecentLogResponse{Entries: make([]spectrav1.LogEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, spectrav1.LogEntry{
			Time:      e.Time,
			Level:     e.Level.String(),
			Component: e.Component,
			Message:   e.Message,
			Fields:    e.Fields,
		})
	}
	return reply(ctx, resp, nil)
}

// Shutdown asks the daemon process to exit.
func (s *Service) Shutdown(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	logging.Get("daemon").Info("shutdown requested")
	s.srv.requestShutdown()
	return reply(ctx, spectrav1.Empty{}, nil)
}

// WatchEvents streams scan, state and session events until the client
// goes away or the daemon stops.
func (s *Service) WatchEvents(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	var req spectrav1.WatchEventsRequest
	if err := decode(in, &req); err != nil {
		return err
	}

	sub := s.srv.bcast.Subscribe(req.SessionID)
	if sub == nil {
		return status.Error(codes.Unavailable, "daemon is shutting down")
	}
	defer s.srv.bcast.Unsubscribe(sub.ID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events:
			if !ok {
				return nil
			}
			msg, err := spectrav1.Encode(toWire(event))
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

func toWire(e *broadcaster.Event) spectrav1.Event {
	return spectrav1.Event{
		Type:              e.Type.String(),
		SessionID:         e.SessionID,
		Index:             e.Index,
		RetentionTime:     e.RetentionTime,
		TIC:               e.TIC,
		BasePeakMass:      e.BasePeakMass,
		BasePeakIntensity: e.BasePeakIntensity,
		From:              e.From,
		To:                e.To,
		Path:              e.Path,
		NumSpectra:        e.NumSpectra,
		Reason:            e.Reason,
		Error:             e.Error,
	}
}

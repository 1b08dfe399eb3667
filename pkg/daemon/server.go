package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/daemon/broadcaster"
	"github.com/jamesainslie/spectra/pkg/daemon/store"
	"github.com/jamesainslie/spectra/pkg/spectra/acquisition"
	"github.com/jamesainslie/spectra/pkg/spectra/archive"
	"github.com/jamesainslie/spectra/pkg/spectra/controller"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/instrument"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// Config holds daemon configuration.
type Config struct {
	SocketPath string
	DataDir    string
	// DBPath is the catalog directory. Defaults to DataDir/catalog.db.
	DBPath string

	// SimulationConfig is the simulator profile used when Instrument is
	// nil. Empty uses the built-in profile. The server closes the
	// instrument either way.
	SimulationConfig string
	Instrument       *instrument.Instrument

	Controller  controller.Options
	Acquisition acquisition.Options
}

// Server is the spectrad gRPC server. It owns one instrument, its
// controller and one acquisition manager.
type Server struct {
	cfg      Config
	grpc     *grpc.Server
	health   *health.Server
	listener net.Listener

	store   *store.Store
	bcast   *broadcaster.Broadcaster
	inst    *instrument.Instrument
	ctrl    *controller.Controller
	mgr     *acquisition.Manager
	service *Service

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewServer creates the daemon: it opens the catalog and the instrument,
// starts the controller and listens on the unix socket.
func NewServer(cfg Config) (*Server, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "catalog.db")
	}

	srv := &Server{
		cfg:    cfg,
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		bcast:  broadcaster.New(),
		done:   make(chan struct{}),
	}
	ok := false
	defer func() {
		if !ok {
			srv.release()
		}
	}()

	var err error
	if srv.store, err = store.Open(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	srv.inst = cfg.Instrument
	if srv.inst == nil {
		if srv.inst, err = instrument.OpenSimulated(cfg.SimulationConfig); err != nil {
			return nil, fmt.Errorf("opening instrument: %w", err)
		}
	}

	srv.ctrl = controller.New(cfg.Controller)
	srv.ctrl.OnStateChange(srv.onStateChange)
	if err := srv.ctrl.StartController(srv.inst); err != nil {
		return nil, fmt.Errorf("starting controller: %w", err)
	}

	acqOpts := cfg.Acquisition
	acqOpts.Store = srv.storeDataset
	acqOpts.OnScan = srv.onScan
	acqOpts.OnFinish = srv.onFinish
	if srv.mgr, err = acquisition.New(srv.ctrl, acqOpts); err != nil {
		return nil, err
	}

	// Remove stale socket if exists
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return nil, err
	}
	var lc net.ListenConfig
	if srv.listener, err = lc.Listen(context.Background(), "unix", cfg.SocketPath); err != nil {
		return nil, err
	}

	healthpb.RegisterHealthServer(srv.grpc, srv.health)
	srv.service = NewService(srv)
	spectrav1.RegisterControlServer(srv.grpc, srv.service)
	srv.updateHealth(srv.ctrl.State())

	ok = true
	logging.Get("daemon").Info("daemon ready", "socket", cfg.SocketPath, "catalog", cfg.DBPath,
		"instrument", srv.inst.SerialNumber())
	return srv, nil
}

// Serve starts the gRPC server. Blocks until stopped.
func (s *Server) Serve() error {
	err := s.grpc.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Done is closed when a client requests shutdown.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) requestShutdown() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Controller returns the instrument controller.
func (s *Server) Controller() *controller.Controller { return s.ctrl }

// Manager returns the acquisition manager.
func (s *Server) Manager() *acquisition.Manager { return s.mgr }

// Close stops the server, finishes any open session and releases the
// instrument.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.bcast.Close()
		s.health.Shutdown()
		s.grpc.GracefulStop()
		s.closeErr = s.release()
		if err := os.RemoveAll(s.cfg.SocketPath); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		logging.Get("daemon").Info("daemon stopped")
	})
	return s.closeErr
}

func (s *Server) release() error {
	var errs []error
	if s.mgr != nil {
		errs = append(errs, s.mgr.Close())
	}
	if s.ctrl != nil && s.ctrl.Started() {
		errs = append(errs, s.ctrl.StopController())
	}
	if s.inst != nil {
		errs = append(errs, s.inst.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.bcast.Close()
	return errors.Join(errs...)
}

// storeDataset writes the finished dataset file and records it in the
// catalog.
func (s *Server) storeDataset(path string, ds *dataset.Dataset) error {
	if err := archive.WriteDataset(path, ds); err != nil {
		return err
	}
	if err := s.store.PutDataset(path, ds); err != nil {
		logging.Get("daemon").Warn("cataloguing dataset failed", "path", path, "error", err)
	}
	return nil
}

func (s *Server) onScan(ev acquisition.ScanEvent) {
	s.bcast.Notify(broadcaster.Event{
		Type:              broadcaster.EventScan,
		SessionID:         ev.SessionID,
		Index:             ev.Index,
		RetentionTime:     ev.RetentionTime,
		TIC:               ev.TIC,
		BasePeakMass:      ev.BasePeakMass,
		BasePeakIntensity: ev.BasePeakIntensity,
	})
}

func (s *Server) onFinish(sum acquisition.Summary) {
	entry := &store.Entry{
		SessionID:    sum.SessionID,
		Name:         sum.Name,
		Path:         sum.Path,
		NumSpectra:   sum.NumSpectra,
		Reason:       sum.Reason,
		InstrumentID: s.inst.SerialNumber(),
		FinishedAt:   s.now(),
	}
	if sum.Err != nil {
		entry.Error = sum.Err.Error()
	}
	if err := s.store.Put(entry); err != nil {
		logging.Get("daemon").Warn("cataloguing session failed", "session", sum.SessionID, "error", err)
	}
	s.bcast.Notify(broadcaster.Event{
		Type:       broadcaster.EventFinished,
		SessionID:  sum.SessionID,
		Path:       sum.Path,
		NumSpectra: sum.NumSpectra,
		Reason:     sum.Reason,
		Error:      entry.Error,
	})
}

func (s *Server) onStateChange(from, to types.InstrumentState) {
	logging.Get("daemon").Info("instrument state changed", "from", from, "to", to)
	s.updateHealth(to)
	s.bcast.Notify(broadcaster.Event{Type: broadcaster.EventState, From: from.String(), To: to.String()})
}

// updateHealth reports NOT_SERVING while the instrument is faulted.
func (s *Server) updateHealth(state types.InstrumentState) {
	st := healthpb.HealthCheckResponse_SERVING
	if state == types.StateFault {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(spectrav1.ServiceName, st)
}

func (s *Server) now() time.Time {
	if s.cfg.Acquisition.Now != nil {
		return s.cfg.Acquisition.Now()
	}
	return time.Now()
}

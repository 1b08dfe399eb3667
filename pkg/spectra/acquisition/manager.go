// Package acquisition records datasets from an operating instrument.
//
// A Manager runs at most one session at a time. A session opens with
// Start, moves Waiting -> Underway once the first scan begins, may be paused
// and resumed, and closes on Stop, on natural completion or when the
// instrument leaves Operate. The scan loop runs on a ticker when
// Options.ScanInterval is set; otherwise the caller drives it with Step.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/spectra/pkg/spectra/archive"
	"github.com/jamesainslie/spectra/pkg/spectra/controller"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/instrument"
	"github.com/jamesainslie/spectra/pkg/spectra/logging"
	"github.com/jamesainslie/spectra/pkg/spectra/tune"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

// Bins-per-AMU limits and defaults.
const (
	MinBinsPerAMU        = 1
	MaxBinsPerAMU        = 100
	DefaultBinsPerAMU    = 10
	DefaultMaxPathLength = 260
)

const lockFileName = ".spectra.lock"

// ScanEvent describes one completed scan.
type ScanEvent struct {
	SessionID         string
	Name              string
	Index             int
	RetentionTime     float64
	TIC               float64
	BasePeakMass      float64
	BasePeakIntensity float64
}

// Summary describes a finished session.
type Summary struct {
	SessionID  string
	Name       string
	Path       string
	NumSpectra int
	Reason     string
	Err        error
}

// Options configures a Manager.
type Options struct {
	// ScanInterval drives Step from a background goroutine while a session
	// is open. Zero leaves stepping to the caller.
	ScanInterval time.Duration

	AcquisitionBinsPerAMU int
	WriteBinsPerAMU       int
	MaxPathLength         int

	// OutputDir is used when a start request names no folder.
	OutputDir string

	Dataset dataset.Options

	// Now is the time source. Defaults to time.Now.
	Now func() time.Time

	// Store persists the finished dataset. Defaults to archive.WriteDataset.
	Store func(path string, ds *dataset.Dataset) error

	// OnScan and OnFinish observe sessions. They are called without the
	// manager lock held.
	OnScan   func(ScanEvent)
	OnFinish func(Summary)
}

func (o *Options) setDefaults() {
	if o.AcquisitionBinsPerAMU == 0 {
		o.AcquisitionBinsPerAMU = DefaultBinsPerAMU
	}
	if o.WriteBinsPerAMU == 0 {
		o.WriteBinsPerAMU = o.AcquisitionBinsPerAMU
	}
	if o.MaxPathLength == 0 {
		o.MaxPathLength = DefaultMaxPathLength
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Store == nil {
		o.Store = archive.WriteDataset
	}
}

// Request starts a single-source session. IonSource and Tune are optional
// documents applied to the instrument before the first scan.
type Request struct {
	Method    string
	IonSource string
	Tune      string
	Name      string
	Folder    string
}

// SwitchingRequest starts a dual-source session that alternates between two
// ion source and tune configurations on every scan cycle.
type SwitchingRequest struct {
	Method     string
	IonSources [2]string
	Tunes      [2]string
	Name       string
	Folder     string
}

type session struct {
	id     string
	name   string
	path   string
	method *Method
	lock   *folderLock
	ds     *dataset.Dataset

	cover    [][]int
	masses   []float64
	bins     int
	tuneSets []map[types.TuneParameter]float64

	startedAt   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration
	duration    time.Duration
	resumeOnDI  bool
	cycles      int
	lastRT      float64

	log strings.Builder
}

func (s *session) logf(now time.Time, format string, args ...any) {
	fmt.Fprintf(&s.log, "%s %s\n", now.UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

// Manager is the acquisition session manager. Create one with New.
type Manager struct {
	mu    sync.Mutex
	ctrl  *controller.Controller
	opts  Options
	state types.AcquisitionState
	sess  *session

	acqBins   int
	writeBins int

	last       atomic.Pointer[dataset.Dataset]
	lastAnalog atomic.Uint64
	lastID     atomic.Pointer[string]

	stopLoop context.CancelFunc
	loopDone chan struct{}
	loops    sync.WaitGroup
}

// New returns a manager bound to ctrl. The manager closes its session when
// the instrument leaves Operate.
func New(ctrl *controller.Controller, opts Options) (*Manager, error) {
	opts.setDefaults()
	if err := checkBins(opts.AcquisitionBinsPerAMU); err != nil {
		return nil, err
	}
	if err := checkBins(opts.WriteBinsPerAMU); err != nil {
		return nil, err
	}

	m := &Manager{
		ctrl:      ctrl,
		opts:      opts,
		acqBins:   opts.AcquisitionBinsPerAMU,
		writeBins: opts.WriteBinsPerAMU,
	}
	ctrl.OnStateChange(m.onInstrumentState)
	return m, nil
}

func checkBins(n int) error {
	if n < MinBinsPerAMU || n > MaxBinsPerAMU {
		return fmt.Errorf("%w: %d bins per AMU, want [%d, %d]",
			errcode.ErrParameterOutOfRange, n, MinBinsPerAMU, MaxBinsPerAMU)
	}
	return nil
}

// State returns the acquisition state.
func (m *Manager) State() types.AcquisitionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() types.AcquisitionState {
	if m.sess != nil {
		return m.state
	}
	return m.idleState()
}

func (m *Manager) idleState() types.AcquisitionState {
	if !m.ctrl.Started() ||
		m.ctrl.State() != types.StateOperate ||
		m.ctrl.OperatePreventers() != 0 ||
		m.ctrl.OperationMode() != types.ModeIdle {
		return types.AcqPrevented
	}
	return types.AcqReady
}

// Start opens a single-source session.
func (m *Manager) Start(req Request) error {
	return m.start(req.Method, req.Name, req.Folder, false, func(inst *instrument.Instrument) ([]map[types.TuneParameter]float64, func() error, error) {
		var sourceValues, tuneValues map[types.TuneParameter]float64
		if req.IonSource != "" {
			source, values, err := tune.ParseSourceDocument(req.IonSource)
			if err != nil {
				return nil, nil, err
			}
			if source != types.SourceNone && source != inst.SourceType() {
				return nil, nil, fmt.Errorf("%w: document for %s source, instrument has %s",
					errcode.ErrParsingFailed, source, inst.SourceType())
			}
			sourceValues = values
		}
		if req.Tune != "" {
			values, err := tune.ParseDocument(req.Tune)
			if err != nil {
				return nil, nil, err
			}
			tuneValues = values
		}
		merged := merge(nil, sourceValues, tuneValues)
		if len(merged) == 0 {
			return nil, nil, nil
		}
		if err := inst.Tune().Validate(merged); err != nil {
			return nil, nil, err
		}
		return nil, func() error { return inst.ApplyTune(merged) }, nil
	})
}

// StartWithSwitching opens a dual-source session. It fails with
// ErrSwitchingNotAllowed on an instrument without dual-source support.
func (m *Manager) StartWithSwitching(req SwitchingRequest) error {
	return m.start(req.Method, req.Name, req.Folder, true, func(inst *instrument.Instrument) ([]map[types.TuneParameter]float64, func() error, error) {
		base := inst.Tune().Snapshot()
		sets := make([]map[types.TuneParameter]float64, 2)
		for k := range sets {
			var sourceValues, tuneValues map[types.TuneParameter]float64
			if req.IonSources[k] != "" {
				_, values, err := tune.ParseSourceDocument(req.IonSources[k])
				if err != nil {
					return nil, nil, fmt.Errorf("ion source %d: %w", k+1, err)
				}
				sourceValues = values
			}
			if req.Tunes[k] != "" {
				values, err := tune.ParseDocument(req.Tunes[k])
				if err != nil {
					return nil, nil, fmt.Errorf("tune %d: %w", k+1, err)
				}
				tuneValues = values
			}
			sets[k] = merge(base, sourceValues, tuneValues)
			if err := inst.Tune().Validate(sets[k]); err != nil {
				return nil, nil, fmt.Errorf("tune %d: %w", k+1, err)
			}
		}
		return sets, nil, nil
	})
}

func merge(base map[types.TuneParameter]float64, layers ...map[types.TuneParameter]float64) map[types.TuneParameter]float64 {
	out := make(map[types.TuneParameter]float64, len(base))
	for p, v := range base {
		out[p] = v
	}
	for _, l := range layers {
		for p, v := range l {
			out[p] = v
		}
	}
	return out
}

type tunePlan func(inst *instrument.Instrument) (sets []map[types.TuneParameter]float64, apply func() error, err error)

func (m *Manager) start(methodDoc, name, folder string, switching bool, plan tunePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess != nil {
		return fmt.Errorf("%w: session %s is %s", errcode.ErrAlreadyAcquiring, m.sess.id, m.state)
	}
	inst := m.ctrl.Instrument()
	if inst == nil {
		return errcode.ErrControllerNotStarted
	}
	if st := m.idleState(); st != types.AcqReady {
		return fmt.Errorf("%w: instrument %s, preventers %s",
			errcode.ErrInstrumentNotOperating, m.ctrl.State(), m.ctrl.OperatePreventers())
	}
	if switching && !inst.Info().DualSource {
		return errcode.ErrSwitchingNotAllowed
	}

	method, err := ParseMethod(methodDoc)
	if err != nil {
		return err
	}
	if err := method.checkRange(inst.MinMass(), inst.MaxMass()); err != nil {
		return err
	}

	path, dir, err := m.datasetPath(name, folder)
	if err != nil {
		return err
	}

	sets, apply, err := plan(inst)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", errcode.ErrCreateDatasetFailed, err)
	}
	lock, err := lockFolder(dir)
	if err != nil {
		return err
	}
	release := func() {
		if err := lock.release(); err != nil {
			logging.Get("acquisition").Warn("releasing folder lock failed", "dir", dir, "error", err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		release()
		return fmt.Errorf("%w: %s already exists", errcode.ErrCreateDatasetFailed, path)
	}

	if apply != nil {
		if err := apply(); err != nil {
			release()
			return err
		}
	}

	masses, cover := method.massAxis(m.acqBins)
	now := m.opts.Now()
	meta := dataset.Metadata{
		Name:            name,
		SoftwareVersion: m.ctrl.SoftwareVersion(),
		FirmwareVersion: inst.FirmwareVersion(),
		HardwareType:    inst.HardwareType(),
		SourceType:      inst.SourceType(),
		InstrumentID:    inst.SerialNumber(),
		Date:            now,
		MethodXML:       methodDoc,
		SegmentTimes:    method.SegmentTimes(),
	}
	if doc, err := m.ctrl.IonSourceOptimization(); err == nil {
		meta.IonSourceOptimizationXML = doc
	}
	if doc, err := m.ctrl.TuneParameters(); err == nil {
		meta.TuneParametersXML = doc
	}
	ds, err := dataset.New(meta, masses, m.opts.Dataset)
	if err != nil {
		release()
		return err
	}

	if err := m.ctrl.SetOperationMode(types.ModeAcquiring); err != nil {
		release()
		return err
	}

	s := &session{
		id:        uuid.NewString(),
		name:      name,
		path:      path,
		method:    method,
		lock:      lock,
		ds:        ds,
		cover:     cover,
		masses:    masses,
		bins:      m.acqBins,
		tuneSets:  sets,
		startedAt: now,
		duration:  method.TotalDuration(),
	}
	s.logf(now, "acquisition %s started: %d scan modes, %d masses, %s", name, len(method.ScanModes), len(masses), s.duration)

	m.sess = s
	m.state = types.AcqWaiting
	m.last.Store(ds)
	m.lastID.Store(&s.id)
	m.lastAnalog.Store(0)

	if m.opts.ScanInterval > 0 {
		if m.stopLoop != nil {
			m.stopLoop()
		}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		m.stopLoop, m.loopDone = cancel, done
		m.loops.Add(1)
		go m.scanLoop(ctx, s, done)
	}

	logging.Get("acquisition").Info("acquisition started",
		"session", s.id, "name", name, "path", path, "duration", s.duration, "switching", switching)
	return nil
}

func (m *Manager) datasetPath(name, folder string) (path, dir string, err error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", "", fmt.Errorf("%w: dataset name %q", errcode.ErrParameterOutOfRange, name)
	}
	if folder == "" {
		folder = m.opts.OutputDir
	}
	dir, err = filepath.Abs(folder)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", errcode.ErrCreateDatasetFailed, err)
	}
	path = filepath.Join(dir, name+archive.DatasetExt)
	if len(path) > m.opts.MaxPathLength {
		return "", "", fmt.Errorf("%w: %d characters, limit %d", errcode.ErrPathTooLong, len(path), m.opts.MaxPathLength)
	}
	return path, dir, nil
}

func (m *Manager) scanLoop(ctx context.Context, s *session, done chan struct{}) {
	defer m.loops.Done()
	defer close(done)

	ticker := time.NewTicker(m.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if alive, err := m.stepSession(s); !alive {
				return
			} else if err != nil {
				logging.Get("acquisition").Warn("scan failed", "session", s.id, "error", err)
			}
		}
	}
}

// Step runs one iteration of the scan loop for the open session: it
// finishes the session when its time is up or the instrument left Operate,
// auto-resumes on digital input, and otherwise records one scan.
func (m *Manager) Step() error {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return errcode.ErrNotAcquiring
	}
	_, err := m.stepSession(s)
	return err
}

// stepSession reports whether s is still the open session afterwards.
func (m *Manager) stepSession(s *session) (bool, error) {
	m.mu.Lock()
	if m.sess != s {
		m.mu.Unlock()
		return false, nil
	}
	ev, sum, err := m.stepLocked(s)
	alive := m.sess == s
	m.mu.Unlock()

	m.publish(ev, sum)
	return alive, err
}

func (m *Manager) stepLocked(s *session) (*ScanEvent, *Summary, error) {
	if m.ctrl.State() != types.StateOperate {
		sum := m.finishLocked(s, "instrument left operate")
		return nil, &sum, nil
	}

	now := m.opts.Now()
	if m.state == types.AcqPaused {
		if !s.resumeOnDI || !m.digitalInput1() {
			return nil, nil, nil
		}
		m.resumeLocked(s, now, "digital input")
	}

	elapsed := now.Sub(s.startedAt) - s.pausedTotal
	if elapsed >= s.duration {
		sum := m.finishLocked(s, "completed")
		return nil, &sum, nil
	}

	rt := elapsed.Seconds()
	if s.cycles > 0 && rt <= s.lastRT {
		return nil, nil, nil
	}

	m.state = types.AcqUnderway
	return m.scanLocked(s, rt)
}

func (m *Manager) digitalInput1() bool {
	inst := m.ctrl.Instrument()
	if inst == nil {
		return false
	}
	on, err := inst.BinaryReadback(types.RBDigitalInput1)
	return err == nil && on
}

func (m *Manager) scanLocked(s *session, rt float64) (*ScanEvent, *Summary, error) {
	inst := m.ctrl.Instrument()
	if inst == nil {
		return nil, nil, errcode.ErrControllerNotStarted
	}

	nModes := len(s.method.ScanModes)
	modeIdx := s.cycles % nModes
	sourceIdx := 0
	if len(s.tuneSets) > 0 {
		sourceIdx = (s.cycles / nModes) % len(s.tuneSets)
	}
	mode := s.method.ScanModes[modeIdx]
	polarity, _ := mode.polarity()

	cover := s.cover[modeIdx]
	req := instrument.ScanRequest{Masses: make([]float64, len(cover)), Polarity: polarity}
	for j, k := range cover {
		req.Masses[j] = s.masses[k]
	}
	if s.tuneSets != nil {
		req.Tune = s.tuneSets[sourceIdx]
	} else {
		req.Tune = inst.Tune().Snapshot()
	}

	res, err := inst.Scan(req)
	if err != nil {
		return nil, nil, err
	}

	row := make([]float64, len(s.masses))
	for j, k := range cover {
		row[k] = res.Intensities[j]
	}
	// The scan mode index of a switching session encodes the source:
	// source*len(modes) + mode.
	if err := s.ds.Append(rt, sourceIdx*nModes+modeIdx, row); err != nil {
		return nil, nil, err
	}
	s.cycles++
	s.lastRT = rt
	m.lastAnalog.Store(math.Float64bits(res.AnalogOutput))

	ev := &ScanEvent{
		SessionID:     s.id,
		Name:          s.name,
		Index:         s.ds.NumSpectra() - 1,
		RetentionTime: rt,
	}
	for k, v := range row {
		ev.TIC += v
		if v > ev.BasePeakIntensity {
			ev.BasePeakIntensity, ev.BasePeakMass = v, s.masses[k]
		}
	}
	return ev, nil, nil
}

// finishLocked closes the session, writes the dataset and releases the
// instrument.
func (m *Manager) finishLocked(s *session, reason string) Summary {
	now := m.opts.Now()
	s.logf(now, "acquisition %s finished: %s, %d spectra", s.name, reason, s.ds.NumSpectra())
	if err := s.ds.SetExperimentLog(s.log.String()); err != nil {
		logging.Get("acquisition").Warn("writing experiment log failed", "error", err)
	}
	s.ds.Close()

	sum := Summary{SessionID: s.id, Name: s.name, Path: s.path, NumSpectra: s.ds.NumSpectra(), Reason: reason}

	out := s.ds
	if m.writeBins != s.bins {
		rebinned, err := s.ds.Rebin(m.writeBins)
		if err != nil {
			sum.Err = err
		} else {
			out = rebinned
		}
	}
	if sum.Err == nil {
		if err := m.opts.Store(s.path, out); err != nil {
			sum.Err = fmt.Errorf("%w: %v", errcode.ErrWriteFailed, err)
		}
	}

	if err := s.lock.release(); err != nil {
		logging.Get("acquisition").Warn("releasing folder lock failed", "path", s.path, "error", err)
	}
	if err := m.ctrl.SetOperationMode(types.ModeIdle); err != nil && !errors.Is(err, errcode.ErrControllerNotStarted) {
		logging.Get("acquisition").Warn("releasing instrument failed", "error", err)
	}

	m.sess = nil
	m.state = m.idleState()

	log := logging.Get("acquisition")
	if sum.Err != nil {
		log.Error("acquisition finished with error", "session", s.id, "reason", reason, "error", sum.Err)
	} else {
		log.Info("acquisition finished", "session", s.id, "reason", reason, "spectra", sum.NumSpectra, "path", s.path)
	}
	return sum
}

func (m *Manager) publish(ev *ScanEvent, sum *Summary) {
	if ev != nil && m.opts.OnScan != nil {
		m.opts.OnScan(*ev)
	}
	if sum != nil && m.opts.OnFinish != nil {
		m.opts.OnFinish(*sum)
	}
}

func (m *Manager) onInstrumentState(_, to types.InstrumentState) {
	if to == types.StateOperate {
		return
	}
	m.mu.Lock()
	s := m.sess
	if s == nil {
		m.mu.Unlock()
		return
	}
	sum := m.finishLocked(s, "instrument left operate")
	m.mu.Unlock()
	m.publish(nil, &sum)
}

// Pause suspends scanning. Valid only while Underway. With
// resumeOnDigitalInput the scan loop resumes by itself once digital input
// 1 reads high.
func (m *Manager) Pause(resumeOnDigitalInput bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.sess == nil:
		return errcode.ErrNotAcquiring
	case m.state == types.AcqPaused:
		return errcode.ErrAlreadyPaused
	case m.state != types.AcqUnderway:
		return fmt.Errorf("%w: %s", errcode.ErrNotAcquiring, m.state)
	}

	now := m.opts.Now()
	m.state = types.AcqPaused
	m.sess.pausedAt = now
	m.sess.resumeOnDI = resumeOnDigitalInput
	m.sess.logf(now, "paused (resume on digital input: %t)", resumeOnDigitalInput)
	logging.Get("acquisition").Info("acquisition paused", "session", m.sess.id, "resume_on_input", resumeOnDigitalInput)
	return nil
}

// Resume continues a paused session.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.sess == nil:
		return errcode.ErrNotAcquiring
	case m.state != types.AcqPaused:
		return errcode.ErrNotPaused
	}
	m.resumeLocked(m.sess, m.opts.Now(), "request")
	return nil
}

func (m *Manager) resumeLocked(s *session, now time.Time, by string) {
	s.pausedTotal += now.Sub(s.pausedAt)
	s.pausedAt = time.Time{}
	s.resumeOnDI = false
	m.state = types.AcqUnderway
	s.logf(now, "resumed by %s", by)
	logging.Get("acquisition").Info("acquisition resumed", "session", s.id, "by", by)
}

// Stop closes the open session and writes its dataset.
func (m *Manager) Stop() error {
	m.mu.Lock()
	s := m.sess
	if s == nil {
		m.mu.Unlock()
		return errcode.ErrNotAcquiring
	}
	sum := m.finishLocked(s, "stopped")
	cancel, done := m.stopLoop, m.loopDone
	m.stopLoop, m.loopDone = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	m.publish(nil, &sum)
	return sum.Err
}

// Extend adds d to the planned duration and returns the new total.
func (m *Manager) Extend(d time.Duration) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || !(m.state == types.AcqUnderway || m.state == types.AcqPaused) {
		return 0, errcode.ErrNotAcquiring
	}
	if len(m.sess.method.Segments) > 0 {
		return 0, errcode.ErrSegmentsNotAllowed
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: extension %s", errcode.ErrParameterOutOfRange, d)
	}
	m.sess.duration += d
	m.sess.logf(m.opts.Now(), "extended by %s to %s", d, m.sess.duration)
	return m.sess.duration, nil
}

// Duration returns the planned length of the open session.
func (m *Manager) Duration() (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return 0, errcode.ErrNotAcquiring
	}
	return m.sess.duration, nil
}

// SessionID returns the id of the open or most recent session.
func (m *Manager) SessionID() string {
	if id := m.lastID.Load(); id != nil {
		return *id
	}
	return ""
}

// Dataset returns the dataset of the open or most recent session, or nil.
func (m *Manager) Dataset() *dataset.Dataset {
	return m.last.Load()
}

// SetAcquisitionBinsPerAMU sets the in-memory resolution of later sessions.
func (m *Manager) SetAcquisitionBinsPerAMU(n int) error {
	if err := checkBins(n); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acqBins = n
	return nil
}

// AcquisitionBinsPerAMU returns the in-memory resolution.
func (m *Manager) AcquisitionBinsPerAMU() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acqBins
}

// SetWriteBinsPerAMU sets the on-disk resolution.
func (m *Manager) SetWriteBinsPerAMU(n int) error {
	if err := checkBins(n); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeBins = n
	return nil
}

// WriteBinsPerAMU returns the on-disk resolution.
func (m *Manager) WriteBinsPerAMU() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeBins
}

// Close stops any open session and waits for the scan loop to exit.
func (m *Manager) Close() error {
	err := m.Stop()
	if errors.Is(err, errcode.ErrNotAcquiring) {
		err = nil
	}
	m.loops.Wait()
	return err
}

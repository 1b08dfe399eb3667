package acquisition

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/spectra/pkg/spectra/archive"
	"github.com/jamesainslie/spectra/pkg/spectra/controller"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/instrument"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

const testMethod = `<Method name="scan" duration="60">
  <ScanMode name="low" startMass="100" endMass="200" polarity="positive"/>
</Method>`

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	ctrl  *controller.Controller
	inst  *instrument.Instrument
	sim   *instrument.Simulator
	clock *fakeClock
	mgr   *Manager
	dir   string

	mu        sync.Mutex
	scans     []ScanEvent
	summaries []Summary
}

func (f *fixture) finished() []Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Summary(nil), f.summaries...)
}

// newFixture returns a manager over a simulated instrument already in
// Operate.
func newFixture(t *testing.T, mutate func(*instrument.Profile), opts Options) *fixture {
	t.Helper()

	profile := instrument.DefaultProfile()
	if mutate != nil {
		mutate(&profile)
	}
	sim, err := instrument.NewSimulator(profile)
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)}
	sim.SetClock(clock.Now)

	inst, err := instrument.Open(sim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close() })

	ctrl := controller.New(controller.Options{Now: clock.Now})
	require.NoError(t, ctrl.StartController(inst))
	ctrl.Poll()
	require.NoError(t, ctrl.PumpDown())
	clock.Advance(3 * time.Second)
	ctrl.Poll()
	require.NoError(t, ctrl.Operate())

	f := &fixture{ctrl: ctrl, inst: inst, sim: sim, clock: clock, dir: t.TempDir()}

	opts.Now = clock.Now
	if opts.AcquisitionBinsPerAMU == 0 {
		opts.AcquisitionBinsPerAMU = 2
	}
	opts.OutputDir = f.dir
	opts.OnScan = func(ev ScanEvent) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.scans = append(f.scans, ev)
	}
	opts.OnFinish = func(s Summary) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.summaries = append(f.summaries, s)
	}
	f.mgr, err = New(ctrl, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.mgr.Close() })
	return f
}

// scan steps the manager n times, one second apart.
func (f *fixture) scan(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.mgr.Step())
		f.clock.Advance(time.Second)
	}
}

func TestScenario_RecordAndStop(t *testing.T) {
	f := newFixture(t, nil, Options{})

	assert.Equal(t, types.AcqReady, f.mgr.State())
	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))
	assert.Equal(t, types.AcqWaiting, f.mgr.State())
	assert.Equal(t, types.ModeAcquiring, f.ctrl.OperationMode())
	assert.NotEmpty(t, f.mgr.SessionID())

	const n = 5
	f.scan(t, n)
	assert.Equal(t, types.AcqUnderway, f.mgr.State())
	last, err := f.mgr.LastScanIndex()
	require.NoError(t, err)
	assert.Equal(t, n-1, last)

	require.NoError(t, f.mgr.Stop())
	assert.Equal(t, types.AcqReady, f.mgr.State())
	assert.Equal(t, types.ModeIdle, f.ctrl.OperationMode())

	ds := f.mgr.Dataset()
	require.NotNil(t, ds)
	assert.True(t, ds.Closed())
	assert.Len(t, ds.RetentionTimes(), n)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, ds.RetentionTimes())
	assert.Equal(t, 201, ds.NumMasses())
	assert.Equal(t, "SIM-0001", ds.InstrumentID())
	assert.Equal(t, testMethod, ds.MethodXML())
	assert.Contains(t, ds.TuneParametersXML(), "DetectorVoltage")
	assert.Contains(t, ds.ExperimentLog(), "finished: stopped, 5 spectra")

	summaries := f.finished()
	require.Len(t, summaries, 1)
	assert.Equal(t, "stopped", summaries[0].Reason)
	assert.NoError(t, summaries[0].Err)
	assert.Equal(t, filepath.Join(f.dir, "run1"+archive.DatasetExt), summaries[0].Path)

	loaded, err := archive.ReadDataset(summaries[0].Path, dataset.Options{})
	require.NoError(t, err)
	assert.Equal(t, n, loaded.NumSpectra())

	f.mu.Lock()
	assert.Len(t, f.scans, n)
	assert.InDelta(t, 195, f.scans[0].BasePeakMass, 0.5)
	f.mu.Unlock()

	assert.ErrorIs(t, f.mgr.Stop(), errcode.ErrNotAcquiring)
	assert.ErrorIs(t, f.mgr.Step(), errcode.ErrNotAcquiring)
}

func TestStart_AlreadyAcquiring(t *testing.T) {
	f := newFixture(t, nil, Options{})
	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))
	f.scan(t, 1)
	id := f.mgr.SessionID()

	err := f.mgr.Start(Request{Method: testMethod, Name: "run2"})
	assert.ErrorIs(t, err, errcode.ErrAlreadyAcquiring)

	require.NoError(t, f.mgr.Pause(false))
	err = f.mgr.Start(Request{Method: testMethod, Name: "run2"})
	assert.ErrorIs(t, err, errcode.ErrAlreadyAcquiring)

	assert.Equal(t, id, f.mgr.SessionID())
	assert.Equal(t, types.AcqPaused, f.mgr.State())
	_, err = os.Stat(filepath.Join(f.dir, "run2"+archive.DatasetExt))
	assert.True(t, os.IsNotExist(err))
}

func TestStart_RequiresOperate(t *testing.T) {
	f := newFixture(t, nil, Options{})
	require.NoError(t, f.ctrl.Standby())

	assert.Equal(t, types.AcqPrevented, f.mgr.State())
	err := f.mgr.Start(Request{Method: testMethod, Name: "run1"})
	assert.ErrorIs(t, err, errcode.ErrInstrumentNotOperating)

	unbound, err := New(controller.New(controller.Options{}), Options{})
	require.NoError(t, err)
	assert.Equal(t, types.AcqPrevented, unbound.State())
	assert.ErrorIs(t, unbound.Start(Request{Method: testMethod, Name: "x"}), errcode.ErrControllerNotStarted)
}

func TestStart_Validation(t *testing.T) {
	f := newFixture(t, nil, Options{MaxPathLength: 200})

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"malformed method", Request{Method: "<Method", Name: "r"}, errcode.ErrParsingFailed},
		{"no scan modes", Request{Method: `<Method duration="5"/>`, Name: "r"}, errcode.ErrParsingFailed},
		{"no duration", Request{Method: `<Method><ScanMode startMass="100" endMass="200"/></Method>`, Name: "r"}, errcode.ErrParsingFailed},
		{"outside mass range", Request{Method: `<Method duration="5"><ScanMode startMass="1" endMass="200"/></Method>`, Name: "r"}, errcode.ErrParameterOutOfRange},
		{"bad polarity", Request{Method: `<Method duration="5"><ScanMode startMass="100" endMass="200" polarity="sideways"/></Method>`, Name: "r"}, errcode.ErrParsingFailed},
		{"empty name", Request{Method: testMethod}, errcode.ErrParameterOutOfRange},
		{"name with separator", Request{Method: testMethod, Name: "a/b"}, errcode.ErrParameterOutOfRange},
		{"path too long", Request{Method: testMethod, Name: strings.Repeat("x", 250)}, errcode.ErrPathTooLong},
		{"bad tune document", Request{Method: testMethod, Name: "r", Tune: "<TuneParameters"}, errcode.ErrParsingFailed},
		{"tune out of range", Request{Method: testMethod, Name: "r", Tune: `<TuneParameters><Parameter name="DetectorVoltage" value="9000"/></TuneParameters>`}, errcode.ErrParameterOutOfRange},
		{"wrong ion source", Request{Method: testMethod, Name: "r", IonSource: `<IonSourceOptimization source="APCI"/>`}, errcode.ErrParsingFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.mgr.Start(tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, types.AcqReady, f.mgr.State())
			assert.Equal(t, types.ModeIdle, f.ctrl.OperationMode())
		})
	}

	v, _ := f.inst.TuneParameter(types.DetectorVoltage)
	assert.Equal(t, 1200.0, v, "rejected tune never reaches the instrument")
}

func TestStart_AppliesTune(t *testing.T) {
	f := newFixture(t, nil, Options{})

	err := f.mgr.Start(Request{
		Method:    testMethod,
		Name:      "run1",
		IonSource: `<IonSourceOptimization source="ESI"><Parameter name="ESIVoltage" value="4000"/></IonSourceOptimization>`,
		Tune:      `<TuneParameters><Parameter name="DetectorVoltage" value="1500"/></TuneParameters>`,
	})
	require.NoError(t, err)

	v, _ := f.inst.TuneParameter(types.DetectorVoltage)
	assert.Equal(t, 1500.0, v)
	v, _ = f.inst.TuneParameter(types.ESIVoltage)
	assert.Equal(t, 4000.0, v)
}

func TestStart_ExistingDatasetRejected(t *testing.T) {
	f := newFixture(t, nil, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "run1"+archive.DatasetExt), nil, 0o644))

	err := f.mgr.Start(Request{Method: testMethod, Name: "run1"})
	assert.ErrorIs(t, err, errcode.ErrCreateDatasetFailed)

	// The folder lock was released.
	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run2"}))
}

func TestStart_FolderLocked(t *testing.T) {
	f := newFixture(t, nil, Options{})

	lock, err := lockFolder(f.dir)
	require.NoError(t, err)

	err = f.mgr.Start(Request{Method: testMethod, Name: "run1"})
	assert.ErrorIs(t, err, errcode.ErrDatasetFolderLocked)

	require.NoError(t, lock.release())
	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))

	_, err = lockFolder(f.dir)
	assert.ErrorIs(t, err, errcode.ErrDatasetFolderLocked, "session holds the lock")

	require.NoError(t, f.mgr.Stop())
	lock, err = lockFolder(f.dir)
	require.NoError(t, err)
	require.NoError(t, lock.release())
}

func TestStartWithSwitching(t *testing.T) {
	f := newFixture(t, nil, Options{})
	req := SwitchingRequest{
		Method: testMethod,
		Tunes: [2]string{
			`<TuneParameters><Parameter name="DetectorVoltage" value="1200"/></TuneParameters>`,
			`<TuneParameters><Parameter name="DetectorVoltage" value="2400"/></TuneParameters>`,
		},
		Name: "switch",
	}
	assert.ErrorIs(t, f.mgr.StartWithSwitching(req), errcode.ErrSwitchingNotAllowed)

	dual := newFixture(t, func(p *instrument.Profile) { p.DualSource = true }, Options{})
	req.Tunes[1] = `<TuneParameters><Parameter name="DetectorVoltage" value="2200"/></TuneParameters>`
	require.NoError(t, dual.mgr.StartWithSwitching(req))
	dual.scan(t, 4)

	ds := dual.mgr.Dataset()
	for i, want := range []int{0, 1, 0, 1} {
		mode, err := ds.ScanModeIndex(i)
		require.NoError(t, err)
		assert.Equal(t, want, mode, "scan %d", i)
	}
	low, _ := ds.TIC(0)
	high, _ := ds.TIC(1)
	assert.Greater(t, high, 1.5*low, "second source runs at higher detector gain")
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, nil, Options{})

	assert.ErrorIs(t, f.mgr.Pause(false), errcode.ErrNotAcquiring)
	assert.ErrorIs(t, f.mgr.Resume(), errcode.ErrNotAcquiring)

	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))
	assert.ErrorIs(t, f.mgr.Pause(false), errcode.ErrNotAcquiring, "waiting for first scan")
	assert.ErrorIs(t, f.mgr.Resume(), errcode.ErrNotPaused)

	f.scan(t, 1)
	require.NoError(t, f.mgr.Pause(false))
	assert.ErrorIs(t, f.mgr.Pause(false), errcode.ErrAlreadyPaused)
	assert.Equal(t, types.AcqPaused, f.mgr.State())

	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.mgr.Step())
	assert.Equal(t, 1, f.mgr.Dataset().NumSpectra(), "no scans while paused")

	require.NoError(t, f.mgr.Resume())
	assert.ErrorIs(t, f.mgr.Resume(), errcode.ErrNotPaused)
	require.NoError(t, f.mgr.Step())

	times := f.mgr.Dataset().RetentionTimes()
	assert.Equal(t, []float64{0, 1}, times, "paused time is excluded")
}

func TestPause_ResumeOnDigitalInput(t *testing.T) {
	f := newFixture(t, nil, Options{})
	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))
	f.scan(t, 1)

	require.NoError(t, f.mgr.Pause(true))
	f.scan(t, 2)
	assert.Equal(t, types.AcqPaused, f.mgr.State())

	f.sim.SetDigitalInput(1, true)
	require.NoError(t, f.mgr.Step())
	assert.Equal(t, types.AcqUnderway, f.mgr.State())
	assert.Equal(t, 2, f.mgr.Dataset().NumSpectra())
}

func TestExtendAndCompletion(t *testing.T) {
	f := newFixture(t, nil, Options{})
	short := `<Method duration="3"><ScanMode startMass="150" endMass="160"/></Method>`
	require.NoError(t, f.mgr.Start(Request{Method: short, Name: "run1"}))

	_, err := f.mgr.Extend(time.Second)
	assert.ErrorIs(t, err, errcode.ErrNotAcquiring, "not underway yet")

	f.scan(t, 1)
	_, err = f.mgr.Extend(0)
	assert.ErrorIs(t, err, errcode.ErrParameterOutOfRange)
	total, err := f.mgr.Extend(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, total)
	d, _ := f.mgr.Duration()
	assert.Equal(t, 5*time.Second, d)

	f.scan(t, 5)
	assert.Equal(t, types.AcqReady, f.mgr.State())
	assert.Equal(t, 5, f.mgr.Dataset().NumSpectra())

	summaries := f.finished()
	require.Len(t, summaries, 1)
	assert.Equal(t, "completed", summaries[0].Reason)
	assert.Equal(t, 5, summaries[0].NumSpectra)
}

func TestExtend_SegmentsNotAllowed(t *testing.T) {
	f := newFixture(t, nil, Options{})
	segmented := `<Method><ScanMode startMass="150" endMass="160"/><Segment time="2"/><Segment time="3"/></Method>`
	require.NoError(t, f.mgr.Start(Request{Method: segmented, Name: "run1"}))
	f.scan(t, 1)

	_, err := f.mgr.Extend(time.Second)
	assert.ErrorIs(t, err, errcode.ErrSegmentsNotAllowed)

	d, _ := f.mgr.Duration()
	assert.Equal(t, 5*time.Second, d)
	assert.Equal(t, 2, f.mgr.Dataset().NumSegments())
}

func TestTelemetry(t *testing.T) {
	f := newFixture(t, nil, Options{})
	f.sim.SetAnalogInput(0, 2.5)

	_, err := f.mgr.LastTIC()
	assert.ErrorIs(t, err, errcode.ErrNoSpectra)

	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))
	checks := []func() error{
		func() error { _, err := f.mgr.LastScanIndex(); return err },
		func() error { _, err := f.mgr.LastTIC(); return err },
		func() error { _, err := f.mgr.LastDeltaIC(); return err },
		func() error { _, err := f.mgr.LastXIC(150, 160); return err },
		func() error { _, err := f.mgr.LastDeltaXIC(150, 160); return err },
		func() error { _, err := f.mgr.LastAnalogOutput(); return err },
		func() error { _, err := f.mgr.LastSpectrumMasses(); return err },
		func() error { _, err := f.mgr.LastSpectrumIntensities(); return err },
		func() error { _, err := f.mgr.LastDeltaSpectrumIntensities(); return err },
	}
	for i, check := range checks {
		assert.ErrorIs(t, check(), errcode.ErrNoSpectra, "read %d before first scan", i)
	}

	f.scan(t, 3)
	for i, check := range checks {
		assert.NoError(t, check(), "read %d", i)
	}

	intensities, _ := f.mgr.LastSpectrumIntensities()
	masses, _ := f.mgr.LastSpectrumMasses()
	require.Len(t, intensities, len(masses))
	var sum float64
	for _, v := range intensities {
		sum += v
	}
	tic, _ := f.mgr.LastTIC()
	assert.InDelta(t, sum, tic, 1e-6)

	dic, _ := f.mgr.LastDeltaIC()
	assert.InDelta(t, tic, dic, 1e-6, "no background set")

	xic, _ := f.mgr.LastXIC(194.5, 195.5)
	assert.Greater(t, xic, 9e5)
	_, err = f.mgr.LastXIC(500, 600)
	assert.ErrorIs(t, err, errcode.ErrParameterOutOfRange)

	analog, _ := f.mgr.LastAnalogOutput()
	assert.Equal(t, 2.5, analog)

	require.NoError(t, f.mgr.SetDeltaBackgroundParameters(dataset.BackgroundParameters{StartTime: 0, EndTime: 2}))
	ddic, _ := f.mgr.LastDeltaIC()
	assert.Less(t, ddic, tic)
}

func TestInstrumentLeavingOperateEndsSession(t *testing.T) {
	f := newFixture(t, nil, Options{})
	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))
	f.scan(t, 2)

	assert.ErrorIs(t, f.ctrl.StopController(), errcode.ErrInstrumentIsOperating)

	require.NoError(t, f.ctrl.Standby())
	assert.Equal(t, types.AcqPrevented, f.mgr.State())

	summaries := f.finished()
	require.Len(t, summaries, 1)
	assert.Equal(t, "instrument left operate", summaries[0].Reason)
	assert.FileExists(t, summaries[0].Path)
	assert.NoError(t, f.ctrl.StopController())
}

func TestSidecars(t *testing.T) {
	f := newFixture(t, nil, Options{})

	_, err := f.mgr.CreateScalarChannel("pirani")
	assert.ErrorIs(t, err, errcode.ErrNotAcquiring)
	_, err = f.mgr.CreateAuxiliaryFile("notes", "text/plain")
	assert.ErrorIs(t, err, errcode.ErrNotAcquiring)

	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))
	ch, err := f.mgr.CreateScalarChannel("pirani")
	require.NoError(t, err)
	require.NoError(t, f.mgr.SetScalarChannelAttribute(ch, "unit_mbar", 1))
	require.NoError(t, f.mgr.WriteScalarEntry(ch, 0, 0.01))
	require.NoError(t, f.mgr.WriteScalarEntries(ch, []float64{1, 2}, []float64{0.02, 0.03}))
	assert.ErrorIs(t, f.mgr.WriteScalarEntry(ch+1, 0, 0), errcode.ErrChannelNotDefined)

	aux, err := f.mgr.CreateAuxiliaryFile("notes", "text/plain")
	require.NoError(t, err)
	require.NoError(t, f.mgr.WriteTextToFile(aux, "hello"))
	assert.ErrorIs(t, f.mgr.WriteTextToFile(aux+1, "x"), errcode.ErrAuxFileNotDefined)

	f.scan(t, 1)
	require.NoError(t, f.mgr.Stop())

	loaded, err := archive.ReadDataset(filepath.Join(f.dir, "run1"+archive.DatasetExt), dataset.Options{})
	require.NoError(t, err)
	n, _ := loaded.ScalarChannelNumSamples(0)
	assert.Equal(t, 3, n)
	text, _ := loaded.AuxFileText(0)
	assert.Equal(t, "hello", text)
}

func TestBinsPerAMU(t *testing.T) {
	_, err := New(controller.New(controller.Options{}), Options{AcquisitionBinsPerAMU: 101})
	assert.ErrorIs(t, err, errcode.ErrParameterOutOfRange)

	f := newFixture(t, nil, Options{})
	for _, bad := range []int{0, -1, 101} {
		assert.ErrorIs(t, f.mgr.SetAcquisitionBinsPerAMU(bad), errcode.ErrParameterOutOfRange)
		assert.ErrorIs(t, f.mgr.SetWriteBinsPerAMU(bad), errcode.ErrParameterOutOfRange)
	}
	require.NoError(t, f.mgr.SetAcquisitionBinsPerAMU(4))
	require.NoError(t, f.mgr.SetWriteBinsPerAMU(1))
	assert.Equal(t, 4, f.mgr.AcquisitionBinsPerAMU())
	assert.Equal(t, 1, f.mgr.WriteBinsPerAMU())

	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run1"}))
	f.scan(t, 2)
	assert.Equal(t, 401, f.mgr.Dataset().NumMasses())
	liveTIC, _ := f.mgr.Dataset().TIC(1)
	require.NoError(t, f.mgr.Stop())

	written, err := archive.ReadDataset(filepath.Join(f.dir, "run1"+archive.DatasetExt), dataset.Options{})
	require.NoError(t, err)
	assert.Equal(t, 101, written.NumMasses())
	writtenTIC, _ := written.TIC(1)
	assert.InDelta(t, liveTIC, writtenTIC, 1e-6*liveTIC)

	// Changing the acquisition resolution mid-session applies to the next
	// session only; the open one is still rebinned for writing.
	require.NoError(t, f.mgr.Start(Request{Method: testMethod, Name: "run2"}))
	f.scan(t, 2)
	require.NoError(t, f.mgr.SetAcquisitionBinsPerAMU(1))
	assert.Equal(t, 401, f.mgr.Dataset().NumMasses())
	require.NoError(t, f.mgr.Stop())

	written, err = archive.ReadDataset(filepath.Join(f.dir, "run2"+archive.DatasetExt), dataset.Options{})
	require.NoError(t, err)
	assert.Equal(t, 101, written.NumMasses())
}

func TestScanLoop(t *testing.T) {
	profile := instrument.DefaultProfile()
	profile.PumpDownTime = 0
	sim, err := instrument.NewSimulator(profile)
	require.NoError(t, err)
	inst, err := instrument.Open(sim)
	require.NoError(t, err)
	defer inst.Close()

	ctrl := controller.New(controller.Options{})
	require.NoError(t, ctrl.StartController(inst))
	ctrl.Poll()
	require.NoError(t, ctrl.PumpDown())
	ctrl.Poll()
	require.NoError(t, ctrl.Operate())

	var mu sync.Mutex
	var done *Summary
	mgr, err := New(ctrl, Options{
		ScanInterval:          5 * time.Millisecond,
		AcquisitionBinsPerAMU: 1,
		OutputDir:             t.TempDir(),
		OnFinish: func(s Summary) {
			mu.Lock()
			defer mu.Unlock()
			done = &s
		},
	})
	require.NoError(t, err)
	defer mgr.Close()

	method := `<Method duration="0.2"><ScanMode startMass="100" endMass="200"/></Method>`
	require.NoError(t, mgr.Start(Request{Method: method, Name: "loop"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done != nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, types.AcqReady, mgr.State())
	assert.Equal(t, "completed", done.Reason)
	assert.Greater(t, done.NumSpectra, 0)
	assert.FileExists(t, done.Path)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(`<Method name="two" duration="30">
  <ScanMode startMass="100" endMass="101"/>
  <ScanMode startMass="100.5" endMass="102" polarity="negative"/>
</Method>`)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, m.TotalDuration())
	assert.Empty(t, m.SegmentTimes())

	masses, cover := m.massAxis(2)
	assert.Equal(t, []float64{100, 100.5, 101, 101.5, 102}, masses)
	assert.Equal(t, []int{0, 1, 2}, cover[0])
	assert.Equal(t, []int{1, 2, 3, 4}, cover[1])

	p, err := m.ScanModes[1].polarity()
	require.NoError(t, err)
	assert.Equal(t, instrument.Negative, p)
}

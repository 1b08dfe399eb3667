package daemon_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/daemon"
	"github.com/jamesainslie/spectra/pkg/spectra/acquisition"
	"github.com/jamesainslie/spectra/pkg/spectra/controller"
	"github.com/jamesainslie/spectra/pkg/spectra/instrument"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

const testMethod = `<Method name="scan" duration="600">
  <ScanMode name="low" startMass="100" endMass="120" polarity="positive"/>
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

type harness struct {
	srv    *daemon.Server
	sim    *instrument.Simulator
	clock  *fakeClock
	conn   *grpc.ClientConn
	client *spectrav1.ControlClient
	socket string
	out    string
}

// shortDir keeps unix socket paths under the platform limit.
func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "spx")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func startDaemon(t *testing.T) *harness {
	t.Helper()
	dir := shortDir(t)

	sim, err := instrument.NewSimulator(instrument.DefaultProfile())
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)}
	sim.SetClock(clock.Now)
	inst, err := instrument.Open(sim)
	require.NoError(t, err)

	h := &harness{sim: sim, clock: clock, socket: filepath.Join(dir, "d.sock"), out: filepath.Join(dir, "runs")}
	h.srv, err = daemon.NewServer(daemon.Config{
		SocketPath: h.socket,
		DataDir:    dir,
		Instrument: inst,
		Controller: controller.Options{Now: clock.Now},
		Acquisition: acquisition.Options{
			OutputDir:             h.out,
			AcquisitionBinsPerAMU: 1,
			WriteBinsPerAMU:       1,
			Now:                   clock.Now,
		},
	})
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- h.srv.Serve() }()
	t.Cleanup(func() {
		assert.NoError(t, h.srv.Close())
		assert.NoError(t, <-served)
	})

	h.conn, err = grpc.NewClient("unix://"+h.socket, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.conn.Close() })
	h.client = spectrav1.NewControlClient(h.conn)
	return h
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func (h *harness) call(t *testing.T, method string, req, resp any) error {
	t.Helper()
	in, err := spectrav1.Encode(req)
	require.NoError(t, err)
	out, err := h.client.Call(testCtx(t), method, in)
	if err != nil {
		return err
	}
	if resp != nil {
		require.NoError(t, spectrav1.Decode(out, resp))
	}
	return nil
}

// scan steps the open session n times, one second apart.
func (h *harness) scan(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.srv.Manager().Step())
		h.clock.Advance(time.Second)
	}
}

// toOperate drives the simulator from Initializing to Operate.
func (h *harness) toOperate(t *testing.T) {
	t.Helper()
	ctrl := h.srv.Controller()
	ctrl.Poll()
	require.Equal(t, types.StateVented, ctrl.State())
	require.NoError(t, h.call(t, spectrav1.MethodPumpDown, nil, nil))
	h.clock.Advance(3 * time.Second)
	ctrl.Poll()
	require.Equal(t, types.StateStandby, ctrl.State())
	require.NoError(t, h.call(t, spectrav1.MethodOperate, nil, nil))
	require.Equal(t, types.StateOperate, ctrl.State())
}

func TestNewServer(t *testing.T) {
	h := startDaemon(t)
	assert.FileExists(t, h.socket)
	assert.Equal(t, types.StateInitializing, h.srv.Controller().State())
}

func TestServerHealth(t *testing.T) {
	h := startDaemon(t)
	health := healthpb.NewHealthClient(h.conn)

	resp, err := health.Check(testCtx(t), &healthpb.HealthCheckRequest{Service: spectrav1.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	h.srv.Controller().Poll()
	h.sim.SetCommunication(false)
	h.srv.Controller().Poll()
	require.Equal(t, types.StateFault, h.srv.Controller().State())

	resp, err = health.Check(testCtx(t), &healthpb.HealthCheckRequest{Service: spectrav1.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestServerShutdownRequest(t *testing.T) {
	h := startDaemon(t)
	require.NoError(t, h.call(t, spectrav1.MethodShutdown, nil, nil))

	select {
	case <-h.srv.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown request did not close Done")
	}
}

func TestServerCloseRemovesSocket(t *testing.T) {
	dir := shortDir(t)
	socket := filepath.Join(dir, "c.sock")
	srv, err := daemon.NewServer(daemon.Config{SocketPath: socket, DataDir: dir})
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	assert.NoFileExists(t, socket)
}

package daemon_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/spectra/archive"
	"github.com/jamesainslie/spectra/pkg/spectra/dataset"
	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
	"github.com/jamesainslie/spectra/pkg/spectra/types"
)

func TestService_GetStatus(t *testing.T) {
	h := startDaemon(t)

	var st spectrav1.Status
	require.NoError(t, h.call(t, spectrav1.MethodGetStatus, nil, &st))
	assert.Equal(t, "Initializing", st.State)
	assert.Equal(t, "SIM-0001", st.SerialNumber)
	assert.NotEmpty(t, st.SoftwareVersion)
	assert.Equal(t, "Prevented", st.Acquisition.State)
	assert.Equal(t, 1, st.Acquisition.BinsPerAMU)
	assert.Zero(t, st.Datasets)

	h.srv.Controller().Poll()
	require.NoError(t, h.call(t, spectrav1.MethodGetStatus, nil, &st))
	assert.Equal(t, "Vented", st.State)
}

func TestService_CommandsReturnStatus(t *testing.T) {
	h := startDaemon(t)
	h.srv.Controller().Poll()

	var st spectrav1.Status
	require.NoError(t, h.call(t, spectrav1.MethodPumpDown, nil, &st))
	assert.Equal(t, "PumpingDown", st.State)
	assert.Greater(t, st.PumpDownRemaining, 0.0)

	h.clock.Advance(3 * time.Second)
	h.srv.Controller().Poll()

	require.NoError(t, h.call(t, spectrav1.MethodOperate, nil, &st))
	assert.Equal(t, "Operate", st.State)
	require.NoError(t, h.call(t, spectrav1.MethodStandby, nil, &st))
	assert.Equal(t, "Standby", st.State)
	require.NoError(t, h.call(t, spectrav1.MethodVent, nil, &st))
	assert.Equal(t, "Vented", st.State)
}

func TestService_ErrorCodesCrossTheWire(t *testing.T) {
	h := startDaemon(t)
	h.srv.Controller().Poll()

	err := h.call(t, spectrav1.MethodOperate, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrOperatingNotAllowed)
	var rpcErr *spectrav1.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, codes.FailedPrecondition, rpcErr.Code)

	err = h.call(t, spectrav1.MethodStopAcquisition, nil, nil)
	assert.ErrorIs(t, err, errcode.ErrNotAcquiring)

	h.toOperate(t)
	err = h.call(t, spectrav1.MethodStartAcquisition, spectrav1.StartAcquisitionRequest{Method: "<Method"}, nil)
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, codes.InvalidArgument, rpcErr.Code)
	assert.ErrorIs(t, err, errcode.ErrParsingFailed)
}

func TestService_AcquisitionLifecycle(t *testing.T) {
	h := startDaemon(t)
	h.toOperate(t)

	var started spectrav1.StartAcquisitionResponse
	require.NoError(t, h.call(t, spectrav1.MethodStartAcquisition,
		spectrav1.StartAcquisitionRequest{Method: testMethod, Name: "run1"}, &started))
	require.NotEmpty(t, started.SessionID)
	assert.Equal(t, types.ModeAcquiring, h.srv.Controller().OperationMode())

	h.scan(t, 3)

	var st spectrav1.Status
	require.NoError(t, h.call(t, spectrav1.MethodGetStatus, nil, &st))
	assert.Equal(t, "Underway", st.Acquisition.State)
	assert.Equal(t, started.SessionID, st.Acquisition.SessionID)
	assert.Equal(t, 2, st.Acquisition.LastScanIndex)
	assert.InDelta(t, 600, st.Acquisition.DurationSeconds, 1e-9)

	var ext spectrav1.ExtendAcquisitionResponse
	require.NoError(t, h.call(t, spectrav1.MethodExtendAcquisition,
		spectrav1.ExtendAcquisitionRequest{Seconds: 60}, &ext))
	assert.InDelta(t, 660, ext.TotalSeconds, 1e-9)

	require.NoError(t, h.call(t, spectrav1.MethodPauseAcquisition, spectrav1.PauseAcquisitionRequest{}, nil))
	require.NoError(t, h.call(t, spectrav1.MethodGetStatus, nil, &st))
	assert.Equal(t, "Paused", st.Acquisition.State)
	require.NoError(t, h.call(t, spectrav1.MethodResumeAcquisition, nil, nil))

	h.scan(t, 2)
	require.NoError(t, h.call(t, spectrav1.MethodStopAcquisition, nil, nil))
	assert.Equal(t, types.ModeIdle, h.srv.Controller().OperationMode())

	path := filepath.Join(h.out, "run1"+archive.DatasetExt)
	assert.FileExists(t, path)
	ds, err := archive.ReadDataset(path, dataset.Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, ds.NumSpectra())

	var list spectrav1.ListDatasetsResponse
	require.NoError(t, h.call(t, spectrav1.MethodListDatasets, nil, &list))
	require.Len(t, list.Datasets, 1)
	got := list.Datasets[0]
	assert.Equal(t, started.SessionID, got.SessionID)
	assert.Equal(t, "run1", got.Name)
	assert.Equal(t, path, got.Path)
	assert.Equal(t, 5, got.NumSpectra)
	assert.Equal(t, "stopped", got.Reason)
	assert.Equal(t, "SIM-0001", got.InstrumentID)

	require.NoError(t, h.call(t, spectrav1.MethodGetStatus, nil, &st))
	assert.Equal(t, 1, st.Datasets)
}

func TestService_RecentLog(t *testing.T) {
	h := startDaemon(t)

	var resp spectrav1.RecentLogResponse
	require.NoError(t, h.call(t, spectrav1.MethodRecentLog, spectrav1.RecentLogRequest{Count: 5}, &resp))
	assert.LessOrEqual(t, len(resp.Entries), 5)
}

func TestService_WatchEvents(t *testing.T) {
	h := startDaemon(t)

	in, err := spectrav1.Encode(spectrav1.WatchEventsRequest{})
	require.NoError(t, err)
	stream, err := h.client.WatchEvents(testCtx(t), in)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var st spectrav1.Status
		return h.call(t, spectrav1.MethodGetStatus, nil, &st) == nil && st.Subscribers == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.toOperate(t)
	require.NoError(t, h.call(t, spectrav1.MethodStartAcquisition,
		spectrav1.StartAcquisitionRequest{Method: testMethod, Name: "watched"}, nil))
	h.scan(t, 1)
	require.NoError(t, h.call(t, spectrav1.MethodStopAcquisition, nil, nil))

	var states []string
	var sawScan bool
	for {
		msg, err := stream.Recv()
		require.NoError(t, err)
		var ev spectrav1.Event
		require.NoError(t, spectrav1.Decode(msg, &ev))
		switch ev.Type {
		case "state":
			states = append(states, ev.To)
		case "scan":
			sawScan = true
			assert.Zero(t, ev.Index)
			assert.Greater(t, ev.TIC, 0.0)
		case "finished":
			assert.True(t, sawScan, "scan precedes finish")
			assert.Equal(t, 1, ev.NumSpectra)
			assert.Equal(t, []string{"Vented", "PumpingDown", "Standby", "Operate"}, states)
			return
		}
	}
}

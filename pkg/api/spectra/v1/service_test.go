package spectrav1_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	spectrav1 "github.com/jamesainslie/spectra/pkg/api/spectra/v1"
	"github.com/jamesainslie/spectra/pkg/spectra/errcode"
)

type fakeServer struct {
	spectrav1.UnimplementedControlServer
}

func (fakeServer) GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return spectrav1.Encode(spectrav1.Status{State: "Operate", Preventers: []string{"VacuumTooLow"}})
}

func (fakeServer) StartAcquisition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req spectrav1.StartAcquisitionRequest
	if err := spectrav1.Decode(in, &req); err != nil {
		return nil, spectrav1.EncodeError(ctx, err)
	}
	if req.Name == "busy" {
		return nil, spectrav1.EncodeError(ctx, fmt.Errorf("%w: session x", errcode.ErrAlreadyAcquiring))
	}
	if req.Name == "" {
		return nil, spectrav1.EncodeError(ctx, errcode.ErrParameterOutOfRange)
	}
	return spectrav1.Encode(spectrav1.StartAcquisitionResponse{SessionID: "id-" + req.Name})
}

func (fakeServer) Shutdown(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return nil, spectrav1.EncodeError(ctx, errors.New("plain failure"))
}

func (fakeServer) WatchEvents(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	var req spectrav1.WatchEventsRequest
	if err := spectrav1.Decode(in, &req); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		msg, err := spectrav1.Encode(spectrav1.Event{Type: "scan", SessionID: req.SessionID, Index: i})
		if err != nil {
			return err
		}
		if err := stream.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func dial(t *testing.T) *spectrav1.ControlClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	spectrav1.RegisterControlServer(srv, fakeServer{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return spectrav1.NewControlClient(conn)
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestCall(t *testing.T) {
	c := dial(t)

	out, err := c.Call(ctx(t), spectrav1.MethodGetStatus, nil)
	require.NoError(t, err)
	var st spectrav1.Status
	require.NoError(t, spectrav1.Decode(out, &st))
	assert.Equal(t, "Operate", st.State)
	assert.Equal(t, []string{"VacuumTooLow"}, st.Preventers)

	in, err := spectrav1.Encode(spectrav1.StartAcquisitionRequest{Name: "run1", Method: "<Method/>"})
	require.NoError(t, err)
	out, err = c.Call(ctx(t), spectrav1.MethodStartAcquisition, in)
	require.NoError(t, err)
	var resp spectrav1.StartAcquisitionResponse
	require.NoError(t, spectrav1.Decode(out, &resp))
	assert.Equal(t, "id-run1", resp.SessionID)
}

func TestCall_ErrorCodesCrossTheWire(t *testing.T) {
	c := dial(t)

	in, err := spectrav1.Encode(spectrav1.StartAcquisitionRequest{Name: "busy"})
	require.NoError(t, err)
	_, err = c.Call(ctx(t), spectrav1.MethodStartAcquisition, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, errcode.ErrAlreadyAcquiring)
	var rpcErr *spectrav1.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, codes.FailedPrecondition, rpcErr.Code)
	assert.Contains(t, rpcErr.Error(), "session x")

	_, err = c.Call(ctx(t), spectrav1.MethodStartAcquisition, nil)
	assert.ErrorIs(t, err, errcode.ErrParameterOutOfRange)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, codes.InvalidArgument, rpcErr.Code)

	_, err = c.Call(ctx(t), spectrav1.MethodShutdown, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, codes.Internal, rpcErr.Code)
	assert.Nil(t, errors.Unwrap(err))

	_, err = c.Call(ctx(t), spectrav1.MethodVent, nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, codes.Unimplemented, rpcErr.Code)
}

func TestWatchEvents(t *testing.T) {
	c := dial(t)

	in, err := spectrav1.Encode(spectrav1.WatchEventsRequest{SessionID: "s1"})
	require.NoError(t, err)
	stream, err := c.WatchEvents(ctx(t), in)
	require.NoError(t, err)

	var got []int
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		var ev spectrav1.Event
		require.NoError(t, spectrav1.Decode(msg, &ev))
		assert.Equal(t, "s1", ev.SessionID)
		got = append(got, ev.Index)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestEncodeDecode(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := spectrav1.ListDatasetsResponse{Datasets: []spectrav1.Dataset{
		{SessionID: "a", Name: "run1", NumSpectra: 42, FinishedAt: when},
	}}
	msg, err := spectrav1.Encode(in)
	require.NoError(t, err)

	var out spectrav1.ListDatasetsResponse
	require.NoError(t, spectrav1.Decode(msg, &out))
	assert.Equal(t, in, out)

	empty, err := spectrav1.Encode(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.GetFields())
	assert.NoError(t, spectrav1.Decode(nil, &out))
}

// Package spectrav1 declares the spectrad control service.
//
// Messages travel as google.protobuf.Struct values; Encode and Decode map
// them to the typed request and response structs of this package.
package spectrav1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "spectra.v1.Control"

// Method names.
const (
	MethodGetStatus         = "GetStatus"
	MethodPumpDown          = "PumpDown"
	MethodOperate           = "Operate"
	MethodStandby           = "Standby"
	MethodVent              = "Vent"
	MethodStartAcquisition  = "StartAcquisition"
	MethodStopAcquisition   = "StopAcquisition"
	MethodPauseAcquisition  = "PauseAcquisition"
	MethodResumeAcquisition = "ResumeAcquisition"
	MethodExtendAcquisition = "ExtendAcquisition"
	MethodListDatasets      = "ListDatasets"
	MethodRecentLog         = "RecentLog"
	MethodShutdown          = "Shutdown"
	MethodWatchEvents       = "WatchEvents"
)

// FullMethod returns the /service/method path of name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// ControlServer is implemented by the daemon.
type ControlServer interface {
	GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PumpDown(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Operate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Standby(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Vent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PauseAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResumeAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExtendAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDatasets(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RecentLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Shutdown(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchEvents(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedControlServer returns codes.Unimplemented from every method.
// Embed it to satisfy ControlServer partially.
type UnimplementedControlServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedControlServer) GetStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodGetStatus)
}
func (UnimplementedControlServer) PumpDown(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodPumpDown)
}
func (UnimplementedControlServer) Operate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodOperate)
}
func (UnimplementedControlServer) Standby(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodStandby)
}
func (UnimplementedControlServer) Vent(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodVent)
}
func (UnimplementedControlServer) StartAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodStartAcquisition)
}
func (UnimplementedControlServer) StopAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodStopAcquisition)
}
func (UnimplementedControlServer) PauseAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodPauseAcquisition)
}
func (UnimplementedControlServer) ResumeAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodResumeAcquisition)
}
func (UnimplementedControlServer) ExtendAcquisition(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodExtendAcquisition)
}
func (UnimplementedControlServer) ListDatasets(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodListDatasets)
}
func (UnimplementedControlServer) RecentLog(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodRecentLog)
}
func (UnimplementedControlServer) Shutdown(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, unimplemented(MethodShutdown)
}
func (UnimplementedControlServer) WatchEvents(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return unimplemented(MethodWatchEvents)
}

type unaryCall func(ControlServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServer).WatchEvents(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ControlServiceDesc is the grpc.ServiceDesc for the control service.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetStatus, ControlServer.GetStatus),
		unary(MethodPumpDown, ControlServer.PumpDown),
		unary(MethodOperate, ControlServer.Operate),
		unary(MethodStandby, ControlServer.Standby),
		unary(MethodVent, ControlServer.Vent),
		unary(MethodStartAcquisition, ControlServer.StartAcquisition),
		unary(MethodStopAcquisition, ControlServer.StopAcquisition),
		unary(MethodPauseAcquisition, ControlServer.PauseAcquisition),
		unary(MethodResumeAcquisition, ControlServer.ResumeAcquisition),
		unary(MethodExtendAcquisition, ControlServer.ExtendAcquisition),
		unary(MethodListDatasets, ControlServer.ListDatasets),
		unary(MethodRecentLog, ControlServer.RecentLog),
		unary(MethodShutdown, ControlServer.Shutdown),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatchEvents,
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "spectra/v1/control",
}

// RegisterControlServer registers srv with s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

// ControlClient invokes the control service over conn.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

// NewControlClient returns a client for the service behind cc.
func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

// Call invokes a unary method. Errors carrying a spectra error code in the
// trailer are rebuilt with DecodeError.
func (c *ControlClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	var trailer metadata.MD
	opts = append(opts, grpc.Trailer(&trailer))
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, DecodeError(err, trailer)
	}
	return out, nil
}

// WatchEvents opens the event stream.
func (c *ControlClient) WatchEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	stream, err := c.cc.NewStream(ctx, &ControlServiceDesc.Streams[0], FullMethod(MethodWatchEvents), opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

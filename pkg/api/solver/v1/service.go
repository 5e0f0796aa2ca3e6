package solverv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "resweep.solver.v1.SolverService"

// Method names.
const (
	MethodCreateConfiguration  = "CreateConfiguration"
	MethodRun                  = "Run"
	MethodListResultQuantities = "ListResultQuantities"
	MethodQuantityValue        = "QuantityValue"
	MethodRelease              = "Release"
	MethodStatus               = "Status"
	MethodShutdown             = "Shutdown"
	MethodClear                = "Clear"
)

// FullMethod returns "/resweep.solver.v1.SolverService/<method>".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// SolverServiceServer is implemented by resweepd.
type SolverServiceServer interface {
	CreateConfiguration(context.Context, *CreateConfigurationRequest) (*CreateConfigurationResponse, error)
	Run(context.Context, *RunRequest) (*RunResponse, error)
	ListResultQuantities(context.Context, *ListResultQuantitiesRequest) (*ListResultQuantitiesResponse, error)
	QuantityValue(context.Context, *QuantityValueRequest) (*QuantityValueResponse, error)
	Release(context.Context, *ReleaseRequest) (*ReleaseResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
	Clear(context.Context, *ClearRequest) (*ClearResponse, error)
}

// UnimplementedSolverServiceServer answers every method with Unimplemented.
// Embed it to stay forward compatible.
type UnimplementedSolverServiceServer struct{}

func (UnimplementedSolverServiceServer) CreateConfiguration(context.Context, *CreateConfigurationRequest) (*CreateConfigurationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateConfiguration not implemented")
}

func (UnimplementedSolverServiceServer) Run(context.Context, *RunRequest) (*RunResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Run not implemented")
}

func (UnimplementedSolverServiceServer) ListResultQuantities(context.Context, *ListResultQuantitiesRequest) (*ListResultQuantitiesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListResultQuantities not implemented")
}

func (UnimplementedSolverServiceServer) QuantityValue(context.Context, *QuantityValueRequest) (*QuantityValueResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method QuantityValue not implemented")
}

func (UnimplementedSolverServiceServer) Release(context.Context, *ReleaseRequest) (*ReleaseResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Release not implemented")
}

func (UnimplementedSolverServiceServer) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Status not implemented")
}

func (UnimplementedSolverServiceServer) Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Shutdown not implemented")
}

func (UnimplementedSolverServiceServer) Clear(context.Context, *ClearRequest) (*ClearResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Clear not implemented")
}

// unary adapts a typed server method to a grpc.MethodDesc. The request is
// decoded from a Struct before the interceptor chain's final handler runs,
// and the response is encoded back.
func unary[Req, Resp any](method string, call func(SolverServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				typed := new(Req)
				if err := Decode(req.(*structpb.Struct), typed); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				resp, err := call(srv.(SolverServiceServer), ctx, typed)
				if err != nil {
					return nil, err
				}
				out, err := Encode(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, err.Error())
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// SolverService_ServiceDesc describes the service for grpc.Server.
var SolverService_ServiceDesc = grpc.ServiceDesc{ //nolint:revive // mirrors generated naming
	ServiceName: ServiceName,
	HandlerType: (*SolverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateConfiguration, SolverServiceServer.CreateConfiguration),
		unary(MethodRun, SolverServiceServer.Run),
		unary(MethodListResultQuantities, SolverServiceServer.ListResultQuantities),
		unary(MethodQuantityValue, SolverServiceServer.QuantityValue),
		unary(MethodRelease, SolverServiceServer.Release),
		unary(MethodStatus, SolverServiceServer.Status),
		unary(MethodShutdown, SolverServiceServer.Shutdown),
		unary(MethodClear, SolverServiceServer.Clear),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "resweep/solver/v1/solver.proto",
}

// RegisterSolverServiceServer registers srv with s.
func RegisterSolverServiceServer(s grpc.ServiceRegistrar, srv SolverServiceServer) {
	s.RegisterService(&SolverService_ServiceDesc, srv)
}

// SolverServiceClient is the client side of the service.
type SolverServiceClient interface {
	CreateConfiguration(ctx context.Context, in *CreateConfigurationRequest, opts ...grpc.CallOption) (*CreateConfigurationResponse, error)
	Run(ctx context.Context, in *RunRequest, opts ...grpc.CallOption) (*RunResponse, error)
	ListResultQuantities(ctx context.Context, in *ListResultQuantitiesRequest, opts ...grpc.CallOption) (*ListResultQuantitiesResponse, error)
	QuantityValue(ctx context.Context, in *QuantityValueRequest, opts ...grpc.CallOption) (*QuantityValueResponse, error)
	Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*ReleaseResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
	Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error)
	Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error)
}

type solverServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSolverServiceClient returns a client bound to cc.
func NewSolverServiceClient(cc grpc.ClientConnInterface) SolverServiceClient {
	return &solverServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	req, err := Encode(in)
	if err != nil {
		return nil, err
	}
	reply := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), req, reply, opts...); err != nil {
		return nil, err
	}
	out := new(Resp)
	if err := Decode(reply, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *solverServiceClient) CreateConfiguration(ctx context.Context, in *CreateConfigurationRequest, opts ...grpc.CallOption) (*CreateConfigurationResponse, error) {
	return invoke[CreateConfigurationResponse](ctx, c.cc, MethodCreateConfiguration, in, opts)
}

func (c *solverServiceClient) Run(ctx context.Context, in *RunRequest, opts ...grpc.CallOption) (*RunResponse, error) {
	return invoke[RunResponse](ctx, c.cc, MethodRun, in, opts)
}

func (c *solverServiceClient) ListResultQuantities(ctx context.Context, in *ListResultQuantitiesRequest, opts ...grpc.CallOption) (*ListResultQuantitiesResponse, error) {
	return invoke[ListResultQuantitiesResponse](ctx, c.cc, MethodListResultQuantities, in, opts)
}

func (c *solverServiceClient) QuantityValue(ctx context.Context, in *QuantityValueRequest, opts ...grpc.CallOption) (*QuantityValueResponse, error) {
	return invoke[QuantityValueResponse](ctx, c.cc, MethodQuantityValue, in, opts)
}

func (c *solverServiceClient) Release(ctx context.Context, in *ReleaseRequest, opts ...grpc.CallOption) (*ReleaseResponse, error) {
	return invoke[ReleaseResponse](ctx, c.cc, MethodRelease, in, opts)
}

func (c *solverServiceClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, MethodStatus, in, opts)
}

func (c *solverServiceClient) Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	return invoke[ShutdownResponse](ctx, c.cc, MethodShutdown, in, opts)
}

func (c *solverServiceClient) Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error) {
	return invoke[ClearResponse](ctx, c.cc, MethodClear, in, opts)
}

package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "youthwell.guard.v1.GuardService"

const (
	SanitizeMethod   = "/" + ServiceName + "/Sanitize"
	AssessRiskMethod = "/" + ServiceName + "/AssessRisk"
)

// GuardServiceServer is the gRPC surface of the guard. Requests and
// responses are google.protobuf.Struct values shaped like the HTTP JSON
// bodies, so no generated code is needed.
type GuardServiceServer interface {
	Sanitize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssessRisk(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Register adds the guard service to s.
func Register(s grpc.ServiceRegistrar, srv GuardServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GuardServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sanitize", Handler: unaryHandler(SanitizeMethod, GuardServiceServer.Sanitize)},
		{MethodName: "AssessRisk", Handler: unaryHandler(AssessRiskMethod, GuardServiceServer.AssessRisk)},
	},
	Streams: []grpc.StreamDesc{},
}

type structMethod func(GuardServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(GuardServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(GuardServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

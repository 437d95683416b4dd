package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "portunus.controller.v1.Commands"

const executeMethod = "/" + ServiceName + "/Execute"

// CommandsServer is the server side of portunus.controller.v1.Commands.
// Requests and responses are google.protobuf.Struct values carrying the
// same fields as the JSON command API.
type CommandsServer interface {
	Execute(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterCommandsServer attaches srv to s.
func RegisterCommandsServer(s grpc.ServiceRegistrar, srv CommandsServer) {
	s.RegisterService(&commandsServiceDesc, srv)
}

var commandsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "portunus/controller/v1/commands.proto",
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandsServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: executeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandsServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

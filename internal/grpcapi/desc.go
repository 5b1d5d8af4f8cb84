package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "register.v1.Register"

// RegisterServer is the register.v1.Register service. Every message is a
// google.protobuf.Struct so clients need no generated stubs.
type RegisterServer interface {
	RecordEvent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPresent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PresentCounts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IsPresent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListVisits(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRoster(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(RegisterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RegisterServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(RegisterServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RegisterServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("RecordEvent", RegisterServer.RecordEvent),
		handler("ListPresent", RegisterServer.ListPresent),
		handler("PresentCounts", RegisterServer.PresentCounts),
		handler("IsPresent", RegisterServer.IsPresent),
		handler("ListVisits", RegisterServer.ListVisits),
		handler("ListRoster", RegisterServer.ListRoster),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "register/v1/register.proto",
}

// Invoke calls method on conn with Struct messages.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, method string, in *structpb.Struct) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

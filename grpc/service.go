package facetgrpc

import (
	"context"
	"fmt"

	"github.com/blockberries/facetroute/types"

	"google.golang.org/grpc"
)

const serviceName = "facetroute.v1.Dispatcher"

// DispatcherServer is the server-side interface for the dispatcher
// gRPC service.
type DispatcherServer interface {
	Commit(context.Context, *CommitRequest) (*Empty, error)
	Activate(context.Context, *Empty) (*types.Version, error)
	ApplyRoute(context.Context, *ApplyRouteRequest) (*Empty, error)
	Freeze(context.Context, *Empty) (*Empty, error)
	Resolve(context.Context, *ResolveRequest) (*types.Resolution, error)
	State(context.Context, *Empty) (*types.State, error)
	Watch(*Empty, grpc.ServerStream) error
}

// RegisterDispatcherServer registers the DispatcherServer on a gRPC server.
func RegisterDispatcherServer(s grpc.ServiceRegistrar, srv DispatcherServer) {
	s.RegisterService(&serviceDesc, srv)
}

// --- Handler functions ---

// unary runs call through the server's interceptor chain, if any.
func unary[Req any](
	method string,
	call func(DispatcherServer, context.Context, *Req) (any, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DispatcherServer), ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DispatcherServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

var (
	handlerCommit = unary("Commit", func(s DispatcherServer, ctx context.Context, req *CommitRequest) (any, error) {
		return s.Commit(ctx, req)
	})
	handlerActivate = unary("Activate", func(s DispatcherServer, ctx context.Context, req *Empty) (any, error) {
		return s.Activate(ctx, req)
	})
	handlerApplyRoute = unary("ApplyRoute", func(s DispatcherServer, ctx context.Context, req *ApplyRouteRequest) (any, error) {
		return s.ApplyRoute(ctx, req)
	})
	handlerFreeze = unary("Freeze", func(s DispatcherServer, ctx context.Context, req *Empty) (any, error) {
		return s.Freeze(ctx, req)
	})
	handlerResolve = unary("Resolve", func(s DispatcherServer, ctx context.Context, req *ResolveRequest) (any, error) {
		return s.Resolve(ctx, req)
	})
	handlerState = unary("State", func(s DispatcherServer, ctx context.Context, req *Empty) (any, error) {
		return s.State(ctx, req)
	})
)

func handlerWatch(srv any, stream grpc.ServerStream) error {
	req := new(Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(DispatcherServer).Watch(req, stream)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor for the dispatcher.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DispatcherServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Commit", Handler: handlerCommit},
		{MethodName: "Activate", Handler: handlerActivate},
		{MethodName: "ApplyRoute", Handler: handlerApplyRoute},
		{MethodName: "Freeze", Handler: handlerFreeze},
		{MethodName: "Resolve", Handler: handlerResolve},
		{MethodName: "State", Handler: handlerState},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       handlerWatch,
			ServerStreams: true,
			ClientStreams: false,
		},
	},
	Metadata: "facetroute/v1/dispatcher.cram",
}

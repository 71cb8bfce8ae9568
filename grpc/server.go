package facetgrpc

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/blockberries/facetroute/access"
	"github.com/blockberries/facetroute/dispatcher"
	"github.com/blockberries/facetroute/types"
)

// AuthorizationHeader is the metadata key carrying the bearer token.
const AuthorizationHeader = "authorization"

// Compile-time interface check.
var _ DispatcherServer = (*GRPCServer)(nil)

// GRPCServer exposes a Dispatcher as a gRPC service. No type
// conversion is needed; domain types are serialized directly via
// cramberry.
type GRPCServer struct {
	d      *dispatcher.Dispatcher
	tokens *access.Tokens
	log    zerolog.Logger
}

// NewGRPCServer creates a gRPC server for d. Bearer tokens are checked
// with tokens; with nil tokens every caller is anonymous and only the
// read methods succeed.
func NewGRPCServer(d *dispatcher.Dispatcher, tokens *access.Tokens, log zerolog.Logger) *GRPCServer {
	return &GRPCServer{d: d, tokens: tokens, log: log}
}

// Register adds the dispatcher service to a gRPC server.
func (s *GRPCServer) Register(gs grpc.ServiceRegistrar) {
	RegisterDispatcherServer(gs, s)
}

// ServerOptions returns the interceptors that authenticate callers and
// log requests. Pass them to grpc.NewServer when not using Serve.
func (s *GRPCServer) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.logUnary, s.authUnary),
		grpc.ChainStreamInterceptor(s.authStream),
	}
}

// Serve starts a gRPC server on the given listener.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(append(s.ServerOptions(), opts...)...)
	s.Register(gs)
	return gs.Serve(lis)
}

// Dispatcher returns the underlying dispatcher for advanced use.
func (s *GRPCServer) Dispatcher() *dispatcher.Dispatcher {
	return s.d
}

// --- Governance RPCs ---

func (s *GRPCServer) Commit(ctx context.Context, req *CommitRequest) (*Empty, error) {
	if err := s.d.Commit(ctx, req.Root, req.Epoch); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) Activate(ctx context.Context, _ *Empty) (*types.Version, error) {
	v, err := s.d.Activate(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &v, nil
}

func (s *GRPCServer) ApplyRoute(ctx context.Context, req *ApplyRouteRequest) (*Empty, error) {
	if err := s.d.ApplyRoute(ctx, req.Route, req.Proof); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) Freeze(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.d.Freeze(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// --- Read RPCs ---

func (s *GRPCServer) Resolve(ctx context.Context, req *ResolveRequest) (*types.Resolution, error) {
	res, err := s.d.Resolve(ctx, req.CallID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &res, nil
}

func (s *GRPCServer) State(ctx context.Context, _ *Empty) (*types.State, error) {
	st, err := s.d.State(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &st, nil
}

// Watch streams events until the client goes away. A subscriber that
// falls behind is ended with ResourceExhausted.
func (s *GRPCServer) Watch(_ *Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	events, err := s.d.Watch(ctx)
	if err != nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	// Headers tell the client the subscription is live.
	if err := stream.SendHeader(metadata.Pairs("x-facetroute-watch", "subscribed")); err != nil {
		return err
	}
	for ev := range events {
		if err := stream.SendMsg(&ev); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return status.Error(codes.ResourceExhausted, "watch subscriber fell behind; resynchronize with State")
}

// --- Interceptors ---

// principal resolves the caller from the bearer token. A missing token
// means anonymous; a present but invalid token is rejected.
func (s *GRPCServer) principal(ctx context.Context) (access.Principal, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(AuthorizationHeader)
	if len(values) == 0 {
		return access.Anonymous, nil
	}
	token, ok := strings.CutPrefix(values[0], "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return access.Anonymous, status.Error(codes.Unauthenticated, "authorization must be a bearer token")
	}
	if s.tokens == nil {
		return access.Anonymous, status.Error(codes.Unauthenticated, "token authentication is not configured")
	}
	p, err := s.tokens.Verify(strings.TrimSpace(token))
	if err != nil {
		return access.Anonymous, status.Error(codes.Unauthenticated, err.Error())
	}
	return p, nil
}

func (s *GRPCServer) authUnary(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	p, err := s.principal(ctx)
	if err != nil {
		return nil, err
	}
	return handler(access.WithPrincipal(ctx, p), req)
}

func (s *GRPCServer) authStream(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	p, err := s.principal(ss.Context())
	if err != nil {
		return err
	}
	return handler(srv, &principalStream{ServerStream: ss, ctx: access.WithPrincipal(ss.Context(), p)})
}

func (s *GRPCServer) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.log.Debug().
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("elapsed", time.Since(start)).
		Msg("rpc")
	return resp, err
}

// principalStream overrides the context of a server stream.
type principalStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *principalStream) Context() context.Context { return s.ctx }

package facetgrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// bearerToken attaches a static bearer token to every call.
type bearerToken struct {
	token    string
	insecure bool
}

var _ credentials.PerRPCCredentials = bearerToken{}

func (b bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{AuthorizationHeader: "Bearer " + b.token}, nil
}

func (b bearerToken) RequireTransportSecurity() bool { return !b.insecure }

// WithToken returns a dial option that authenticates every call with
// token. Tokens are only sent over secured transports.
func WithToken(token string) grpc.DialOption {
	return grpc.WithPerRPCCredentials(bearerToken{token: token})
}

// WithInsecureToken is WithToken for plaintext connections, such as
// loopback listeners in tests and sidecar deployments.
func WithInsecureToken(token string) grpc.DialOption {
	return grpc.WithPerRPCCredentials(bearerToken{token: token, insecure: true})
}

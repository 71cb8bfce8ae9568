package facetgrpc

import "github.com/blockberries/facetroute/types"

// Transport-specific wrapper types for RPC methods whose interface
// signatures don't map to a single request/response struct.
// These are used only for gRPC serialization boundaries.

// Empty is the request or response of calls that carry nothing.
type Empty struct{}

// CommitRequest wraps the parameters for Governance.Commit.
type CommitRequest struct {
	Root  types.Digest `cramberry:"1"`
	Epoch uint64       `cramberry:"2"`
}

// ApplyRouteRequest wraps the parameters for Governance.ApplyRoute.
type ApplyRouteRequest struct {
	Route types.Route `cramberry:"1"`
	Proof types.Proof `cramberry:"2"`
}

// ResolveRequest wraps the parameter for Reader.Resolve.
type ResolveRequest struct {
	CallID types.CallID `cramberry:"1"`
}

// Package facetroute defines the governed routing table that maps call
// identifiers to pluggable facet modules.
//
// A route set is published as a Merkle root. Governance commits the
// root for the next epoch, waits out a mandatory delay, activates it,
// and then applies routes one by one; each route is admitted only if
// its proof verifies against the active root. Callers resolve call
// identifiers against the live table without re-checking proofs. A
// guardian can freeze the table permanently.
//
// The interfaces here are transport-agnostic. The dispatcher package
// implements them in memory, local wraps a dispatcher for in-process
// callers, and facetgrpc carries them over gRPC.
package facetroute

import (
	"context"

	"github.com/blockberries/facetroute/types"
)

// Governance is the mutating surface of a dispatcher. The caller's
// principal travels on the context (see access.WithPrincipal); every
// method checks it before touching state.
//
// All methods are all-or-nothing: on error the dispatcher state is
// exactly what it was before the call. Errors are *Error values whose
// Kind names the failed precondition.
type Governance interface {
	// Commit stages root as the pending version for epoch, which must
	// be the active epoch plus one. A previously pending root is
	// replaced.
	//
	// Requires: RoleGovernance. Fails: RootZero, BadEpoch, FrozenError.
	Commit(ctx context.Context, root types.Digest, epoch uint64) error

	// Activate promotes the pending root once the activation delay has
	// elapsed since its commit. Of several concurrent calls against one
	// pending root exactly one succeeds; the rest see NoPendingRoot.
	//
	// Requires: RoleGovernance. Fails: NoPendingRoot,
	// ActivationNotReady, FrozenError.
	Activate(ctx context.Context) (types.Version, error)

	// ApplyRoute admits route into the live table if proof verifies it
	// against the active root.
	//
	// Requires: RoleGovernance. Fails: InvalidProof, FrozenError.
	ApplyRoute(ctx context.Context, route types.Route, proof types.Proof) error

	// Freeze permanently disables every mutating call, itself included.
	//
	// Requires: RoleGuardian. Fails: FrozenError.
	Freeze(ctx context.Context) error
}

// Reader is the ungated read surface. Reads observe a consistent
// snapshot and never fail on valid input.
type Reader interface {
	// Resolve looks up the live target of a call identifier. An unknown
	// identifier yields Found == false, not an error.
	Resolve(ctx context.Context, id types.CallID) (types.Resolution, error)

	// State returns a snapshot of the dispatcher state.
	State(ctx context.Context) (types.State, error)
}

// Connection represents a transport-agnostic connection to a
// dispatcher. Both gRPC clients and in-process adapters implement it.
type Connection interface {
	Governance
	Reader

	// Watch streams notifications until ctx is done or the subscriber
	// falls too far behind, at which point the channel is closed and
	// the caller should resynchronize with State.
	Watch(ctx context.Context) (<-chan types.Event, error)

	// Close terminates the connection.
	Close() error
}

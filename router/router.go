// Package router is the calling layer on top of a dispatcher's live
// table. It splits the 4-byte call identifier off calldata, resolves
// it, and invokes the facet registered at the resolved module address,
// provided the facet's code hash is the one the route was approved
// for. Proofs are not re-checked per call.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blockberries/facetroute/types"
)

var (
	// ErrShortCalldata: calldata shorter than a call identifier.
	ErrShortCalldata = errors.New("router: calldata shorter than 4 bytes")
	// ErrNoRoute: the call identifier has no live route.
	ErrNoRoute = errors.New("router: no route")
	// ErrModuleNotRegistered: the route points at an address with no
	// facet registered.
	ErrModuleNotRegistered = errors.New("router: module not registered")
	// ErrCodehashMismatch: the registered facet is not the code the
	// route approved.
	ErrCodehashMismatch = errors.New("router: codehash mismatch")
)

// Resolver is the live-table lookup. *dispatcher.Dispatcher satisfies
// it.
type Resolver interface {
	Lookup(id types.CallID) (types.Target, bool)
}

// Call is one invocation handed to a facet.
type Call struct {
	ID     types.CallID
	Args   []byte
	Target types.Target
}

// Facet is a pluggable module implementation.
type Facet interface {
	Call(ctx context.Context, call Call) ([]byte, error)
}

// FacetFunc adapts a function to Facet.
type FacetFunc func(ctx context.Context, call Call) ([]byte, error)

func (f FacetFunc) Call(ctx context.Context, call Call) ([]byte, error) { return f(ctx, call) }

type registration struct {
	codehash types.Digest
	facet    Facet
}

// Router dispatches calldata to facets. Safe for concurrent use.
type Router struct {
	resolver Resolver

	mu     sync.RWMutex
	facets map[types.Address]registration
}

// New returns a router resolving through r.
func New(r Resolver) *Router {
	return &Router{resolver: r, facets: make(map[types.Address]registration)}
}

// Register installs facet at addr as code codehash, replacing any
// previous registration at addr.
func (r *Router) Register(addr types.Address, codehash types.Digest, facet Facet) error {
	if addr.IsZero() {
		return fmt.Errorf("router: cannot register the zero address")
	}
	if facet == nil {
		return fmt.Errorf("router: nil facet for %s", addr)
	}
	r.mu.Lock()
	r.facets[addr] = registration{codehash: codehash, facet: facet}
	r.mu.Unlock()
	return nil
}

// Unregister removes the facet at addr.
func (r *Router) Unregister(addr types.Address) {
	r.mu.Lock()
	delete(r.facets, addr)
	r.mu.Unlock()
}

// Dispatch routes calldata (call id ‖ args) and returns the facet's
// result.
func (r *Router) Dispatch(ctx context.Context, calldata []byte) ([]byte, error) {
	if len(calldata) < len(types.CallID{}) {
		return nil, ErrShortCalldata
	}
	var id types.CallID
	copy(id[:], calldata)

	target, ok := r.resolver.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoRoute, id)
	}

	r.mu.RLock()
	reg, ok := r.facets[target.Module]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (call %s)", ErrModuleNotRegistered, target.Module, id)
	}
	if reg.codehash != target.Codehash {
		return nil, fmt.Errorf("%w: %s runs %s, route approved %s",
			ErrCodehashMismatch, target.Module, reg.codehash, target.Codehash)
	}
	return reg.facet.Call(ctx, Call{ID: id, Args: calldata[len(id):], Target: target})
}

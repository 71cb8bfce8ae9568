// Package manifest builds canonical, content-addressed manifests from
// route sets and reads and writes the manifest file format.
//
// Canonical order is ascending CallID (big-endian byte comparison).
// Two builders given the same route set in any order produce the same
// root and the same per-route proofs, so the root alone can be handed
// from an offline builder to an online dispatcher.
package manifest

import (
	"errors"
	"fmt"
	"slices"

	"github.com/blockberries/facetroute/merkle"
	"github.com/blockberries/facetroute/types"
)

var (
	// ErrEmptyRoutes is returned when building from zero routes.
	ErrEmptyRoutes = errors.New("manifest: empty route set")
	// ErrDuplicateCallID is returned when two routes share a CallID.
	ErrDuplicateCallID = errors.New("manifest: duplicate call id")
	// ErrZeroModule is returned when a route points at the zero address.
	ErrZeroModule = errors.New("manifest: zero module address")
	// ErrSelfCheck is returned when a freshly built proof fails to
	// verify. It indicates a broken Hasher.
	ErrSelfCheck = errors.New("manifest: proof self-check failed")
)

// Builder assembles manifests with a fixed hash strategy.
type Builder struct {
	hasher merkle.Hasher
}

// NewBuilder returns a builder using h, or the default hasher when h
// is nil.
func NewBuilder(h merkle.Hasher) *Builder {
	if h == nil {
		h = merkle.Default()
	}
	return &Builder{hasher: h}
}

// Hasher returns the builder's hash strategy.
func (b *Builder) Hasher() merkle.Hasher { return b.hasher }

// Built is the output of Builder.Build.
type Built struct {
	Manifest types.Manifest
	Proofs   map[types.CallID]types.Proof
}

// Proof returns the inclusion proof for id.
func (b *Built) Proof(id types.CallID) (types.Proof, bool) {
	p, ok := b.Proofs[id]
	return p, ok
}

// Build validates routes, sorts them canonically and returns the
// manifest for epoch together with a proof for every route. The input
// slice is not modified.
func (b *Builder) Build(routes []types.Route, epoch uint64) (*Built, error) {
	sorted, err := Canonicalize(routes)
	if err != nil {
		return nil, err
	}

	leaves := make([]types.Digest, len(sorted))
	for i, r := range sorted {
		leaves[i] = merkle.LeafHash(b.hasher, r)
	}
	tree, err := merkle.Build(b.hasher, leaves)
	if err != nil {
		return nil, err
	}
	root := tree.Root()

	proofs := make(map[types.CallID]types.Proof, len(sorted))
	for i, r := range sorted {
		p, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		ok, err := merkle.Verify(b.hasher, r, p, root)
		if err != nil || !ok {
			return nil, fmt.Errorf("%w: call id %s", ErrSelfCheck, r.CallID)
		}
		proofs[r.CallID] = p
	}

	return &Built{
		Manifest: types.Manifest{
			Version: types.ManifestVersion,
			Epoch:   epoch,
			Root:    root,
			Routes:  sorted,
		},
		Proofs: proofs,
	}, nil
}

// Root computes only the root of a route set.
func (b *Builder) Root(routes []types.Route) (types.Digest, error) {
	built, err := b.Build(routes, 0)
	if err != nil {
		return types.Digest{}, err
	}
	return built.Manifest.Root, nil
}

// Canonicalize validates routes and returns a sorted copy.
func Canonicalize(routes []types.Route) ([]types.Route, error) {
	if len(routes) == 0 {
		return nil, ErrEmptyRoutes
	}
	sorted := slices.Clone(routes)
	slices.SortFunc(sorted, func(a, b types.Route) int {
		return a.CallID.Compare(b.CallID)
	})
	for i, r := range sorted {
		if r.Module.IsZero() {
			return nil, fmt.Errorf("%w: call id %s", ErrZeroModule, r.CallID)
		}
		if i > 0 && sorted[i-1].CallID == r.CallID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCallID, r.CallID)
		}
	}
	return sorted, nil
}

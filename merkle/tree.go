package merkle

import (
	"errors"
	"fmt"

	"github.com/blockberries/facetroute/types"
)

// ErrNoLeaves is returned when building a tree from zero leaves.
var ErrNoLeaves = errors.New("merkle: no leaves")

// LeafHash is the Merkle leaf of a route: Hash(CallID ‖ Module ‖ Codehash).
func LeafHash(h Hasher, r types.Route) types.Digest {
	return h.Sum(r.Encode())
}

// NodeHash combines two children into their parent.
func NodeHash(h Hasher, left, right types.Digest) types.Digest {
	return h.Sum(left[:], right[:])
}

// Depth returns the number of proof steps for a tree of width leaves.
func Depth(width uint32) int {
	d := 0
	for w := width; w > 1; w = (w + 1) / 2 {
		d++
	}
	return d
}

// Tree is a fully materialized Merkle tree. levels[0] holds the
// leaves; the last level holds only the root.
type Tree struct {
	hasher Hasher
	levels [][]types.Digest
}

// Build constructs a tree over leaves in the given order.
func Build(h Hasher, leaves []types.Digest) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	level := make([]types.Digest, len(leaves))
	copy(level, leaves)

	t := &Tree{hasher: h, levels: [][]types.Digest{level}}
	for len(level) > 1 {
		next := make([]types.Digest, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next[i/2] = NodeHash(h, left, right)
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root returns the tree root.
func (t *Tree) Root() types.Digest {
	return t.levels[len(t.levels)-1][0]
}

// Width returns the number of leaves.
func (t *Tree) Width() int {
	return len(t.levels[0])
}

// Leaf returns the leaf at index.
func (t *Tree) Leaf(index int) types.Digest {
	return t.levels[0][index]
}

// Proof returns the inclusion proof for the leaf at index.
func (t *Tree) Proof(index int) (types.Proof, error) {
	if index < 0 || index >= t.Width() {
		return types.Proof{}, fmt.Errorf("merkle: leaf index %d out of range [0,%d)", index, t.Width())
	}
	p := types.Proof{
		Index: uint32(index),
		Width: uint32(t.Width()),
		Steps: make([]types.ProofStep, 0, len(t.levels)-1),
	}
	i := index
	for _, level := range t.levels[:len(t.levels)-1] {
		sib := i ^ 1
		if sib >= len(level) {
			// Odd level: the last node was paired with itself.
			sib = i
		}
		p.Steps = append(p.Steps, types.ProofStep{
			Sibling: level[sib],
			Left:    i%2 == 1,
		})
		i /= 2
	}
	return p, nil
}

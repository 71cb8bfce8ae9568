package merkle

import (
	"errors"
	"fmt"

	"github.com/blockberries/facetroute/types"
)

// ErrMalformedProof marks a proof that cannot belong to any tree, as
// opposed to a well-formed proof that simply does not lead to the
// expected root.
var ErrMalformedProof = errors.New("merkle: malformed proof")

// Verify reports whether route is included under root according to
// proof. A mismatch returns (false, nil); a structurally invalid proof
// returns (false, err) with err wrapping ErrMalformedProof.
func Verify(h Hasher, route types.Route, proof types.Proof, root types.Digest) (bool, error) {
	return VerifyLeaf(h, LeafHash(h, route), proof, root)
}

// VerifyLeaf is Verify for an already hashed leaf.
func VerifyLeaf(h Hasher, leaf types.Digest, proof types.Proof, root types.Digest) (bool, error) {
	if err := CheckShape(proof); err != nil {
		return false, err
	}
	acc := leaf
	for _, step := range proof.Steps {
		if step.Left {
			acc = NodeHash(h, step.Sibling, acc)
		} else {
			acc = NodeHash(h, acc, step.Sibling)
		}
	}
	return acc == root, nil
}

// CheckShape validates the structure of a proof without hashing.
func CheckShape(proof types.Proof) error {
	if proof.Width == 0 {
		return fmt.Errorf("%w: zero width", ErrMalformedProof)
	}
	if proof.Index >= proof.Width {
		return fmt.Errorf("%w: index %d outside width %d", ErrMalformedProof, proof.Index, proof.Width)
	}
	if want := Depth(proof.Width); len(proof.Steps) != want {
		return fmt.Errorf("%w: %d steps for width %d, want %d", ErrMalformedProof, len(proof.Steps), proof.Width, want)
	}
	idx := proof.Index
	for i, step := range proof.Steps {
		if step.Left != (idx%2 == 1) {
			return fmt.Errorf("%w: step %d position disagrees with index %d", ErrMalformedProof, i, proof.Index)
		}
		idx /= 2
	}
	return nil
}

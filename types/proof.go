package types

// Proof is a Merkle inclusion proof for one route of a manifest.
//
// Steps are ordered leaf to root. Index and Width pin the leaf's
// position in the bottom level so a verifier can reject structurally
// impossible proofs without holding the tree.
type Proof struct {
	Index uint32      `cramberry:"1"`
	Width uint32      `cramberry:"2"`
	Steps []ProofStep `cramberry:"3"`
}

// ProofStep is a single sibling on the path from a leaf to the root.
type ProofStep struct {
	Sibling Digest `cramberry:"1"`
	// Left is true when the sibling is hashed on the left of the
	// running digest.
	Left bool `cramberry:"2"`
}

// Clone returns a deep copy of p.
func (p Proof) Clone() Proof {
	out := Proof{Index: p.Index, Width: p.Width}
	if p.Steps != nil {
		out.Steps = make([]ProofStep, len(p.Steps))
		copy(out.Steps, p.Steps)
	}
	return out
}

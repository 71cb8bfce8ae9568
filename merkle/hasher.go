// Package merkle implements the route encoder leaf rules, the Merkle
// tree used for manifests, and the inclusion-proof verifier.
//
// Tree shape: leaves are paired left to right at every level, a node
// is Hash(left ‖ right), and a level with an odd count pairs its last
// node with itself. A single-leaf tree's root is that leaf. Builders
// and verifiers must agree on this exactly or proofs stop verifying.
package merkle

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/blockberries/facetroute/types"

	"golang.org/x/crypto/sha3"
)

// Hasher is the pluggable digest strategy used for leaves and nodes.
// Implementations must be stateless and safe for concurrent use.
type Hasher interface {
	// Name is the stable identifier used in configuration.
	Name() string
	// Sum hashes the concatenation of parts.
	Sum(parts ...[]byte) types.Digest
}

var (
	// Keccak256 is the legacy Keccak-256 used by EVM chains. It is the
	// default hasher.
	Keccak256 Hasher = keccak256{}
	// SHA256 is FIPS SHA-256.
	SHA256 Hasher = sha256Hasher{}
)

// Default returns the hasher used when none is configured.
func Default() Hasher { return Keccak256 }

// ByName looks up a hasher by its configuration name.
func ByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "keccak256", "keccak-256":
		return Keccak256, nil
	case "sha256", "sha-256":
		return SHA256, nil
	default:
		return nil, fmt.Errorf("merkle: unknown hasher %q", name)
	}
}

type keccak256 struct{}

func (keccak256) Name() string { return "keccak256" }

func (keccak256) Sum(parts ...[]byte) types.Digest {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var d types.Digest
	h.Sum(d[:0])
	return d
}

type sha256Hasher struct{}

func (sha256Hasher) Name() string { return "sha256" }

func (sha256Hasher) Sum(parts ...[]byte) types.Digest {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var d types.Digest
	h.Sum(d[:0])
	return d
}

// Package types defines the core data types of the facet routing
// table: call identifiers, module addresses, digests, routes,
// proofs, manifests and the dispatcher state snapshot.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Transport concerns
// (gRPC codec registration) are handled in the transport packages.
package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Digest is a 32-byte cryptographic hash. The zero digest is never a
// valid committed or active root.
type Digest [32]byte

// Address is a fixed-width module address.
type Address [20]byte

// CallID is a 4-byte call identifier (function selector).
type CallID [4]byte

// IsZero reports whether d is the all-zero digest.
func (d Digest) IsZero() bool { return d == Digest{} }

// Hex returns the 0x-prefixed lowercase hex form.
func (d Digest) Hex() string { return encodeHex(d[:]) }

func (d Digest) String() string { return d.Hex() }

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool { return a == Address{} }

// Hex returns the 0x-prefixed lowercase hex form.
func (a Address) Hex() string { return encodeHex(a[:]) }

func (a Address) String() string { return a.Hex() }

// Hex returns the 0x-prefixed lowercase hex form.
func (c CallID) Hex() string { return encodeHex(c[:]) }

func (c CallID) String() string { return c.Hex() }

// Uint32 returns the big-endian integer value of the identifier.
func (c CallID) Uint32() uint32 {
	return uint32(c[0])<<24 | uint32(c[1])<<16 | uint32(c[2])<<8 | uint32(c[3])
}

// CallIDFromUint32 builds a CallID from its big-endian integer value.
func CallIDFromUint32(v uint32) CallID {
	return CallID{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// ParseDigest parses a 0x-prefixed (or bare) 64 character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if err := decodeFixed(s, d[:]); err != nil {
		return Digest{}, fmt.Errorf("digest: %w", err)
	}
	return d, nil
}

// ParseAddress parses a 0x-prefixed (or bare) 40 character hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	if err := decodeFixed(s, a[:]); err != nil {
		return Address{}, fmt.Errorf("address: %w", err)
	}
	return a, nil
}

// ParseCallID parses a 0x-prefixed (or bare) 8 character hex string.
func ParseCallID(s string) (CallID, error) {
	var c CallID
	if err := decodeFixed(s, c[:]); err != nil {
		return CallID{}, fmt.Errorf("call id: %w", err)
	}
	return c, nil
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeFixed(s string, dst []byte) error {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 2*len(dst) {
		return fmt.Errorf("want %d hex chars, got %d", 2*len(dst), len(raw))
	}
	if _, err := hex.Decode(dst, []byte(raw)); err != nil {
		return err
	}
	return nil
}

package types

import (
	"bytes"

	"golang.org/x/crypto/sha3"
)

// RouteEncodingSize is the length of a canonical route encoding:
// CallID (4) ‖ Module (20) ‖ Codehash (32).
const RouteEncodingSize = 4 + 20 + 32

// Route authorizes one module implementation to serve one call
// identifier.
type Route struct {
	CallID   CallID  `cramberry:"1"`
	Module   Address `cramberry:"2"`
	Codehash Digest  `cramberry:"3"`
}

// Target is the value side of a live route: the module that serves a
// call identifier and the exact code it is expected to run.
type Target struct {
	Module   Address `cramberry:"1"`
	Codehash Digest  `cramberry:"2"`
}

// Target returns the live-table value for r.
func (r Route) Target() Target {
	return Target{Module: r.Module, Codehash: r.Codehash}
}

// Encode returns the canonical byte encoding hashed into a Merkle leaf.
func (r Route) Encode() []byte {
	buf := make([]byte, 0, RouteEncodingSize)
	buf = append(buf, r.CallID[:]...)
	buf = append(buf, r.Module[:]...)
	buf = append(buf, r.Codehash[:]...)
	return buf
}

// Compare orders two call identifiers by big-endian byte value. This
// is the canonical leaf order of every manifest.
func (c CallID) Compare(other CallID) int {
	return bytes.Compare(c[:], other[:])
}

// Selector derives the call identifier of a canonical function
// signature such as "transfer(address,uint256)": the first four bytes
// of its Keccak-256 hash.
func Selector(signature string) CallID {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var sum [32]byte
	h.Sum(sum[:0])
	return CallID{sum[0], sum[1], sum[2], sum[3]}
}

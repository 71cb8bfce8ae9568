package merkle

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/blockberries/facetroute/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoute(n byte) types.Route {
	r := types.Route{CallID: types.CallID{0, 0, 0, n}}
	r.Module[19] = n
	r.Codehash[0] = n
	r.Codehash[31] = 0xff
	return r
}

func leavesFor(h Hasher, n int) ([]types.Route, []types.Digest) {
	routes := make([]types.Route, n)
	leaves := make([]types.Digest, n)
	for i := range routes {
		routes[i] = testRoute(byte(i + 1))
		leaves[i] = LeafHash(h, routes[i])
	}
	return routes, leaves
}

func TestHashers_KnownVectors(t *testing.T) {
	k := Keccak256.Sum()
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", hex.EncodeToString(k[:]))

	s := SHA256.Sum()
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", hex.EncodeToString(s[:]))

	// Sum over parts equals Sum over their concatenation.
	assert.Equal(t, Keccak256.Sum([]byte("ab"), []byte("c")), Keccak256.Sum([]byte("abc")))
}

func TestByName(t *testing.T) {
	h, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, "keccak256", h.Name())

	h, err = ByName("SHA256")
	require.NoError(t, err)
	assert.Equal(t, "sha256", h.Name())

	_, err = ByName("md5")
	assert.Error(t, err)
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build(Keccak256, nil)
	assert.ErrorIs(t, err, ErrNoLeaves)
}

func TestBuild_SingleLeafRootIsLeaf(t *testing.T) {
	_, leaves := leavesFor(Keccak256, 1)
	tree, err := Build(Keccak256, leaves)
	require.NoError(t, err)
	assert.Equal(t, leaves[0], tree.Root())

	p, err := tree.Proof(0)
	require.NoError(t, err)
	assert.Empty(t, p.Steps)
	assert.Equal(t, uint32(1), p.Width)
}

func TestBuild_OddLevelDuplicatesLast(t *testing.T) {
	h := SHA256
	_, l := leavesFor(h, 3)
	tree, err := Build(h, l)
	require.NoError(t, err)

	want := NodeHash(h, NodeHash(h, l[0], l[1]), NodeHash(h, l[2], l[2]))
	assert.Equal(t, want, tree.Root())

	// Five leaves: the odd node is duplicated at two levels.
	_, l = leavesFor(h, 5)
	tree, err = Build(h, l)
	require.NoError(t, err)
	ab := NodeHash(h, l[0], l[1])
	cd := NodeHash(h, l[2], l[3])
	ee := NodeHash(h, l[4], l[4])
	want = NodeHash(h, NodeHash(h, ab, cd), NodeHash(h, ee, ee))
	assert.Equal(t, want, tree.Root())
}

func TestDepth(t *testing.T) {
	cases := map[uint32]int{1: 0, 2: 1, 3: 2, 4: 2, 5: 3, 8: 3, 9: 4, 16: 4, 17: 5}
	for width, want := range cases {
		assert.Equal(t, want, Depth(width), "width %d", width)
	}
}

func TestProof_RoundTripAllWidths(t *testing.T) {
	for _, h := range []Hasher{Keccak256, SHA256} {
		for n := 1; n <= 17; n++ {
			routes, leaves := leavesFor(h, n)
			tree, err := Build(h, leaves)
			require.NoError(t, err)
			for i, r := range routes {
				p, err := tree.Proof(i)
				require.NoError(t, err)
				ok, err := Verify(h, r, p, tree.Root())
				require.NoError(t, err, "%s width=%d index=%d", h.Name(), n, i)
				assert.True(t, ok, "%s width=%d index=%d", h.Name(), n, i)
			}
		}
	}
}

func TestProof_OutOfRange(t *testing.T) {
	_, leaves := leavesFor(Keccak256, 2)
	tree, err := Build(Keccak256, leaves)
	require.NoError(t, err)
	_, err = tree.Proof(2)
	assert.Error(t, err)
	_, err = tree.Proof(-1)
	assert.Error(t, err)
}

func TestVerify_RouteByteTamper(t *testing.T) {
	h := Keccak256
	routes, leaves := leavesFor(h, 6)
	tree, err := Build(h, leaves)
	require.NoError(t, err)
	p, err := tree.Proof(3)
	require.NoError(t, err)

	enc := routes[3].Encode()
	for i := range enc {
		mutated := make([]byte, len(enc))
		copy(mutated, enc)
		mutated[i] ^= 0x01

		var r types.Route
		copy(r.CallID[:], mutated[0:4])
		copy(r.Module[:], mutated[4:24])
		copy(r.Codehash[:], mutated[24:56])

		ok, err := Verify(h, r, p, tree.Root())
		require.NoError(t, err)
		assert.False(t, ok, "byte %d flip must fail verification", i)
	}
}

func TestVerify_ProofTamper(t *testing.T) {
	h := Keccak256
	routes, leaves := leavesFor(h, 7)
	tree, err := Build(h, leaves)
	require.NoError(t, err)
	root := tree.Root()
	r := routes[6]
	good, err := tree.Proof(6)
	require.NoError(t, err)

	t.Run("sibling_byte", func(t *testing.T) {
		for s := range good.Steps {
			for b := 0; b < 32; b++ {
				p := good.Clone()
				p.Steps[s].Sibling[b] ^= 0x80
				ok, err := Verify(h, r, p, root)
				require.NoError(t, err)
				assert.False(t, ok)
			}
		}
	})

	t.Run("flipped_position", func(t *testing.T) {
		p := good.Clone()
		p.Steps[0].Left = !p.Steps[0].Left
		ok, err := Verify(h, r, p, root)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, ErrMalformedProof))
	})

	t.Run("truncated", func(t *testing.T) {
		p := good.Clone()
		p.Steps = p.Steps[:len(p.Steps)-1]
		ok, err := Verify(h, r, p, root)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrMalformedProof)
	})

	t.Run("empty_for_multi_leaf_tree", func(t *testing.T) {
		p := good.Clone()
		p.Steps = nil
		_, err := Verify(h, r, p, root)
		assert.ErrorIs(t, err, ErrMalformedProof)
	})

	t.Run("zero_width", func(t *testing.T) {
		p := good.Clone()
		p.Width = 0
		_, err := Verify(h, r, p, root)
		assert.ErrorIs(t, err, ErrMalformedProof)
	})

	t.Run("index_outside_width", func(t *testing.T) {
		p := good.Clone()
		p.Index = p.Width
		_, err := Verify(h, r, p, root)
		assert.ErrorIs(t, err, ErrMalformedProof)
	})

	t.Run("wrong_root", func(t *testing.T) {
		other := root
		other[0] ^= 0x01
		ok, err := Verify(h, r, good, other)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestVerify_HasherMismatch(t *testing.T) {
	routes, leaves := leavesFor(Keccak256, 4)
	tree, err := Build(Keccak256, leaves)
	require.NoError(t, err)
	p, err := tree.Proof(1)
	require.NoError(t, err)

	ok, err := Verify(SHA256, routes[1], p, tree.Root())
	require.NoError(t, err)
	assert.False(t, ok)
}

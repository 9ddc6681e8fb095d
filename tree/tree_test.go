package tree

import (
	"errors"
	"math/big"
	"math/rand/v2"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
)

func TestEmptyTree(t *testing.T) {
	c := qt.New(t)
	tr, err := New(DefaultArity, 2, big.NewInt(0))
	c.Assert(err, qt.IsNil)
	c.Assert(tr.Capacity(), qt.Equals, 25)

	z1 := poseidon.MustHash(big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0))
	z2 := poseidon.MustHash(z1, z1, z1, z1, z1)
	c.Assert(tr.Zero(1).Cmp(z1), qt.Equals, 0)
	c.Assert(tr.Root().Cmp(z2), qt.Equals, 0)

	leaf, err := tr.Leaf(24)
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Sign(), qt.Equals, 0)
	c.Assert(tr.Leaves(), qt.HasLen, 25)
}

func TestUpdateLeaf(t *testing.T) {
	c := qt.New(t)
	tr := MustNew(DefaultArity, 2, big.NewInt(0))
	c.Assert(tr.UpdateLeaf(7, big.NewInt(42)), qt.IsNil)

	zero := big.NewInt(0)
	z1 := tr.Zero(1)
	n1 := poseidon.MustHash(zero, zero, big.NewInt(42), zero, zero)
	root := poseidon.MustHash(z1, n1, z1, z1, z1)
	c.Assert(tr.Root().Cmp(root), qt.Equals, 0)

	leaf, err := tr.Leaf(7)
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Int64(), qt.Equals, int64(42))
}

func TestIndexOutOfRange(t *testing.T) {
	c := qt.New(t)
	tr := MustNew(DefaultArity, 1, big.NewInt(0))
	c.Assert(errors.Is(tr.UpdateLeaf(5, big.NewInt(1)), ErrIndexOutOfRange), qt.IsTrue)
	_, err := tr.Leaf(-1)
	c.Assert(errors.Is(err, ErrIndexOutOfRange), qt.IsTrue)
	_, err = tr.PathElementOf(5)
	c.Assert(errors.Is(err, ErrIndexOutOfRange), qt.IsTrue)
	_, err = tr.SubTree(6)
	c.Assert(errors.Is(err, ErrIndexOutOfRange), qt.IsTrue)

	_, err = New(1, 2, nil)
	c.Assert(errors.Is(err, ErrInvalidShape), qt.IsTrue)
	_, err = New(DefaultArity, 0, nil)
	c.Assert(errors.Is(err, ErrInvalidShape), qt.IsTrue)
}

func TestPathRecomputesRoot(t *testing.T) {
	c := qt.New(t)
	rng := rand.New(rand.NewPCG(1, 2))
	tr := MustNew(DefaultArity, 3, big.NewInt(3))
	for range 40 {
		idx := rng.IntN(tr.Capacity())
		c.Assert(tr.UpdateLeaf(idx, big.NewInt(rng.Int64())), qt.IsNil)

		// every index, written or not, must prove against the current root
		other := rng.IntN(tr.Capacity())
		for _, i := range []int{idx, other} {
			leaf, err := tr.Leaf(i)
			c.Assert(err, qt.IsNil)
			elements, err := tr.PathElementOf(i)
			c.Assert(err, qt.IsNil)
			c.Assert(elements, qt.HasLen, 3)
			c.Assert(elements[0], qt.HasLen, 4)
			digits, err := tr.PathIdxOf(i)
			c.Assert(err, qt.IsNil)
			root, err := ComputeRoot(leaf, elements, digits, nil)
			c.Assert(err, qt.IsNil)
			c.Assert(root.Cmp(tr.Root()), qt.Equals, 0, qt.Commentf("leaf %d", i))
		}
	}
}

func TestPathIdxOf(t *testing.T) {
	c := qt.New(t)
	tr := MustNew(DefaultArity, 3, nil)
	digits, err := tr.PathIdxOf(87) // 87 = 3*25 + 2*5 + 2
	c.Assert(err, qt.IsNil)
	c.Assert(digits, qt.DeepEquals, []int{2, 2, 3})
}

func TestInitLeavesMatchesUpdates(t *testing.T) {
	c := qt.New(t)
	leaves := make([]*big.Int, 17)
	for i := range leaves {
		leaves[i] = big.NewInt(int64(i * i))
	}
	bulk := MustNew(DefaultArity, 2, big.NewInt(0))
	c.Assert(bulk.InitLeaves(leaves), qt.IsNil)

	single := MustNew(DefaultArity, 2, big.NewInt(0))
	for i, l := range leaves {
		c.Assert(single.UpdateLeaf(i, l), qt.IsNil)
	}
	c.Assert(bulk.Root().Cmp(single.Root()), qt.Equals, 0)
	c.Assert(bulk.SparseLeaves(), qt.HasLen, 17)
}

func TestSubTree(t *testing.T) {
	c := qt.New(t)
	zero := big.NewInt(11)
	full := MustNew(DefaultArity, 2, zero)
	leaves := make([]*big.Int, 20)
	for i := range leaves {
		leaves[i] = big.NewInt(int64(100 + i))
		c.Assert(full.UpdateLeaf(i, leaves[i]), qt.IsNil)
	}
	for _, n := range []int{0, 1, 4, 5, 13, 20} {
		sub, err := full.SubTree(n)
		c.Assert(err, qt.IsNil)

		fresh := MustNew(DefaultArity, 2, zero)
		c.Assert(fresh.InitLeaves(leaves[:n]), qt.IsNil)
		c.Assert(sub.Root().Cmp(fresh.Root()), qt.Equals, 0, qt.Commentf("n=%d", n))
	}
	c.Assert(full.SparseLeaves(), qt.HasLen, 20)
}

func TestClone(t *testing.T) {
	c := qt.New(t)
	tr := MustNew(DefaultArity, 2, nil)
	c.Assert(tr.UpdateLeaf(3, big.NewInt(9)), qt.IsNil)
	cp := tr.Clone()
	c.Assert(cp.UpdateLeaf(4, big.NewInt(1)), qt.IsNil)
	c.Assert(cp.Root().Cmp(tr.Root()), qt.Not(qt.Equals), 0)
	leaf, err := tr.Leaf(4)
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Sign(), qt.Equals, 0)
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := qt.New(t)
	tr := MustNew(DefaultArity, 2, big.NewInt(0))
	c.Assert(tr.UpdateLeaf(3, big.NewInt(9)), qt.IsNil)
	root := new(big.Int).Set(tr.Root())

	leaf, err := tr.Leaf(3)
	c.Assert(err, qt.IsNil)
	leaf.SetInt64(1)
	tr.Leaves()[3].SetInt64(2)
	tr.Leaves()[4].SetInt64(3)
	tr.Root().SetInt64(4)
	tr.Zero(1).SetInt64(5)
	path, err := tr.PathElementOf(3)
	c.Assert(err, qt.IsNil)
	path[0][0].SetInt64(6)
	path[1][0].SetInt64(7)

	leaf, err = tr.Leaf(3)
	c.Assert(err, qt.IsNil)
	c.Assert(leaf.Int64(), qt.Equals, int64(9))
	c.Assert(tr.Root().Cmp(root), qt.Equals, 0)

	want := MustNew(DefaultArity, 2, big.NewInt(0))
	c.Assert(want.UpdateLeaf(3, big.NewInt(9)), qt.IsNil)
	c.Assert(want.UpdateLeaf(4, big.NewInt(1)), qt.IsNil)
	c.Assert(tr.UpdateLeaf(4, big.NewInt(1)), qt.IsNil)
	c.Assert(tr.Root().Cmp(want.Root()), qt.Equals, 0)
}

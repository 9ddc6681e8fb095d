// Package tree implements a sparse fixed-arity Merkle tree hashed with
// Poseidon. Only written nodes are stored; every other node resolves to the
// zero hash of its level, so a depth-8 quinary tree costs memory
// proportional to the populated leaves only.
//
// Levels are numbered from the leaves (level 0) to the root (level depth).
// Node i of level l has parent i/arity at level l+1 and occupies slot
// i%arity of it.
package tree

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"math/big"
	"slices"

	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
)

// DefaultArity is the branching factor used by every protocol tree.
const DefaultArity = 5

// maxLeaves bounds arity^depth so indices fit comfortably in an int.
const maxLeaves = 1 << 40

var (
	// ErrIndexOutOfRange is returned for leaf indices outside [0, capacity).
	ErrIndexOutOfRange = errors.New("tree: leaf index out of range")
	// ErrInvalidShape is returned for unsupported arity or depth values.
	ErrInvalidShape = errors.New("tree: invalid shape")
)

// HashFn compresses the arity children of a node into the node value.
type HashFn func(children ...*big.Int) (*big.Int, error)

// Tree is a sparse Merkle tree. It is not safe for concurrent use.
type Tree struct {
	arity    int
	depth    int
	capacity int
	hashFn   HashFn
	zeros    []*big.Int
	levels   []map[int]*big.Int
}

// New creates an empty tree of the given arity and depth whose leaves
// default to zeroLeaf. Nodes are hashed with Poseidon.
func New(arity, depth int, zeroLeaf *big.Int) (*Tree, error) {
	return NewWithHash(arity, depth, zeroLeaf, poseidon.Hash)
}

// MustNew is New for shapes known to be valid. It panics otherwise.
func MustNew(arity, depth int, zeroLeaf *big.Int) *Tree {
	t, err := New(arity, depth, zeroLeaf)
	if err != nil {
		panic(err)
	}
	return t
}

// NewWithHash creates an empty tree using a custom node hash.
func NewWithHash(arity, depth int, zeroLeaf *big.Int, hashFn HashFn) (*Tree, error) {
	if arity < 2 || arity > poseidon.MaxInputs || depth < 1 {
		return nil, fmt.Errorf("%w: arity %d depth %d", ErrInvalidShape, arity, depth)
	}
	capacity := 1
	for range depth {
		capacity *= arity
		if capacity > maxLeaves {
			return nil, fmt.Errorf("%w: arity %d depth %d exceeds %d leaves", ErrInvalidShape, arity, depth, maxLeaves)
		}
	}
	if zeroLeaf == nil {
		zeroLeaf = big.NewInt(0)
	}
	t := &Tree{
		arity:    arity,
		depth:    depth,
		capacity: capacity,
		hashFn:   hashFn,
		zeros:    make([]*big.Int, depth+1),
		levels:   make([]map[int]*big.Int, depth+1),
	}
	t.zeros[0] = new(big.Int).Set(zeroLeaf)
	for l := 1; l <= depth; l++ {
		children := make([]*big.Int, arity)
		for i := range children {
			children[i] = t.zeros[l-1]
		}
		z, err := hashFn(children...)
		if err != nil {
			return nil, fmt.Errorf("tree: hashing zero level %d: %w", l, err)
		}
		t.zeros[l] = z
	}
	for l := range t.levels {
		t.levels[l] = make(map[int]*big.Int)
	}
	return t, nil
}

// Arity returns the branching factor.
func (t *Tree) Arity() int { return t.arity }

// Depth returns the number of levels above the leaves.
func (t *Tree) Depth() int { return t.depth }

// Capacity returns the number of leaves, arity^depth.
func (t *Tree) Capacity() int { return t.capacity }

// ZeroLeaf returns the default leaf value.
func (t *Tree) ZeroLeaf() *big.Int { return new(big.Int).Set(t.zeros[0]) }

// Zero returns the zero hash of the given level.
func (t *Tree) Zero(level int) *big.Int { return new(big.Int).Set(t.zeros[level]) }

// Root returns the root hash.
func (t *Tree) Root() *big.Int {
	return t.nodeCopy(t.depth, 0)
}

func (t *Tree) node(level, idx int) *big.Int {
	if v, ok := t.levels[level][idx]; ok {
		return v
	}
	return t.zeros[level]
}

// nodeCopy is node for callers outside the tree, which must not alias its
// internal values.
func (t *Tree) nodeCopy(level, idx int) *big.Int {
	return new(big.Int).Set(t.node(level, idx))
}

func (t *Tree) checkIndex(idx int) error {
	if idx < 0 || idx >= t.capacity {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, t.capacity)
	}
	return nil
}

// Leaf returns a copy of the leaf at idx, or the zero leaf if it was never
// written.
func (t *Tree) Leaf(idx int) (*big.Int, error) {
	if err := t.checkIndex(idx); err != nil {
		return nil, err
	}
	return t.nodeCopy(0, idx), nil
}

// Leaves returns a copy of every leaf of the tree, populated or zero.
func (t *Tree) Leaves() []*big.Int {
	out := make([]*big.Int, t.capacity)
	for i := range out {
		out[i] = t.nodeCopy(0, i)
	}
	return out
}

// SparseLeaves returns a copy of the written leaves keyed by index.
func (t *Tree) SparseLeaves() map[int]*big.Int {
	out := make(map[int]*big.Int, len(t.levels[0]))
	for i, v := range t.levels[0] {
		out[i] = new(big.Int).Set(v)
	}
	return out
}

// UpdateLeaf sets the leaf at idx and recomputes its ancestors.
func (t *Tree) UpdateLeaf(idx int, value *big.Int) error {
	if err := t.checkIndex(idx); err != nil {
		return err
	}
	t.levels[0][idx] = new(big.Int).Set(value)
	for l := 1; l <= t.depth; l++ {
		idx /= t.arity
		if err := t.rehash(l, idx); err != nil {
			return err
		}
	}
	return nil
}

// rehash recomputes node idx of level l from its children.
func (t *Tree) rehash(l, idx int) error {
	children := make([]*big.Int, t.arity)
	first := idx * t.arity
	for i := range children {
		children[i] = t.node(l-1, first+i)
	}
	h, err := t.hashFn(children...)
	if err != nil {
		return fmt.Errorf("tree: hashing node %d of level %d: %w", idx, l, err)
	}
	t.levels[l][idx] = h
	return nil
}

// InitLeaves writes leaves[0..n) starting at index 0 and recomputes every
// affected node once per level.
func (t *Tree) InitLeaves(leaves []*big.Int) error {
	return t.SetLeaves(func(yield func(int, *big.Int) bool) {
		for i, v := range leaves {
			if !yield(i, v) {
				return
			}
		}
	})
}

// SetLeaves writes the given (index, value) pairs in bulk.
func (t *Tree) SetLeaves(leaves iter.Seq2[int, *big.Int]) error {
	dirty := map[int]struct{}{}
	for idx, v := range leaves {
		if err := t.checkIndex(idx); err != nil {
			return err
		}
		t.levels[0][idx] = new(big.Int).Set(v)
		dirty[idx/t.arity] = struct{}{}
	}
	for l := 1; l <= t.depth; l++ {
		next := make(map[int]struct{}, len(dirty)/t.arity+1)
		for _, idx := range slices.Sorted(maps.Keys(dirty)) {
			if err := t.rehash(l, idx); err != nil {
				return err
			}
			next[idx/t.arity] = struct{}{}
		}
		dirty = next
	}
	return nil
}

// PathElementOf returns, for every level from the leaves up, the arity-1
// siblings of the node on the path of leaf idx, in slot order.
func (t *Tree) PathElementOf(idx int) ([][]*big.Int, error) {
	if err := t.checkIndex(idx); err != nil {
		return nil, err
	}
	path := make([][]*big.Int, t.depth)
	for l := range t.depth {
		first := idx - idx%t.arity
		siblings := make([]*big.Int, 0, t.arity-1)
		for i := first; i < first+t.arity; i++ {
			if i != idx {
				siblings = append(siblings, t.nodeCopy(l, i))
			}
		}
		path[l] = siblings
		idx /= t.arity
	}
	return path, nil
}

// PathIdxOf returns the slot of the path node at every level, i.e. the
// radix-arity digits of idx from least significant.
func (t *Tree) PathIdxOf(idx int) ([]int, error) {
	if err := t.checkIndex(idx); err != nil {
		return nil, err
	}
	digits := make([]int, t.depth)
	for l := range t.depth {
		digits[l] = idx % t.arity
		idx /= t.arity
	}
	return digits, nil
}

// SubTree returns a tree of the same shape holding only the first n leaves
// of t.
func (t *Tree) SubTree(n int) (*Tree, error) {
	if n < 0 || n > t.capacity {
		return nil, fmt.Errorf("%w: sub tree length %d", ErrIndexOutOfRange, n)
	}
	sub := t.emptyCopy()
	err := sub.SetLeaves(func(yield func(int, *big.Int) bool) {
		for _, idx := range slices.Sorted(maps.Keys(t.levels[0])) {
			if idx >= n {
				return
			}
			if !yield(idx, t.levels[0][idx]) {
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	c := t.emptyCopy()
	for l, nodes := range t.levels {
		for i, v := range nodes {
			c.levels[l][i] = v
		}
	}
	return c
}

func (t *Tree) emptyCopy() *Tree {
	c := &Tree{
		arity:    t.arity,
		depth:    t.depth,
		capacity: t.capacity,
		hashFn:   t.hashFn,
		zeros:    t.zeros,
		levels:   make([]map[int]*big.Int, t.depth+1),
	}
	for l := range c.levels {
		c.levels[l] = make(map[int]*big.Int)
	}
	return c
}

// ComputeRoot folds a leaf with its path elements and path digits into the
// root it proves membership for.
func ComputeRoot(leaf *big.Int, pathElements [][]*big.Int, pathIdx []int, hashFn HashFn) (*big.Int, error) {
	if len(pathElements) != len(pathIdx) {
		return nil, fmt.Errorf("%w: %d path levels and %d digits", ErrInvalidShape, len(pathElements), len(pathIdx))
	}
	if hashFn == nil {
		hashFn = poseidon.Hash
	}
	cur := leaf
	for l, siblings := range pathElements {
		children := make([]*big.Int, 0, len(siblings)+1)
		children = append(children, siblings[:pathIdx[l]]...)
		children = append(children, cur)
		children = append(children, siblings[pathIdx[l]:]...)
		h, err := hashFn(children...)
		if err != nil {
			return nil, err
		}
		cur = h
	}
	return cur, nil
}

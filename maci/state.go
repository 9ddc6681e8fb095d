package maci

import (
	"math/big"

	bjj "github.com/vocdoni/maci-coordinator/crypto/ecc/bjj_iden3"
	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
	"github.com/vocdoni/maci-coordinator/tree"
	"github.com/vocdoni/maci-coordinator/types"
)

// StateLeaf is the state of one voter.
type StateLeaf struct {
	PubKey  *bjj.BJJ
	Balance *big.Int
	VoTree  *tree.Tree
	Nonce   *big.Int
	Voted   bool
	// D1 and D2 hold the deactivation ciphertext assigned at sign-up.
	D1 *bjj.BJJ
	D2 *bjj.BJJ
}

func (m *MACI) emptyState() *StateLeaf {
	zero := big.NewInt(0)
	return &StateLeaf{
		PubKey:  bjj.FromXY(zero, zero),
		Balance: big.NewInt(0),
		VoTree:  m.emptyVoTree.Clone(),
		Nonce:   big.NewInt(0),
		D1:      bjj.FromXY(zero, zero),
		D2:      bjj.FromXY(zero, zero),
	}
}

// stateLeaf returns the stored leaf or a fresh empty one, which is not
// stored until it is written back.
func (m *MACI) stateLeaf(idx int) *StateLeaf {
	if s, ok := m.stateLeaves[idx]; ok {
		return s
	}
	return m.emptyState()
}

func (s *StateLeaf) clone() *StateLeaf {
	return &StateLeaf{
		PubKey:  bjj.FromXY(s.PubKey.Point()),
		Balance: new(big.Int).Set(s.Balance),
		VoTree:  s.VoTree.Clone(),
		Nonce:   new(big.Int).Set(s.Nonce),
		Voted:   s.Voted,
		D1:      bjj.FromXY(s.D1.Point()),
		D2:      bjj.FromXY(s.D2.Point()),
	}
}

// voRootOrZero is the vote option root committed in the leaf: zero until
// the voter casts a vote.
func (s *StateLeaf) voRootOrZero() *big.Int {
	if s.Voted {
		return s.VoTree.Root()
	}
	return big.NewInt(0)
}

// vector returns the leaf preimage as laid out in circuit inputs:
// [pk.x, pk.y, balance, voRoot, nonce] followed, with deactivation, by
// [d1.x, d1.y, d2.x, d2.y, 0].
func (s *StateLeaf) vector(withDeactivation bool) []*big.Int {
	out := append(s.PubKey.BigInts(), new(big.Int).Set(s.Balance), s.voRootOrZero(), new(big.Int).Set(s.Nonce))
	if withDeactivation {
		out = append(out, s.D1.BigInts()...)
		out = append(out, s.D2.BigInts()...)
		out = append(out, big.NewInt(0))
	}
	return out
}

// hash commits the leaf: H(H(vector[0:5]), H(vector[5:10])) with
// deactivation, H(vector[0:5]) without.
func (s *StateLeaf) hash(withDeactivation bool) *big.Int {
	v := s.vector(withDeactivation)
	base := poseidon.MustHash(v[:5]...)
	if !withDeactivation {
		return base
	}
	return poseidon.MustHash(base, poseidon.MustHash(v[5:]...))
}

// emptyLeafHash is the state tree zero value: the hash of the empty leaf.
func (m *MACI) emptyLeafHash() *big.Int {
	zero := big.NewInt(0)
	zeroHash5 := poseidon.MustHash(zero, zero, zero, zero, zero)
	if !m.cfg.Deactivation {
		return zeroHash5
	}
	return poseidon.MustHash(zeroHash5, zeroHash5)
}

func (m *MACI) setStateLeaf(idx int, s *StateLeaf) error {
	if err := m.stateTree.UpdateLeaf(idx, s.hash(m.cfg.Deactivation)); err != nil {
		return err
	}
	m.stateLeaves[idx] = s
	return nil
}

func pointFrom(xy [2]*big.Int) *bjj.BJJ {
	return bjj.FromXY(orZero(xy[0]), orZero(xy[1]))
}

func wire(x *big.Int) *types.BigInt {
	if x == nil {
		return nil
	}
	return types.FromBig(x)
}

func wireSlice(xs []*big.Int) []*types.BigInt {
	return types.BigInts(xs)
}

func wirePair(xy [2]*big.Int) []*types.BigInt {
	return types.BigInts(xy[:])
}

func wirePoint(p *bjj.BJJ) []*types.BigInt {
	return types.BigInts(p.BigInts())
}

package maci

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-coordinator/crypto"
	bjj "github.com/vocdoni/maci-coordinator/crypto/ecc/bjj_iden3"
	"github.com/vocdoni/maci-coordinator/crypto/elgamal"
	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
	"github.com/vocdoni/maci-coordinator/crypto/keys"
	"github.com/vocdoni/maci-coordinator/tree"
	"github.com/vocdoni/maci-coordinator/types"
)

// DefaultAddKeyTreeDepth is the deactivation tree depth of the addKey
// circuit.
const DefaultAddKeyTreeDepth = 4

// nullifierDomain separates addKey nullifiers from other hashes of the
// voter private key.
var nullifierDomain, _ = new(big.Int).SetString("1444992409218394441042", 10)

// AddKeyRequest is what a deactivated voter needs to reactivate.
type AddKeyRequest struct {
	CoordPubKey *bjj.BJJ
	// OldKey is the deactivated keypair.
	OldKey *keys.Keypair
	// Deactivates is the full list of published deactivation records.
	Deactivates []DeactivateLeaf
	// Index of the voter's own record in Deactivates.
	Index int
	// Depth of the deactivation tree; 0 selects DefaultAddKeyTreeDepth.
	Depth int
	// RandomVal rerandomizes the record; nil draws a random one.
	RandomVal *big.Int
}

// Nullifier returns H(formattedPrivKey, domain), which the contract records
// so each deactivation record reactivates a single key.
func Nullifier(oldKey *keys.Keypair) (*big.Int, error) {
	return poseidon.Hash(oldKey.FormattedPrivKey, nullifierDomain)
}

// GenAddKeyInput builds the addKey witness: it proves that the rerandomized
// ciphertext (d1, d2) derives from some record of the deactivation tree and
// that the voter owns the old key, without telling which record it is.
func GenAddKeyInput(req *AddKeyRequest) (*AddKeyInput, error) {
	if req.OldKey == nil || req.CoordPubKey == nil {
		return nil, fmt.Errorf("%w: missing key", ErrInvalidInput)
	}
	if req.Index < 0 || req.Index >= len(req.Deactivates) {
		return nil, fmt.Errorf("%w: deactivation index %d out of %d records", ErrInvalidInput, req.Index, len(req.Deactivates))
	}
	depth := req.Depth
	if depth == 0 {
		depth = DefaultAddKeyTreeDepth
	}
	randomVal := req.RandomVal
	if randomVal == nil {
		var err error
		if randomVal, err = keys.RandomKey(); err != nil {
			return nil, err
		}
	}

	record := req.Deactivates[req.Index]
	ct := elgamal.Rerandomize(req.CoordPubKey, elgamal.FromCoordinates(record.Ciphertext()), randomVal)
	d := ct.Coordinates()
	nullifier, err := Nullifier(req.OldKey)
	if err != nil {
		return nil, err
	}

	t, err := tree.New(tree.DefaultArity, depth, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	leaves := make([]*big.Int, len(req.Deactivates))
	for i, r := range req.Deactivates {
		if leaves[i], err = r.Hash(); err != nil {
			return nil, err
		}
	}
	if err := t.InitLeaves(leaves); err != nil {
		return nil, err
	}
	path, err := t.PathElementOf(req.Index)
	if err != nil {
		return nil, err
	}
	coordHash, err := poseidon.Hash(req.CoordPubKey.BigInts()...)
	if err != nil {
		return nil, err
	}
	inputHash := crypto.InputHash(t.Root(), coordHash, nullifier, d[0], d[1], d[2], d[3])

	return &AddKeyInput{
		InputHash:                  wire(inputHash),
		CoordPubKey:                wirePoint(req.CoordPubKey),
		DeactivateRoot:             wire(t.Root()),
		DeactivateIndex:            req.Index,
		DeactivateLeaf:             wire(leaves[req.Index]),
		C1:                         wireSlice(record[0:2]),
		C2:                         wireSlice(record[2:4]),
		RandomVal:                  wire(randomVal),
		D1:                         wireSlice(d[0:2]),
		D2:                         wireSlice(d[2:4]),
		DeactivateLeafPathElements: types.BigIntMatrix(path),
		Nullifier:                  wire(nullifier),
		OldPrivateKey:              wire(req.OldKey.FormattedPrivKey),
	}, nil
}

// SignUpCiphertext returns [d1.x, d1.y, d2.x, d2.y], the deactivation
// ciphertext of the new key's sign-up.
func (in *AddKeyInput) SignUpCiphertext() [4]*big.Int {
	return [4]*big.Int{
		in.D1[0].MathBigInt(), in.D1[1].MathBigInt(),
		in.D2[0].MathBigInt(), in.D2[1].MathBigInt(),
	}
}

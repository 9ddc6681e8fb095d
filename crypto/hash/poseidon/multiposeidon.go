// Package poseidon wraps the iden3 Poseidon implementation with the helpers
// the coordinator needs: fixed arity hashing that never fails on valid
// inputs, chunked hashing of long vectors, and the Poseidon sponge cipher
// used to encrypt voter commands.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// MaxInputs is the widest input the iden3 Poseidon supports.
const MaxInputs = 16

// Hash computes the Poseidon hash of 1 to 16 field elements.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 || len(inputs) > MaxInputs {
		return nil, fmt.Errorf("poseidon: invalid number of inputs %d", len(inputs))
	}
	return poseidon.Hash(inputs)
}

// MustHash is Hash for call sites whose inputs are known to be well formed
// field elements of a valid arity. It panics otherwise.
func MustHash(inputs ...*big.Int) *big.Int {
	h, err := Hash(inputs...)
	if err != nil {
		panic(err)
	}
	return h
}

// MultiPoseidon hashes an arbitrary number of inputs by chunking them into
// groups of 16 and hashing the chunk digests recursively.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) <= MaxInputs {
		return poseidon.Hash(inputs)
	}
	hashes := make([]*big.Int, 0, (len(inputs)+MaxInputs-1)/MaxInputs)
	for i := 0; i < len(inputs); i += MaxInputs {
		h, err := poseidon.Hash(inputs[i:min(i+MaxInputs, len(inputs))])
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return MultiPoseidon(hashes...)
}

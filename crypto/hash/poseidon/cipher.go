package poseidon

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/vocdoni/maci-coordinator/crypto"
)

// ErrDecrypt is returned when a ciphertext fails the padding or
// authentication check of the sponge cipher.
var ErrDecrypt = errors.New("poseidon: invalid ciphertext")

const (
	cipherRate  = 3
	cipherWidth = cipherRate + 1
)

// two128 separates the nonce from the message length in the initial state.
var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

// permute applies the Poseidon permutation with width 4 to state.
func permute(state []*big.Int) ([]*big.Int, error) {
	return poseidon.HashWithStateEx(state[1:], state[0], cipherWidth)
}

func initialState(key [2]*big.Int, nonce *big.Int, length int) ([]*big.Int, error) {
	if nonce.Sign() < 0 || nonce.Cmp(two128) >= 0 {
		return nil, fmt.Errorf("poseidon: nonce out of range")
	}
	lenTerm := new(big.Int).Mul(big.NewInt(int64(length)), two128)
	return []*big.Int{
		big.NewInt(0),
		crypto.BigToFF(crypto.SNARKField, key[0]),
		crypto.BigToFF(crypto.SNARKField, key[1]),
		crypto.BigToFF(crypto.SNARKField, lenTerm.Add(lenTerm, nonce)),
	}, nil
}

// Encrypt encrypts msg with the Poseidon sponge cipher under the shared key.
// The ciphertext has ceil(len(msg)/3)*3 + 1 elements, the last one being the
// authentication tag.
func Encrypt(msg []*big.Int, key [2]*big.Int, nonce *big.Int) ([]*big.Int, error) {
	state, err := initialState(key, nonce, len(msg))
	if err != nil {
		return nil, err
	}
	padded := make([]*big.Int, 0, len(msg)+cipherRate)
	for _, m := range msg {
		padded = append(padded, crypto.BigToFF(crypto.SNARKField, m))
	}
	for len(padded)%cipherRate != 0 {
		padded = append(padded, big.NewInt(0))
	}
	ciphertext := make([]*big.Int, 0, len(padded)+1)
	for i := 0; i < len(padded); i += cipherRate {
		if state, err = permute(state); err != nil {
			return nil, err
		}
		for j := range cipherRate {
			s := new(big.Int).Add(state[j+1], padded[i+j])
			state[j+1] = s.Mod(s, crypto.SNARKField)
			ciphertext = append(ciphertext, state[j+1])
		}
	}
	if state, err = permute(state); err != nil {
		return nil, err
	}
	return append(ciphertext, state[1]), nil
}

// Decrypt recovers a plaintext of the given length. It returns ErrDecrypt
// when the ciphertext was not produced with the same key and nonce.
func Decrypt(ciphertext []*big.Int, key [2]*big.Int, nonce *big.Int, length int) ([]*big.Int, error) {
	blocks := (length + cipherRate - 1) / cipherRate
	if length <= 0 || len(ciphertext) != blocks*cipherRate+1 {
		return nil, fmt.Errorf("%w: expected %d elements, got %d", ErrDecrypt, blocks*cipherRate+1, len(ciphertext))
	}
	state, err := initialState(key, nonce, length)
	if err != nil {
		return nil, err
	}
	msg := make([]*big.Int, 0, blocks*cipherRate)
	for i := range blocks {
		if state, err = permute(state); err != nil {
			return nil, err
		}
		for j := range cipherRate {
			ct := crypto.BigToFF(crypto.SNARKField, ciphertext[i*cipherRate+j])
			msg = append(msg, crypto.Sub(ct, state[j+1]))
			state[j+1] = ct
		}
	}
	for _, pad := range msg[length:] {
		if pad.Sign() != 0 {
			return nil, fmt.Errorf("%w: non-zero padding", ErrDecrypt)
		}
	}
	if state, err = permute(state); err != nil {
		return nil, err
	}
	if crypto.BigToFF(crypto.SNARKField, ciphertext[len(ciphertext)-1]).Cmp(state[1]) != 0 {
		return nil, fmt.Errorf("%w: authentication tag mismatch", ErrDecrypt)
	}
	return msg[:length], nil
}

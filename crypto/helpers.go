// Package crypto provides the field helpers shared by the coordinator: the
// BN254 scalar field the circuits work over and the sha256 public input
// commitment.
package crypto

import (
	"crypto/sha256"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
)

// FieldElementLen is the width in bytes of an abi encoded uint256.
const FieldElementLen = 32

// SNARKField is the BN254 scalar field modulus. BabyJubJub coordinates and
// every circuit signal live in this field.
var SNARKField = fr.Modulus()

// BigToFF function returns the finite field representation of the big.Int
// provided. It uses the curve scalar field to represent the provided number.
func BigToFF(field, iv *big.Int) *big.Int {
	z := big.NewInt(0)
	if c := iv.Cmp(field); c == 0 {
		return z
	} else if c != 1 && iv.Cmp(z) != -1 {
		return iv
	}
	return z.Mod(iv, field)
}

// Sub returns (a - b) mod SNARKField.
func Sub(a, b *big.Int) *big.Int {
	z := new(big.Int).Sub(a, b)
	return z.Mod(z, SNARKField)
}

// PackUint256 encodes the values as consecutive big endian 32 byte words,
// the same layout as abi.encodePacked(uint256...). Values are reduced into
// the field first; negative values are not expected.
func PackUint256(values ...*big.Int) []byte {
	buf := make([]byte, 0, len(values)*FieldElementLen)
	for _, v := range values {
		buf = append(buf, common.LeftPadBytes(BigToFF(SNARKField, v).Bytes(), FieldElementLen)...)
	}
	return buf
}

// InputHash computes the public input commitment of a batch:
// sha256(abi.encodePacked(values)) mod SNARKField.
func InputHash(values ...*big.Int) *big.Int {
	digest := sha256.Sum256(PackUint256(values...))
	h := new(big.Int).SetBytes(digest[:])
	return h.Mod(h, SNARKField)
}

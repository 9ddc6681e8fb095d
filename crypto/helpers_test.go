package crypto

import (
	"crypto/sha256"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPackUint256(t *testing.T) {
	c := qt.New(t)
	packed := PackUint256(big.NewInt(1), big.NewInt(256))
	c.Assert(packed, qt.HasLen, 64)
	c.Assert(packed[31], qt.Equals, byte(1))
	c.Assert(packed[62], qt.Equals, byte(1))
	c.Assert(packed[63], qt.Equals, byte(0))
}

func TestInputHash(t *testing.T) {
	c := qt.New(t)
	values := []*big.Int{big.NewInt(5), big.NewInt(1 << 32), big.NewInt(0)}
	h := InputHash(values...)
	c.Assert(h.Cmp(SNARKField), qt.Equals, -1)

	digest := sha256.Sum256(PackUint256(values...))
	want := new(big.Int).Mod(new(big.Int).SetBytes(digest[:]), SNARKField)
	c.Assert(h.Cmp(want), qt.Equals, 0)

	// order matters
	other := InputHash(values[2], values[1], values[0])
	c.Assert(other.Cmp(h), qt.Not(qt.Equals), 0)
}

func TestFieldHelpers(t *testing.T) {
	c := qt.New(t)
	c.Assert(BigToFF(SNARKField, SNARKField).Sign(), qt.Equals, 0)
	over := new(big.Int).Add(SNARKField, big.NewInt(7))
	c.Assert(BigToFF(SNARKField, over).Int64(), qt.Equals, int64(7))
	minusOne := Sub(big.NewInt(0), big.NewInt(1))
	c.Assert(minusOne.Cmp(new(big.Int).Sub(SNARKField, big.NewInt(1))), qt.Equals, 0)
}

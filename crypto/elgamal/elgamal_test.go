package elgamal

import (
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	bjj "github.com/vocdoni/maci-coordinator/crypto/ecc/bjj_iden3"
	"github.com/vocdoni/maci-coordinator/crypto/keys"
)

func TestEncryptDecrypt(t *testing.T) {
	c := qt.New(t)
	coord := keys.MustKeypair(big.NewInt(111111))

	for _, plaintext := range []int64{0, 1, 2, 123, 1 << 40} {
		k, err := RandK()
		c.Assert(err, qt.IsNil)
		ct, err := Encrypt(coord.PubKey, big.NewInt(plaintext), k)
		c.Assert(err, qt.IsNil)
		got, err := Decrypt(coord.FormattedPrivKey, ct)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Int64(), qt.Equals, plaintext)
	}

	_, err := Decrypt(nil, &Ciphertext{})
	c.Assert(errors.Is(err, ErrInvalidPrivateKey), qt.IsTrue)
}

func TestRerandomize(t *testing.T) {
	c := qt.New(t)
	coord := keys.MustKeypair(big.NewInt(111111))

	ct, err := Encrypt(coord.PubKey, big.NewInt(987654321), big.NewInt(5555))
	c.Assert(err, qt.IsNil)
	re := Rerandomize(coord.PubKey, ct, big.NewInt(7777))
	c.Assert(re.C1.Equal(ct.C1), qt.IsFalse)
	c.Assert(re.C2.Equal(ct.C2), qt.IsFalse)

	a, err := Decrypt(coord.FormattedPrivKey, ct)
	c.Assert(err, qt.IsNil)
	b, err := Decrypt(coord.FormattedPrivKey, re)
	c.Assert(err, qt.IsNil)
	c.Assert(a.Cmp(b), qt.Equals, 0)
}

func TestEncryptOdevity(t *testing.T) {
	c := qt.New(t)
	coord := keys.MustKeypair(big.NewInt(111111))

	for i := int64(0); i < 8; i++ {
		seed := keys.StaticRandomKey(coord.PrivKey, big.NewInt(20040), big.NewInt(i))
		for _, bit := range []bool{false, true} {
			ct, err := EncryptOdevity(bit, coord.PubKey, seed)
			c.Assert(err, qt.IsNil)
			odd, err := IsOdd(coord.FormattedPrivKey, ct)
			c.Assert(err, qt.IsNil)
			c.Assert(odd, qt.Equals, bit, qt.Commentf("seed %d", i))

			// the recorded increment maps the point back to the constant
			v, err := Decrypt(coord.FormattedPrivKey, ct)
			c.Assert(err, qt.IsNil)
			c.Assert(v.Int64(), qt.Equals, int64(123))

			// the parity survives rerandomization
			re := Rerandomize(coord.PubKey, ct, big.NewInt(99))
			odd, err = IsOdd(coord.FormattedPrivKey, re)
			c.Assert(err, qt.IsNil)
			c.Assert(odd, qt.Equals, bit)
		}
	}
}

func TestEncryptOdevityExhausted(t *testing.T) {
	c := qt.New(t)
	coord := keys.MustKeypair(big.NewInt(111111))
	_, err := encryptOdevity(true, coord.PubKey, big.NewInt(1), 0)
	c.Assert(errors.Is(err, ErrOdevitySearchExhausted), qt.IsTrue)
}

func TestEmptyCiphertextIsEven(t *testing.T) {
	c := qt.New(t)
	coord := keys.MustKeypair(big.NewInt(111111))
	zero := big.NewInt(0)
	ct := FromCoordinates([4]*big.Int{zero, zero, zero, zero})
	odd, err := IsOdd(coord.FormattedPrivKey, ct)
	c.Assert(err, qt.IsNil)
	c.Assert(odd, qt.IsFalse)

	coords := ct.Coordinates()
	c.Assert(coords[0].Sign(), qt.Equals, 0)
	c.Assert(ct.C1.(*bjj.BJJ).IsEmpty(), qt.IsTrue)
}

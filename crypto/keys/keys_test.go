package keys

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"

	bjj "github.com/vocdoni/maci-coordinator/crypto/ecc/bjj_iden3"
)

func TestKeypair(t *testing.T) {
	c := qt.New(t)
	k, err := NewKeypair(big.NewInt(111111))
	c.Assert(err, qt.IsNil)
	c.Assert(k.PubKey.InCurve(), qt.IsTrue)

	// the public key is the formatted scalar times the generator
	expected := bjj.New()
	expected.ScalarBaseMult(k.FormattedPrivKey)
	c.Assert(k.PubKey.Equal(expected), qt.IsTrue)

	again := MustKeypair(big.NewInt(111111))
	c.Assert(again.PubKey.Equal(k.PubKey), qt.IsTrue)

	_, err = NewKeypair(big.NewInt(-1))
	c.Assert(err, qt.ErrorMatches, "invalid private key")
}

func TestECDHIsSymmetric(t *testing.T) {
	c := qt.New(t)
	a := MustKeypair(big.NewInt(222222))
	b, err := RandomKeypair()
	c.Assert(err, qt.IsNil)
	c.Assert(a.SharedKey(b.PubKey).Equal(b.SharedKey(a.PubKey)), qt.IsTrue)
}

func TestSignVerify(t *testing.T) {
	c := qt.New(t)
	k := MustKeypair(big.NewInt(333333))
	msg := big.NewInt(42)
	sig := k.Sign(msg)
	c.Assert(Verify(k.PubKey, msg, sig), qt.IsTrue)
	c.Assert(Verify(k.PubKey, big.NewInt(43), sig), qt.IsFalse)

	other := MustKeypair(big.NewInt(444444))
	c.Assert(Verify(other.PubKey, msg, sig), qt.IsFalse)
	c.Assert(Verify(k.PubKey, msg, nil), qt.IsFalse)
}

func TestStaticRandomKey(t *testing.T) {
	c := qt.New(t)
	a := StaticRandomKey(big.NewInt(1), big.NewInt(20040), big.NewInt(1))
	b := StaticRandomKey(big.NewInt(1), big.NewInt(20040), big.NewInt(1))
	d := StaticRandomKey(big.NewInt(1), big.NewInt(20040), big.NewInt(2))
	c.Assert(a.Cmp(b), qt.Equals, 0)
	c.Assert(a.Cmp(d), qt.Not(qt.Equals), 0)
}

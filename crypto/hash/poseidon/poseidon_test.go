package poseidon

import (
	"errors"
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHash(t *testing.T) {
	c := qt.New(t)
	h1, err := Hash(big.NewInt(1), big.NewInt(2))
	c.Assert(err, qt.IsNil)
	c.Assert(MustHash(big.NewInt(1), big.NewInt(2)).Cmp(h1), qt.Equals, 0)

	_, err = Hash()
	c.Assert(err, qt.ErrorMatches, "poseidon: invalid number of inputs 0")

	// well known vector for poseidon([1, 2])
	want, _ := new(big.Int).SetString("7853200120776062878684798364095072458815029376092732009249414926327459813530", 10)
	c.Assert(h1.Cmp(want), qt.Equals, 0)
}

func TestMultiPoseidon(t *testing.T) {
	c := qt.New(t)
	inputs := make([]*big.Int, 40)
	for i := range inputs {
		inputs[i] = big.NewInt(int64(i))
	}
	h, err := MultiPoseidon(inputs...)
	c.Assert(err, qt.IsNil)

	a := MustHash(inputs[:16]...)
	b := MustHash(inputs[16:32]...)
	d := MustHash(inputs[32:]...)
	c.Assert(h.Cmp(MustHash(a, b, d)), qt.Equals, 0)
}

func TestCipherRoundTrip(t *testing.T) {
	c := qt.New(t)
	key := [2]*big.Int{big.NewInt(123456789), big.NewInt(987654321)}
	msg := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4), big.NewInt(5), big.NewInt(6)}

	ct, err := Encrypt(msg, key, big.NewInt(0))
	c.Assert(err, qt.IsNil)
	c.Assert(ct, qt.HasLen, 7)

	pt, err := Decrypt(ct, key, big.NewInt(0), len(msg))
	c.Assert(err, qt.IsNil)
	for i := range msg {
		c.Assert(pt[i].Cmp(msg[i]), qt.Equals, 0, qt.Commentf("element %d", i))
	}

	// a plaintext whose length is not a multiple of the rate is padded
	ct, err = Encrypt(msg[:4], key, big.NewInt(5))
	c.Assert(err, qt.IsNil)
	c.Assert(ct, qt.HasLen, 7)
	pt, err = Decrypt(ct, key, big.NewInt(5), 4)
	c.Assert(err, qt.IsNil)
	c.Assert(pt, qt.HasLen, 4)
}

func TestCipherRejectsTampering(t *testing.T) {
	c := qt.New(t)
	key := [2]*big.Int{big.NewInt(11), big.NewInt(22)}
	msg := []*big.Int{big.NewInt(7), big.NewInt(8), big.NewInt(9), big.NewInt(10), big.NewInt(11), big.NewInt(12)}
	ct, err := Encrypt(msg, key, big.NewInt(0))
	c.Assert(err, qt.IsNil)

	wrongKey := [2]*big.Int{big.NewInt(11), big.NewInt(23)}
	_, err = Decrypt(ct, wrongKey, big.NewInt(0), len(msg))
	c.Assert(errors.Is(err, ErrDecrypt), qt.IsTrue)

	tampered := append([]*big.Int{}, ct...)
	tampered[2] = new(big.Int).Add(tampered[2], big.NewInt(1))
	_, err = Decrypt(tampered, key, big.NewInt(0), len(msg))
	c.Assert(errors.Is(err, ErrDecrypt), qt.IsTrue)

	_, err = Decrypt(ct[:6], key, big.NewInt(0), len(msg))
	c.Assert(errors.Is(err, ErrDecrypt), qt.IsTrue)
}

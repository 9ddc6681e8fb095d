// Package elgamal implements the additive ElGamal variant used for vote
// deactivation: plaintexts are encoded as curve points through the x
// coordinate of a random keypair, so any field element can be encrypted and
// decryption needs no discrete log.
package elgamal

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/maci-coordinator/crypto"
	"github.com/vocdoni/maci-coordinator/crypto/ecc"
	bjj "github.com/vocdoni/maci-coordinator/crypto/ecc/bjj_iden3"
	"github.com/vocdoni/maci-coordinator/crypto/keys"
)

// MaxOdevityAttempts bounds the parity search of EncryptOdevity. Each
// attempt matches with probability 1/2.
const MaxOdevityAttempts = 256

// odevityPlaintext is the value encoded by parity ciphertexts. Only the
// parity of the point x coordinate carries information.
var odevityPlaintext = big.NewInt(123)

// Ciphertext is an ElGamal ciphertext (c1, c2) plus the x increment needed
// to map the decrypted point back to the plaintext. Ciphertexts stored in
// state leaves and deactivation leaves carry no increment.
type Ciphertext struct {
	C1         ecc.Point
	C2         ecc.Point
	XIncrement *big.Int
}

// Message is a plaintext encoded as a curve point.
type Message struct {
	Point      ecc.Point
	XIncrement *big.Int
}

// FromCoordinates builds a ciphertext without increment from
// [c1.x, c1.y, c2.x, c2.y].
func FromCoordinates(c [4]*big.Int) *Ciphertext {
	return &Ciphertext{
		C1:         bjj.FromXY(c[0], c[1]),
		C2:         bjj.FromXY(c[2], c[3]),
		XIncrement: big.NewInt(0),
	}
}

// Coordinates returns [c1.x, c1.y, c2.x, c2.y].
func (ct *Ciphertext) Coordinates() [4]*big.Int {
	c1x, c1y := ct.C1.Point()
	c2x, c2y := ct.C2.Point()
	return [4]*big.Int{c1x, c1y, c2x, c2y}
}

// RandK returns a random encryption scalar.
func RandK() (*big.Int, error) {
	return keys.RandomKey()
}

// EncodeMessage encodes plaintext against the keypair derived from
// encodingKey: the point is the keypair public key and the increment is
// (point.x - plaintext) mod p.
func EncodeMessage(plaintext, encodingKey *big.Int) (*Message, error) {
	pub, err := keys.PubKeyPoint(encodingKey)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	x, _ := pub.Point()
	return &Message{Point: pub, XIncrement: crypto.Sub(x, plaintext)}, nil
}

// Encrypt encrypts plaintext under pubKey with randomness k, encoding it
// against a fresh random keypair.
func Encrypt(pubKey ecc.Point, plaintext, k *big.Int) (*Ciphertext, error) {
	encodingKey, err := keys.RandomKey()
	if err != nil {
		return nil, err
	}
	msg, err := EncodeMessage(plaintext, encodingKey)
	if err != nil {
		return nil, err
	}
	return EncryptMessage(pubKey, msg, k), nil
}

// EncryptMessage computes (c1 = k*G, c2 = M + k*pubKey).
func EncryptMessage(pubKey ecc.Point, msg *Message, k *big.Int) *Ciphertext {
	c1 := pubKey.New()
	c1.ScalarBaseMult(k)
	s := pubKey.New()
	s.ScalarMult(pubKey, k)
	c2 := pubKey.New()
	c2.Add(msg.Point, s)
	return &Ciphertext{C1: c1, C2: c2, XIncrement: new(big.Int).Set(msg.XIncrement)}
}

// DecryptPoint recovers M = c2 - privKey*c1.
func DecryptPoint(formattedPrivKey *big.Int, ct *Ciphertext) ecc.Point {
	tmp := ct.C1.New()
	tmp.ScalarMult(ct.C1, formattedPrivKey)
	tmp.Neg(tmp)
	m := ct.C2.New()
	m.Add(tmp, ct.C2)
	return m
}

// Decrypt recovers the plaintext (M.x - xIncrement) mod p. A nil increment
// is treated as zero, which yields the raw point x coordinate.
func Decrypt(formattedPrivKey *big.Int, ct *Ciphertext) (*big.Int, error) {
	if formattedPrivKey == nil || formattedPrivKey.Sign() <= 0 {
		return nil, ErrInvalidPrivateKey
	}
	x, _ := DecryptPoint(formattedPrivKey, ct).Point()
	inc := ct.XIncrement
	if inc == nil {
		inc = big.NewInt(0)
	}
	return crypto.Sub(x, inc), nil
}

// IsOdd decrypts a ciphertext without increment and reports the parity of
// the recovered x coordinate. The empty ciphertext decrypts to 0 (even).
func IsOdd(formattedPrivKey *big.Int, ct *Ciphertext) (bool, error) {
	x, err := Decrypt(formattedPrivKey, &Ciphertext{C1: ct.C1, C2: ct.C2})
	if err != nil {
		return false, err
	}
	return x.Bit(0) == 1, nil
}

// Rerandomize returns (z*G + c1, z*pubKey + c2), which decrypts to the same
// plaintext and cannot be linked to ct without the private key.
func Rerandomize(pubKey ecc.Point, ct *Ciphertext, z *big.Int) *Ciphertext {
	d1 := pubKey.New()
	d1.ScalarBaseMult(z)
	d1.Add(d1, ct.C1)
	d2 := pubKey.New()
	d2.ScalarMult(pubKey, z)
	d2.Add(d2, ct.C2)
	inc := big.NewInt(0)
	if ct.XIncrement != nil {
		inc.Set(ct.XIncrement)
	}
	return &Ciphertext{C1: d1, C2: d2, XIncrement: inc}
}

// EncryptOdevity encrypts a point whose x coordinate parity equals isOdd.
// Encoding keys seed, seed+1, ... are tried in order; the encryption
// randomness is seed itself.
func EncryptOdevity(isOdd bool, pubKey ecc.Point, seed *big.Int) (*Ciphertext, error) {
	return encryptOdevity(isOdd, pubKey, seed, MaxOdevityAttempts)
}

func encryptOdevity(isOdd bool, pubKey ecc.Point, seed *big.Int, attempts int) (*Ciphertext, error) {
	want := uint(0)
	if isOdd {
		want = 1
	}
	for i := range attempts {
		msg, err := EncodeMessage(odevityPlaintext, new(big.Int).Add(seed, big.NewInt(int64(i))))
		if err != nil {
			return nil, err
		}
		x, _ := msg.Point.Point()
		if x.Bit(0) == want {
			return EncryptMessage(pubKey, msg, seed), nil
		}
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrOdevitySearchExhausted, attempts)
}

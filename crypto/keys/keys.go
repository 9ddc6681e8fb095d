// Package keys implements coordinator and voter keypairs over BabyJubJub:
// key formatting, ECDH shared keys, deterministic key derivation and
// EdDSA-Poseidon signatures.
package keys

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"

	"github.com/vocdoni/maci-coordinator/crypto"
	bjj "github.com/vocdoni/maci-coordinator/crypto/ecc/bjj_iden3"
	"github.com/vocdoni/maci-coordinator/crypto/hash/poseidon"
)

// Keypair holds a raw private key, its formatted scalar and the public key.
//
// The raw key is a field element encoded as 32 big endian bytes into an
// iden3 babyjub.PrivateKey; the formatted scalar is derived from it by
// blake512, pruning and a right shift, and PubKey = FormattedPrivKey * Base8.
type Keypair struct {
	PrivKey          *big.Int
	FormattedPrivKey *big.Int
	PubKey           *bjj.BJJ

	raw babyjub.PrivateKey
}

// Signature is an EdDSA-Poseidon signature.
type Signature struct {
	R8 *bjj.BJJ
	S  *big.Int
}

// NewKeypair derives the keypair of the raw private key priv.
func NewKeypair(priv *big.Int) (*Keypair, error) {
	if priv == nil || priv.Sign() < 0 || priv.BitLen() > 256 {
		return nil, fmt.Errorf("invalid private key")
	}
	var raw babyjub.PrivateKey
	priv.FillBytes(raw[:])
	return &Keypair{
		PrivKey:          new(big.Int).Set(priv),
		FormattedPrivKey: raw.Scalar().BigInt(),
		PubKey:           bjj.FromIden3(raw.Public().Point()),
		raw:              raw,
	}, nil
}

// MustKeypair is NewKeypair for keys known to be valid. It panics otherwise.
func MustKeypair(priv *big.Int) *Keypair {
	k, err := NewKeypair(priv)
	if err != nil {
		panic(err)
	}
	return k
}

// RandomKey returns a uniformly random element of the SNARK field.
func RandomKey() (*big.Int, error) {
	k, err := rand.Int(rand.Reader, crypto.SNARKField)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return k, nil
}

// RandomKeypair generates a keypair from a random private key.
func RandomKeypair() (*Keypair, error) {
	priv, err := RandomKey()
	if err != nil {
		return nil, err
	}
	return NewKeypair(priv)
}

// PubKeyPoint returns Base8 * the formatted scalar of the raw key priv.
func PubKeyPoint(priv *big.Int) (*bjj.BJJ, error) {
	k, err := NewKeypair(priv)
	if err != nil {
		return nil, err
	}
	return k.PubKey, nil
}

// SharedKey computes the ECDH shared key with pub: pub * FormattedPrivKey.
func (k *Keypair) SharedKey(pub *bjj.BJJ) *bjj.BJJ {
	return ECDH(k.FormattedPrivKey, pub)
}

// ECDH multiplies pub by the formatted private scalar.
func ECDH(formattedPriv *big.Int, pub *bjj.BJJ) *bjj.BJJ {
	shared := bjj.New()
	shared.ScalarMult(pub, formattedPriv)
	return shared.(*bjj.BJJ)
}

// PubKeyHash returns H(pub.x, pub.y).
func (k *Keypair) PubKeyHash() *big.Int {
	return poseidon.MustHash(k.PubKey.BigInts()...)
}

// Sign produces an EdDSA-Poseidon signature of msg, which must be a field
// element.
func (k *Keypair) Sign(msg *big.Int) *Signature {
	sig := k.raw.SignPoseidon(msg)
	return &Signature{R8: bjj.FromIden3(sig.R8), S: new(big.Int).Set(sig.S)}
}

// Verify checks an EdDSA-Poseidon signature of msg against pub.
func Verify(pub *bjj.BJJ, msg *big.Int, sig *Signature) bool {
	if pub == nil || sig == nil || sig.R8 == nil || sig.S == nil {
		return false
	}
	pk := babyjub.PublicKey(*pub.Iden3())
	return pk.VerifyPoseidon(msg, &babyjub.Signature{R8: sig.R8.Iden3(), S: new(big.Int).Set(sig.S)})
}

// StaticRandomKey derives a deterministic pseudo random field element from
// a private key, a domain salt and an index: H(priv, salt, index).
func StaticRandomKey(priv, salt, index *big.Int) *big.Int {
	return poseidon.MustHash(
		crypto.BigToFF(crypto.SNARKField, priv),
		crypto.BigToFF(crypto.SNARKField, salt),
		crypto.BigToFF(crypto.SNARKField, index),
	)
}

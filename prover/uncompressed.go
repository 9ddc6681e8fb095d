package prover

import (
	"encoding/hex"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
)

// UncompressedProof is a proof with every point in the uncompressed
// big-endian encoding, hex encoded. G2 coordinates are written imaginary
// part first.
type UncompressedProof struct {
	PiA string `json:"pi_a" cbor:"1,keyasint"`
	PiB string `json:"pi_b" cbor:"2,keyasint"`
	PiC string `json:"pi_c" cbor:"3,keyasint"`
}

// Uncompressed converts the proof to the encoding consumed on-chain.
func (p *Proof) Uncompressed() (*UncompressedProof, error) {
	a, err := g1Point(p.PiA)
	if err != nil {
		return nil, fmt.Errorf("pi_a: %w", err)
	}
	b, err := g2Point(p.PiB)
	if err != nil {
		return nil, fmt.Errorf("pi_b: %w", err)
	}
	c, err := g1Point(p.PiC)
	if err != nil {
		return nil, fmt.Errorf("pi_c: %w", err)
	}
	aBytes, bBytes, cBytes := a.RawBytes(), b.RawBytes(), c.RawBytes()
	return &UncompressedProof{
		PiA: hex.EncodeToString(aBytes[:]),
		PiB: hex.EncodeToString(bBytes[:]),
		PiC: hex.EncodeToString(cBytes[:]),
	}, nil
}

func setElements(dst []*fp.Element, src []string) error {
	for i := range dst {
		if _, err := dst[i].SetString(src[i]); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedProof, err)
		}
	}
	return nil
}

func g1Point(coords []string) (*bn254.G1Affine, error) {
	if len(coords) < 2 {
		return nil, ErrMalformedProof
	}
	p := new(bn254.G1Affine)
	if err := setElements([]*fp.Element{&p.X, &p.Y}, coords[:2]); err != nil {
		return nil, err
	}
	if !p.IsOnCurve() {
		return nil, fmt.Errorf("%w: point not on curve", ErrMalformedProof)
	}
	return p, nil
}

func g2Point(coords [][]string) (*bn254.G2Affine, error) {
	if len(coords) < 2 || len(coords[0]) != 2 || len(coords[1]) != 2 {
		return nil, ErrMalformedProof
	}
	p := new(bn254.G2Affine)
	dst := []*fp.Element{&p.X.A0, &p.X.A1, &p.Y.A0, &p.Y.A1}
	src := []string{coords[0][0], coords[0][1], coords[1][0], coords[1][1]}
	if err := setElements(dst, src); err != nil {
		return nil, err
	}
	if !p.IsOnCurve() {
		return nil, fmt.Errorf("%w: point not on curve", ErrMalformedProof)
	}
	return p, nil
}

// Package prover turns circuit witnesses into Groth16 proofs and converts
// them to the encoding the on-chain verifier consumes.
package prover

import (
	"context"
	"errors"

	"github.com/vocdoni/maci-coordinator/maci"
)

var (
	// ErrMalformedProof is returned when a proof point cannot be parsed or
	// is not on the curve.
	ErrMalformedProof = errors.New("malformed proof")
	// ErrPublicInputMismatch is returned when the public signal of a proof
	// differs from the input hash of its witness.
	ErrPublicInputMismatch = errors.New("proof public input does not match witness input hash")
)

// Proof is a Groth16 proof in the snarkjs JSON layout: projective
// coordinates as decimal strings, G2 coordinates as [c0, c1] pairs.
type Proof struct {
	PiA      []string   `json:"pi_a" cbor:"1,keyasint"`
	PiB      [][]string `json:"pi_b" cbor:"2,keyasint"`
	PiC      []string   `json:"pi_c" cbor:"3,keyasint"`
	Protocol string     `json:"protocol" cbor:"4,keyasint"`
	Curve    string     `json:"curve,omitempty" cbor:"5,keyasint,omitempty"`
}

// Result is a proof together with the public signals it was generated for.
type Result struct {
	Proof         *Proof   `json:"proof" cbor:"1,keyasint"`
	PublicSignals []string `json:"publicSignals" cbor:"2,keyasint"`
}

// Prover generates the proof of a witness.
type Prover interface {
	Prove(ctx context.Context, w maci.Witness) (*Result, error)
}

// checkPublicSignals verifies that the single public signal of the proof is
// the input hash of the witness.
func checkPublicSignals(res *Result, w maci.Witness) error {
	want := w.PublicInputHash()
	if want == nil || len(res.PublicSignals) != 1 || res.PublicSignals[0] != want.String() {
		return ErrPublicInputMismatch
	}
	return nil
}

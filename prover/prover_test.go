package prover

import (
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/types"
)

func generatorProof() *Proof {
	_, _, g1, g2 := bn254.Generators()
	a := []string{g1.X.String(), g1.Y.String(), "1"}
	b := [][]string{
		{g2.X.A0.String(), g2.X.A1.String()},
		{g2.Y.A0.String(), g2.Y.A1.String()},
		{"1", "0"},
	}
	return &Proof{PiA: a, PiB: b, PiC: a, Protocol: "groth16", Curve: "bn128"}
}

func word(e interface{ BigInt(*big.Int) *big.Int }) string {
	return fmt.Sprintf("%064x", e.BigInt(new(big.Int)))
}

func TestUncompressed(t *testing.T) {
	c := qt.New(t)

	out, err := generatorProof().Uncompressed()
	c.Assert(err, qt.IsNil)

	// the G1 generator is (1, 2)
	c.Assert(out.PiA, qt.Equals, fmt.Sprintf("%064x%064x", 1, 2))
	c.Assert(out.PiC, qt.Equals, out.PiA)

	_, _, _, g2 := bn254.Generators()
	want := word(&g2.X.A1) + word(&g2.X.A0) + word(&g2.Y.A1) + word(&g2.Y.A0)
	c.Assert(out.PiB, qt.Equals, want)
}

func TestUncompressedMalformed(t *testing.T) {
	c := qt.New(t)

	p := generatorProof()
	p.PiA = []string{"1", "3", "1"}
	_, err := p.Uncompressed()
	c.Assert(err, qt.ErrorIs, ErrMalformedProof)

	p = generatorProof()
	p.PiB = p.PiB[:1]
	_, err = p.Uncompressed()
	c.Assert(err, qt.ErrorIs, ErrMalformedProof)

	p = generatorProof()
	p.PiC = []string{"not a number", "2"}
	_, err = p.Uncompressed()
	c.Assert(err, qt.ErrorIs, ErrMalformedProof)
}

func TestCheckPublicSignals(t *testing.T) {
	c := qt.New(t)

	w := &maci.TallyInput{InputHash: types.NewInt(42)}
	c.Assert(checkPublicSignals(&Result{PublicSignals: []string{"42"}}, w), qt.IsNil)
	c.Assert(checkPublicSignals(&Result{PublicSignals: []string{"43"}}, w), qt.ErrorIs, ErrPublicInputMismatch)
	c.Assert(checkPublicSignals(&Result{}, w), qt.ErrorIs, ErrPublicInputMismatch)
}

func TestRapidsnarkArtifacts(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	r := NewRapidsnark(dir)
	wasm, zkey := r.ArtifactPaths(maci.CircuitDeactivate)
	c.Assert(wasm, qt.Equals, filepath.Join(dir, "deactivate.wasm"))
	c.Assert(zkey, qt.Equals, filepath.Join(dir, "deactivate.zkey"))

	_, err := r.load(maci.CircuitTally)
	c.Assert(err, qt.ErrorMatches, "read circuit wasm: .*")
}

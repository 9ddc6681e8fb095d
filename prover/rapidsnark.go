package prover

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	rsprover "github.com/iden3/go-rapidsnark/prover"
	"github.com/iden3/go-rapidsnark/witness"

	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/maci"
)

// circuit holds the loaded artifacts of one circuit. The witness calculator
// keeps its WASM runtime alive across proofs.
type circuit struct {
	calc *witness.Circom2WitnessCalculator
	zkey []byte
}

// Rapidsnark proves circom circuits with the rapidsnark Groth16 prover. The
// artifacts of circuit kind k are read from <dir>/<k>.wasm and <dir>/<k>.zkey
// the first time a witness of that kind is proven.
type Rapidsnark struct {
	dir string

	// mu serializes proving, the native prover is not safe for concurrent
	// use.
	mu       sync.Mutex
	circuits map[maci.CircuitKind]*circuit
}

var _ Prover = (*Rapidsnark)(nil)

// NewRapidsnark returns a prover reading the circuit artifacts from dir.
func NewRapidsnark(dir string) *Rapidsnark {
	return &Rapidsnark{
		dir:      dir,
		circuits: make(map[maci.CircuitKind]*circuit),
	}
}

// ArtifactPaths returns the wasm and zkey paths of circuit kind.
func (r *Rapidsnark) ArtifactPaths(kind maci.CircuitKind) (string, string) {
	base := filepath.Join(r.dir, string(kind))
	return base + ".wasm", base + ".zkey"
}

func (r *Rapidsnark) load(kind maci.CircuitKind) (*circuit, error) {
	if c, ok := r.circuits[kind]; ok {
		return c, nil
	}
	wasmPath, zkeyPath := r.ArtifactPaths(kind)
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("read circuit wasm: %w", err)
	}
	zkey, err := os.ReadFile(zkeyPath)
	if err != nil {
		return nil, fmt.Errorf("read proving key: %w", err)
	}
	calc, err := witness.NewCircom2WitnessCalculator(wasm, true)
	if err != nil {
		return nil, fmt.Errorf("instance witness calculator: %w", err)
	}
	c := &circuit{calc: calc, zkey: zkey}
	r.circuits[kind] = c
	log.Debugw("circuit artifacts loaded", "circuit", string(kind), "wasm", wasmPath, "zkey", zkeyPath)
	return c, nil
}

// Prove calculates the witness of w and proves it. It fails with
// ErrPublicInputMismatch if the circuit computes a different input hash.
func (r *Rapidsnark) Prove(ctx context.Context, w maci.Witness) (*Result, error) {
	inputs, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode circuit inputs: %w", err)
	}
	parsed, err := witness.ParseInputs(inputs)
	if err != nil {
		return nil, fmt.Errorf("circom inputs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := r.load(w.Circuit())
	if err != nil {
		return nil, err
	}
	startTime := time.Now()
	wtns, err := c.calc.CalculateWTNSBin(parsed, true)
	if err != nil {
		return nil, fmt.Errorf("calculate witness: %w", err)
	}
	proofJSON, pubJSON, err := rsprover.Groth16ProverRaw(c.zkey, wtns)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}

	res := &Result{Proof: &Proof{}}
	if err := json.Unmarshal([]byte(proofJSON), res.Proof); err != nil {
		return nil, fmt.Errorf("decode proof: %w", err)
	}
	if err := json.Unmarshal([]byte(pubJSON), &res.PublicSignals); err != nil {
		return nil, fmt.Errorf("decode public signals: %w", err)
	}
	if err := checkPublicSignals(res, w); err != nil {
		return nil, err
	}
	log.Debugw("proof generated", "circuit", string(w.Circuit()), "took", time.Since(startTime).String())
	return res, nil
}

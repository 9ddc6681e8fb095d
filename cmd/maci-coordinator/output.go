package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/storage"
)

var outputCircuits = []maci.CircuitKind{
	maci.CircuitDeactivate,
	maci.CircuitProcessMessages,
	maci.CircuitTally,
}

// writeOutputs exports the artifacts of round id to dir:
//
//	round.json                        round status and progress
//	results.json                      decoded tally
//	logs.json                         audit log
//	deactivates.json                  processed deactivations, if any
//	inputs/<circuit>-input_NNNN.json  circuit inputs
//	proofs/<circuit>_NNNN.json        proofs
//
// Circuit inputs carry the coordinator's formatted private key, so every
// file is written readable by the owner only.
func writeOutputs(dir string, stg *storage.Storage, id uuid.UUID) error {
	for _, sub := range []string{"inputs", "proofs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	round, err := stg.Round(id)
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "round.json"), round); err != nil {
		return err
	}
	if res, err := stg.Results(id); err == nil {
		if err := writeJSON(filepath.Join(dir, "results.json"), res); err != nil {
			return err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	entries, err := stg.Logs(id, 0, 0)
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "logs.json"), entries); err != nil {
		return err
	}
	if d, err := stg.Deactivations(id); err == nil {
		if err := writeJSON(filepath.Join(dir, "deactivates.json"), d); err != nil {
			return err
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	for _, kind := range outputCircuits {
		for idx := 0; ; idx++ {
			data, err := stg.Witness(id, kind, idx)
			if errors.Is(err, storage.ErrNotFound) {
				break
			}
			if err != nil {
				return err
			}
			name := fmt.Sprintf("%s-input_%04d.json", kind, idx)
			if err := os.WriteFile(filepath.Join(dir, "inputs", name), data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", name, err)
			}
		}
		proofs, err := stg.Proofs(id, kind)
		if err != nil {
			return err
		}
		for _, rec := range proofs {
			name := fmt.Sprintf("%s_%04d.json", kind, rec.Index)
			if err := writeJSON(filepath.Join(dir, "proofs", name), rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

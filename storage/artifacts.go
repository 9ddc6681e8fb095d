package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/db/prefixeddb"
	"github.com/vocdoni/maci-coordinator/maci"
)

// SetWitness stores the witness of batch idx as JSON with the circuit signal
// names, ready to be fed to a witness calculator.
func (s *Storage) SetWitness(id uuid.UUID, idx int, w maci.Witness) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode witness: %w", err)
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.setRaw(witnessPrefix, batchKey(id, w.Circuit(), idx), data)
}

// Witness returns the JSON witness of batch idx of circuit kind.
func (s *Storage) Witness(id uuid.UUID, kind maci.CircuitKind, idx int) ([]byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.getRaw(witnessPrefix, batchKey(id, kind, idx))
}

// SetProof stores the proof of a batch.
func (s *Storage) SetProof(id uuid.UUID, rec *ProofRecord) error {
	if rec == nil || rec.Proof == nil {
		return fmt.Errorf("nil proof")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.setArtifact(proofPrefix, batchKey(id, rec.Circuit, rec.Index), rec)
}

// Proof returns the proof of batch idx of circuit kind, or ErrNotFound.
func (s *Storage) Proof(id uuid.UUID, kind maci.CircuitKind, idx int) (*ProofRecord, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := batchKey(id, kind, idx)
	if rec, ok := s.cache.Get(cacheKey(proofPrefix, key)); ok {
		return rec.(*ProofRecord), nil
	}
	rec := &ProofRecord{}
	if err := s.getArtifact(proofPrefix, key, rec); err != nil {
		return nil, err
	}
	s.cache.Add(cacheKey(proofPrefix, key), rec)
	return rec, nil
}

// Proofs returns every proof of circuit kind of a round, in batch order.
func (s *Storage) Proofs(id uuid.UUID, kind maci.CircuitKind) ([]*ProofRecord, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	prefix := append(roundKey(id), kind...)
	prefix = append(prefix, '/')
	var (
		out    []*ProofRecord
		decErr error
	)
	err := prefixeddb.NewPrefixedReader(s.db, proofPrefix).Iterate(prefix, func(_, v []byte) bool {
		rec := &ProofRecord{}
		if decErr = DecodeArtifact(v, rec); decErr != nil {
			return false
		}
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("iterate proofs: %w", err)
	}
	if decErr != nil {
		return nil, fmt.Errorf("decode proof: %w", decErr)
	}
	return out, nil
}

// SetSnapshot stores the latest snapshot of a round.
func (s *Storage) SetSnapshot(id uuid.UUID, snapshot []byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.setRaw(snapshotPrefix, roundKey(id), snapshot)
}

// Snapshot returns the latest snapshot of a round, or ErrNotFound.
func (s *Storage) Snapshot(id uuid.UUID) ([]byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.getRaw(snapshotPrefix, roundKey(id))
}

// SetDeactivations stores the processed deactivations of a round.
func (s *Storage) SetDeactivations(id uuid.UUID, d *Deactivations) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.setArtifact(deactivationPrefix, roundKey(id), d)
}

// Deactivations returns the processed deactivations of a round, or
// ErrNotFound.
func (s *Storage) Deactivations(id uuid.UUID) (*Deactivations, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	d := &Deactivations{}
	if err := s.getArtifact(deactivationPrefix, roundKey(id), d); err != nil {
		return nil, err
	}
	return d, nil
}

// SetResults stores the results of a round.
func (s *Storage) SetResults(id uuid.UUID, res *Results) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.setArtifact(resultsPrefix, roundKey(id), res)
}

// Results returns the results of a round, or ErrNotFound.
func (s *Storage) Results(id uuid.UUID) (*Results, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	res := &Results{}
	if err := s.getArtifact(resultsPrefix, roundKey(id), res); err != nil {
		return nil, err
	}
	return res, nil
}

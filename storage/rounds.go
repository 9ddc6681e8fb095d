package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/db/prefixeddb"
	"github.com/vocdoni/maci-coordinator/maci"
	"github.com/vocdoni/maci-coordinator/types"
)

// NewRound stores a new round. It fails with ErrKeyAlreadyExists if the
// round ID is taken; use UpdateRound to modify an existing round.
func (s *Storage) NewRound(r *Round) error {
	if r == nil {
		return fmt.Errorf("nil round")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if _, err := s.getRaw(roundPrefix, roundKey(r.ID)); err == nil {
		return fmt.Errorf("%w: round %s", ErrKeyAlreadyExists, r.ID)
	} else if err != ErrNotFound {
		return fmt.Errorf("failed to check round existence: %w", err)
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return s.setArtifact(roundPrefix, roundKey(r.ID), r)
}

// Round retrieves a round. It returns ErrNotFound if it does not exist.
func (s *Storage) Round(id uuid.UUID) (*Round, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.roundUnsafe(id)
}

func (s *Storage) roundUnsafe(id uuid.UUID) (*Round, error) {
	key := roundKey(id)
	if r, ok := s.cache.Get(cacheKey(roundPrefix, key)); ok {
		return r.(*Round).clone(), nil
	}
	r := &Round{}
	if err := s.getArtifact(roundPrefix, key, r); err != nil {
		return nil, err
	}
	s.cache.Add(cacheKey(roundPrefix, key), r.clone())
	return r, nil
}

// UpdateRound performs an atomic read-modify-write of a round. The update
// functions are applied in order; the first error aborts the update.
func (s *Storage) UpdateRound(id uuid.UUID, updateFunc ...func(*Round) error) error {
	if len(updateFunc) == 0 {
		return fmt.Errorf("no update function provided")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	r, err := s.roundUnsafe(id)
	if err != nil {
		return fmt.Errorf("failed to get round for update: %w", err)
	}
	for _, f := range updateFunc {
		if err := f(r); err != nil {
			return fmt.Errorf("update function failed: %w", err)
		}
	}
	r.UpdatedAt = time.Now()
	if err := s.setArtifact(roundPrefix, roundKey(id), r); err != nil {
		return fmt.Errorf("failed to save updated round: %w", err)
	}
	return nil
}

// ListRounds returns the IDs of the stored rounds.
func (s *Storage) ListRounds() ([]uuid.UUID, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	keys, err := s.listArtifacts(roundPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.FromBytes(k)
		if err != nil {
			return nil, fmt.Errorf("invalid round key %x: %w", k, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteRound removes a round and all of its artifacts.
func (s *Storage) DeleteRound(id uuid.UUID) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	defer wTx.Discard()
	for _, prefix := range allPrefixes {
		ptx := prefixeddb.NewPrefixedWriteTx(wTx, prefix)
		var keys [][]byte
		if err := ptx.Iterate(roundKey(id), func(k, _ []byte) bool {
			keys = append(keys, append(roundKey(id), k...))
			return true
		}); err != nil {
			return fmt.Errorf("iterate round keys: %w", err)
		}
		for _, k := range keys {
			if err := ptx.Delete(k); err != nil {
				return err
			}
			s.cache.Remove(cacheKey(prefix, k))
		}
	}
	return wTx.Commit()
}

// RoundUpdateStatus returns an update function that sets the status of a
// round. A non-nil err is recorded as the failure reason.
func RoundUpdateStatus(status RoundStatus, err error) func(*Round) error {
	return func(r *Round) error {
		r.Status = status
		r.Error = ""
		if err != nil {
			r.Error = err.Error()
		}
		return nil
	}
}

// RoundUpdateProgress returns an update function that copies the counters
// and commitments of m into the round.
func RoundUpdateProgress(m *maci.MACI) func(*Round) error {
	return func(r *Round) error {
		r.Phase = m.Phase().String()
		r.NumMessages = m.NumMessages()
		r.NumSignUps = m.Config().NumSignUps
		r.NumDeactivateMessages = m.NumDeactivateMessages()
		r.ProcessedDeactivateMessages = m.ProcessedDeactivateMessages()
		r.StateRoot = types.FromBig(m.StateRoot())
		if c := m.StateCommitment(); c != nil {
			r.StateCommitment = types.FromBig(c)
		}
		if c := m.TallyCommitment(); c != nil {
			r.TallyCommitment = types.FromBig(c)
		}
		return nil
	}
}

// RoundUpdateBatchProven returns an update function that records batch idx
// of circuit kind as proven. Proving a batch again does not count it twice.
func RoundUpdateBatchProven(kind maci.CircuitKind, idx int) func(*Round) error {
	return func(r *Round) error {
		if r.Batches == nil {
			r.Batches = make(map[maci.CircuitKind]int)
		}
		r.Batches[kind] = max(r.Batches[kind], idx+1)
		return nil
	}
}

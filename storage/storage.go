/*
Package storage provides the persistent storage layer of the coordinator.

# Storage Organization

The storage uses a key-value database with prefixed namespaces. Every key
starts with the 16 bytes of the round UUID.

## Rounds
  - r/  : roundID → Round (configuration, status and progress counters)
  - rs/ : roundID → Results (decoded tally once the round has ended)
  - sn/ : roundID → latest snapshot of the round state (CBOR)
  - dl/ : roundID → processed deactivation leaves and active state

## Batches
  - lg/ : roundID + index → audit log record
  - wt/ : roundID + circuit + index → witness (JSON, circuit signal names)
  - pf/ : roundID + circuit + index → ProofRecord
*/
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vocdoni/maci-coordinator/db"
	"github.com/vocdoni/maci-coordinator/db/prefixeddb"
	"github.com/vocdoni/maci-coordinator/log"
	"github.com/vocdoni/maci-coordinator/maci"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")

	// Prefixes
	roundPrefix        = []byte("r/")
	resultsPrefix      = []byte("rs/")
	snapshotPrefix     = []byte("sn/")
	deactivationPrefix = []byte("dl/")
	logPrefix          = []byte("lg/")
	witnessPrefix      = []byte("wt/")
	proofPrefix        = []byte("pf/")

	allPrefixes = [][]byte{
		roundPrefix, resultsPrefix, snapshotPrefix, deactivationPrefix,
		logPrefix, witnessPrefix, proofPrefix,
	}

	cacheSize = 1000
)

// Storage persists rounds and their artifacts. It is safe for concurrent
// use.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
	cache      *lru.Cache[string, any]
}

// New creates a new Storage instance. Rounds that were running when the
// previous process stopped are marked as interrupted.
func New(database db.Database) *Storage {
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	s := &Storage{
		db:    database,
		cache: cache,
	}
	if err := s.markInterruptedRounds(); err != nil {
		log.Errorw(err, "failed to mark interrupted rounds")
	}
	return s
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err.Error())
	}
}

// markInterruptedRounds flags every round left in RoundStatusRunning.
func (s *Storage) markInterruptedRounds() error {
	ids, err := s.ListRounds()
	if err != nil {
		return fmt.Errorf("list rounds: %w", err)
	}
	for _, id := range ids {
		err := s.UpdateRound(id, func(r *Round) error {
			if r.Status == RoundStatusRunning {
				r.Status = RoundStatusInterrupted
				log.Infow("round marked as interrupted", "round", id.String())
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func roundKey(id uuid.UUID) []byte {
	return id[:]
}

// batchKey is roundID + circuit + "/" + big-endian index, so that artifacts
// of the same circuit iterate in index order.
func batchKey(id uuid.UUID, kind maci.CircuitKind, idx int) []byte {
	key := make([]byte, 0, len(id)+len(kind)+5)
	key = append(key, id[:]...)
	key = append(key, kind...)
	key = append(key, '/')
	return binary.BigEndian.AppendUint32(key, uint32(idx))
}

func logKey(id uuid.UUID, idx int) []byte {
	return binary.BigEndian.AppendUint32(append([]byte{}, id[:]...), uint32(idx))
}

func cacheKey(prefix, key []byte) string {
	return string(prefix) + string(key)
}

// setArtifact encodes artifact with CBOR and stores it under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	return s.setRaw(prefix, key, data)
}

func (s *Storage) setRaw(prefix, key, data []byte) error {
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return err
	}
	s.cache.Remove(cacheKey(prefix, key))
	return nil
}

// getArtifact decodes the artifact stored under prefix+key into out. It
// returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := s.getRaw(prefix, key)
	if err != nil {
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

func (s *Storage) getRaw(prefix, key []byte) ([]byte, error) {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

// listArtifacts retrieves all the keys for a given prefix.
func (s *Storage) listArtifacts(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}

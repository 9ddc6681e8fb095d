package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vocdoni/maci-coordinator/db/prefixeddb"
	"github.com/vocdoni/maci-coordinator/maci"
)

// AppendLogs stores the audit log records of a round starting at offset.
// Records already stored at those positions are overwritten, so a batch
// replayed after a restart rewrites the same entries.
func (s *Storage) AppendLogs(id uuid.UUID, offset int, entries []*maci.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := prefixeddb.NewPrefixedDatabase(s.db, logPrefix).WriteTx()
	defer wTx.Discard()
	for i, e := range entries {
		data, err := EncodeArtifact(e)
		if err != nil {
			return err
		}
		if err := wTx.Set(logKey(id, offset+i), data); err != nil {
			return err
		}
	}
	return wTx.Commit()
}

// Logs returns up to limit audit log records of a round from offset on. A
// limit of zero or less returns every remaining record.
func (s *Storage) Logs(id uuid.UUID, offset, limit int) ([]*maci.LogEntry, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var (
		entries []*maci.LogEntry
		decErr  error
		idx     int
	)
	err := prefixeddb.NewPrefixedReader(s.db, logPrefix).Iterate(roundKey(id), func(_, v []byte) bool {
		defer func() { idx++ }()
		if idx < offset {
			return true
		}
		e := &maci.LogEntry{}
		if decErr = DecodeArtifact(v, e); decErr != nil {
			return false
		}
		entries = append(entries, e)
		return limit <= 0 || len(entries) < limit
	})
	if err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	if decErr != nil {
		return nil, fmt.Errorf("decode log entry: %w", decErr)
	}
	return entries, nil
}

// NumLogs returns the number of stored audit log records of a round.
func (s *Storage) NumLogs(id uuid.UUID) (int, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	n := 0
	err := prefixeddb.NewPrefixedReader(s.db, logPrefix).Iterate(roundKey(id), func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

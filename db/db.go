// Package db defines the key-value store the coordinator persists its
// rounds in. Implementations live in subpackages: pebbledb, leveldb and
// inmemory; metadb opens any of them by type name.
package db

import "errors"

const (
	TypePebble  = "pebble"
	TypeLevelDB = "leveldb"
	TypeInMem   = "inmem"
)

// AvailableTypes lists the backend type names accepted by metadb.New.
var AvailableTypes = []string{TypePebble, TypeLevelDB, TypeInMem}

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrConflict is returned by Commit when a key read or written by the
	// transaction was modified by another transaction after it started.
	ErrConflict = errors.New("transaction conflict")
	// ErrTxnTooBig is returned when a transaction exceeds the backend
	// limits.
	ErrTxnTooBig = errors.New("transaction too big")
)

// Options configures a database backend.
type Options struct {
	Path string
}

// Reader reads keys.
type Reader interface {
	// Get returns a copy of the value of key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for every key starting with prefix, in
	// lexicographic order, until it returns false. The key passed to the
	// callback has the prefix removed. Keys and values are only valid
	// during the callback.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx is a set of writes applied atomically on Commit. Reads observe
// the pending writes of the transaction.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Apply copies the pending writes of other into this transaction.
	Apply(other WriteTx) error
	Commit() error
	// Discard drops the pending writes. It is safe to call after Commit.
	Discard()
}

// Database is a key-value store.
type Database interface {
	Reader
	WriteTx() WriteTx
	Close() error
	Compact() error
}

// UnwrapWriteTx returns the transaction wrapped by tx, if any. Wrapping
// transactions such as prefixed ones implement Unwrap.
func UnwrapWriteTx(tx WriteTx) WriteTx {
	for {
		u, ok := tx.(interface{ Unwrap() WriteTx })
		if !ok {
			return tx
		}
		tx = u.Unwrap()
	}
}

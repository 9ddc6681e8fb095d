// Package inmemory implements an ephemeral db.Database on a sorted map,
// with optimistic transactions: Commit fails with db.ErrConflict when a key
// the transaction touched changed after the transaction first saw it.
package inmemory

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/vocdoni/maci-coordinator/db"
)

type record struct {
	value   []byte
	version uint64
}

// Database is an in-memory db.Database.
type Database struct {
	mu      sync.RWMutex
	records map[string]record
	// tombstones keep the version of deleted keys for conflict checks.
	tombstones map[string]uint64
	version    uint64
}

var _ db.Database = (*Database)(nil)

// New returns an empty database. Options are ignored.
func New(_ db.Options) (*Database, error) {
	return &Database{
		records:    make(map[string]record),
		tombstones: make(map[string]uint64),
	}, nil
}

func (d *Database) Close() error   { return nil }
func (d *Database) Compact() error { return nil }

func (d *Database) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.records[string(key)]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(r.value), nil
}

func (d *Database) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	view := make(map[string][]byte)
	for k, r := range d.records {
		if strings.HasPrefix(k, string(prefix)) {
			view[k] = bytes.Clone(r.value)
		}
	}
	d.mu.RUnlock()
	walk(view, prefix, callback)
	return nil
}

// versionOf returns the version of key, 0 if it was never written. The
// caller holds the lock.
func (d *Database) versionOf(key string) uint64 {
	if r, ok := d.records[key]; ok {
		return r.version
	}
	return d.tombstones[key]
}

func (d *Database) WriteTx() db.WriteTx {
	return &WriteTx{
		db:      d,
		pending: make(map[string][]byte),
		deleted: make(map[string]bool),
		seen:    make(map[string]uint64),
	}
}

// WriteTx is a transaction of the in-memory database.
type WriteTx struct {
	db      *Database
	pending map[string][]byte
	deleted map[string]bool
	seen    map[string]uint64
	done    bool
}

var _ db.WriteTx = (*WriteTx)(nil)

// observe records the first version of key seen by the transaction.
func (tx *WriteTx) observe(key string) {
	if _, ok := tx.seen[key]; ok {
		return
	}
	tx.db.mu.RLock()
	tx.seen[key] = tx.db.versionOf(key)
	tx.db.mu.RUnlock()
}

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if tx.deleted[k] {
		return nil, db.ErrKeyNotFound
	}
	if v, ok := tx.pending[k]; ok {
		return bytes.Clone(v), nil
	}
	tx.observe(k)
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	tx.db.mu.RLock()
	view := make(map[string][]byte)
	for k, r := range tx.db.records {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		view[k] = bytes.Clone(r.value)
		if _, ok := tx.seen[k]; !ok {
			tx.seen[k] = r.version
		}
	}
	tx.db.mu.RUnlock()
	for k := range tx.deleted {
		delete(view, k)
	}
	for k, v := range tx.pending {
		if strings.HasPrefix(k, string(prefix)) {
			view[k] = bytes.Clone(v)
		}
	}
	walk(view, prefix, callback)
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	k := string(key)
	tx.observe(k)
	delete(tx.deleted, k)
	tx.pending[k] = bytes.Clone(value)
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	k := string(key)
	tx.observe(k)
	delete(tx.pending, k)
	tx.deleted[k] = true
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	o, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("inmemory: cannot apply a %T", other)
	}
	for k, v := range o.pending {
		if err := tx.Set([]byte(k), v); err != nil {
			return err
		}
	}
	for k := range o.deleted {
		if err := tx.Delete([]byte(k)); err != nil {
			return err
		}
	}
	return nil
}

func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("inmemory: transaction already committed or discarded")
	}
	d := tx.db
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range tx.seen {
		if d.versionOf(k) != v {
			return db.ErrConflict
		}
	}
	for k, v := range tx.pending {
		d.version++
		d.records[k] = record{value: v, version: d.version}
		delete(d.tombstones, k)
	}
	for k := range tx.deleted {
		if _, ok := d.records[k]; !ok {
			continue
		}
		d.version++
		delete(d.records, k)
		d.tombstones[k] = d.version
	}
	tx.done = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.pending = map[string][]byte{}
	tx.deleted = map[string]bool{}
	tx.seen = map[string]uint64{}
	tx.done = true
}

// walk calls callback in key order with the prefix stripped from the keys.
func walk(view map[string][]byte, prefix []byte, callback func(key, value []byte) bool) {
	for _, k := range slices.Sorted(maps.Keys(view)) {
		if !callback([]byte(k)[len(prefix):], view[k]) {
			return
		}
	}
}

// Package leveldb implements db.Database on top of goleveldb.
package leveldb

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/vocdoni/maci-coordinator/db"
)

// LevelDB is a db.Database backed by goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

var _ db.Database = (*LevelDB)(nil)

// New opens (or creates) the database at opts.Path.
func New(opts db.Options) (*LevelDB, error) {
	ldb, err := leveldb.OpenFile(opts.Path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb database %s: %w", opts.Path, err)
	}
	return &LevelDB{db: ldb}, nil
}

func (d *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	return v, err
}

func (d *LevelDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if !callback(iter.Key()[len(prefix):], iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func (d *LevelDB) Close() error {
	return d.db.Close()
}

func (d *LevelDB) Compact() error {
	return d.db.CompactRange(util.Range{})
}

// WriteTx buffers writes in a leveldb batch. An overlay of the pending
// writes serves reads until commit. Conflicts are not detected.
func (d *LevelDB) WriteTx() db.WriteTx {
	return &WriteTx{
		db:      d,
		batch:   new(leveldb.Batch),
		overlay: make(map[string][]byte),
	}
}

// WriteTx is a transaction of the leveldb database.
type WriteTx struct {
	db    *LevelDB
	batch *leveldb.Batch
	// overlay maps pending keys to their value, nil for deletions.
	overlay map[string][]byte
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if v, ok := tx.overlay[string(key)]; ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(v), nil
	}
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	view := make(map[string][]byte)
	if err := tx.db.Iterate(prefix, func(k, v []byte) bool {
		view[string(prefix)+string(k)] = bytes.Clone(v)
		return true
	}); err != nil {
		return err
	}
	for k, v := range tx.overlay {
		if !strings.HasPrefix(k, string(prefix)) {
			continue
		}
		if v == nil {
			delete(view, k)
		} else {
			view[k] = v
		}
	}
	for _, k := range slices.Sorted(maps.Keys(view)) {
		if !callback([]byte(k)[len(prefix):], view[k]) {
			break
		}
	}
	return nil
}

func (tx *WriteTx) Set(key, value []byte) error {
	tx.batch.Put(key, value)
	tx.overlay[string(key)] = bytes.Clone(value)
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	tx.batch.Delete(key)
	tx.overlay[string(key)] = nil
	return nil
}

func (tx *WriteTx) Apply(other db.WriteTx) error {
	o, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("leveldb: cannot apply a %T", other)
	}
	for k, v := range o.overlay {
		if v == nil {
			if err := tx.Delete([]byte(k)); err != nil {
				return err
			}
			continue
		}
		if err := tx.Set([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

func (tx *WriteTx) Commit() error {
	if tx.batch == nil {
		return fmt.Errorf("leveldb: transaction already committed or discarded")
	}
	err := tx.db.db.Write(tx.batch, &opt.WriteOptions{Sync: true})
	tx.Discard()
	return err
}

func (tx *WriteTx) Discard() {
	tx.batch = nil
	tx.overlay = map[string][]byte{}
}

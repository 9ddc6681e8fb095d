// Package prefixeddb scopes a database, reader or transaction to a key
// prefix, so independent stores can share one backend.
package prefixeddb

import (
	"github.com/vocdoni/maci-coordinator/db"
)

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	return append(append(out, prefix...), key...)
}

// PrefixedReader reads the keys of a prefix.
type PrefixedReader struct {
	prefix []byte
	r      db.Reader
}

var _ db.Reader = (*PrefixedReader)(nil)

// NewPrefixedReader scopes r to prefix.
func NewPrefixedReader(r db.Reader, prefix []byte) *PrefixedReader {
	return &PrefixedReader{prefix: prefix, r: r}
}

func (p *PrefixedReader) Get(key []byte) ([]byte, error) {
	return p.r.Get(prefixed(p.prefix, key))
}

func (p *PrefixedReader) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return p.r.Iterate(prefixed(p.prefix, prefix), callback)
}

// PrefixedWriteTx scopes a transaction to a prefix.
type PrefixedWriteTx struct {
	prefix []byte
	tx     db.WriteTx
}

var _ db.WriteTx = (*PrefixedWriteTx)(nil)

// NewPrefixedWriteTx scopes tx to prefix.
func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	return &PrefixedWriteTx{prefix: prefix, tx: tx}
}

func (p *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return p.tx.Get(prefixed(p.prefix, key))
}

func (p *PrefixedWriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return p.tx.Iterate(prefixed(p.prefix, prefix), callback)
}

func (p *PrefixedWriteTx) Set(key, value []byte) error {
	return p.tx.Set(prefixed(p.prefix, key), value)
}

func (p *PrefixedWriteTx) Delete(key []byte) error {
	return p.tx.Delete(prefixed(p.prefix, key))
}

func (p *PrefixedWriteTx) Apply(other db.WriteTx) error {
	return p.tx.Apply(other)
}

func (p *PrefixedWriteTx) Commit() error { return p.tx.Commit() }

func (p *PrefixedWriteTx) Discard() { p.tx.Discard() }

// Unwrap returns the scoped transaction.
func (p *PrefixedWriteTx) Unwrap() db.WriteTx { return p.tx }

// PrefixedDatabase scopes a database to a prefix.
type PrefixedDatabase struct {
	*PrefixedReader
	db     db.Database
	prefix []byte
}

var _ db.Database = (*PrefixedDatabase)(nil)

// NewPrefixedDatabase scopes d to prefix. Closing it closes d.
func NewPrefixedDatabase(d db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{
		PrefixedReader: NewPrefixedReader(d, prefix),
		db:             d,
		prefix:         prefix,
	}
}

func (p *PrefixedDatabase) WriteTx() db.WriteTx {
	return NewPrefixedWriteTx(p.db.WriteTx(), p.prefix)
}

func (p *PrefixedDatabase) Close() error { return p.db.Close() }

func (p *PrefixedDatabase) Compact() error { return p.db.Compact() }

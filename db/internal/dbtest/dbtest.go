// Package dbtest holds the behaviour checks shared by every db.Database
// backend.
package dbtest

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/maci-coordinator/db"
)

// TestWriteTx checks that pending writes are visible to the transaction
// only, and to the database after Commit.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	defer wTx.Discard()

	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)

	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)

	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	dTx := database.WriteTx()
	c.Assert(dTx.Delete([]byte("a")), qt.IsNil)
	_, err = dTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(dTx.Commit(), qt.IsNil)

	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix iteration order, prefix stripping and early
// termination.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	prefix := []byte("round/")
	wTx := database.WriteTx()
	for _, k := range []string{"c", "a", "b"} {
		c.Assert(wTx.Set(append(append([]byte{}, prefix...), k...), []byte("v"+k)), qt.IsNil)
	}
	c.Assert(wTx.Set([]byte("other"), []byte("x")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	var keys []string
	err := database.Iterate(prefix, func(k, v []byte) bool {
		c.Assert(string(v), qt.Equals, "v"+string(k))
		keys = append(keys, string(k))
		return true
	})
	c.Assert(err, qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"a", "b", "c"})

	count := 0
	err = database.Iterate(prefix, func(_, _ []byte) bool {
		count++
		return false
	})
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 1)

	// pending writes show up in the transaction view
	tx := database.WriteTx()
	defer tx.Discard()
	c.Assert(tx.Set([]byte("round/d"), []byte("vd")), qt.IsNil)
	c.Assert(tx.Delete([]byte("round/a")), qt.IsNil)
	keys = nil
	c.Assert(tx.Iterate(prefix, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"b", "c", "d"})
}

// TestWriteTxApply checks that applying a transaction carries its writes.
func TestWriteTxApply(t *testing.T, database db.Database) {
	c := qt.New(t)

	keyA, valueA := []byte("A"), []byte("a")
	keyB, valueB := []byte("B"), []byte("b")

	wTx := database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set(keyA, valueA), qt.IsNil)

	otherTx := database.WriteTx()
	c.Assert(otherTx.Set(keyB, valueB), qt.IsNil)

	c.Assert(wTx.Apply(otherTx), qt.IsNil)
	otherTx.Discard()
	c.Assert(wTx.Commit(), qt.IsNil)

	v, err := database.Get(keyA)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, valueA)
	v, err = database.Get(keyB)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, valueB)
}

// TestWriteTxApplyPrefixed checks that a prefixed transaction applied to
// an unprefixed one keeps its prefix.
func TestWriteTxApplyPrefixed(t *testing.T, database, dbWithPrefix db.Database) {
	c := qt.New(t)

	prefix := []byte("one")
	keyA, valueA := []byte("A"), []byte("a")
	keyB, valueB := []byte("B"), []byte("b")

	wTx := database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Set(keyA, valueA), qt.IsNil)

	prefixedTx := dbWithPrefix.WriteTx()
	c.Assert(prefixedTx.Set(keyB, valueB), qt.IsNil)

	c.Assert(wTx.Apply(prefixedTx), qt.IsNil)
	prefixedTx.Discard()
	c.Assert(wTx.Commit(), qt.IsNil)

	v, err := database.Get(keyA)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, valueA)

	v, err = database.Get(append(append([]byte{}, prefix...), keyB...))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, valueB)

	v, err = dbWithPrefix.Get(keyB)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, valueB)
}

// TestConcurrentWriteTx checks that of two transactions writing the same
// key, the second to commit fails with db.ErrConflict.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	key := []byte("counter")
	first := database.WriteTx()
	second := database.WriteTx()

	_, err := first.Get(key)
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = second.Get(key)
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(first.Set(key, []byte{1}), qt.IsNil)
	c.Assert(second.Set(key, []byte{2}), qt.IsNil)

	c.Assert(first.Commit(), qt.IsNil)
	c.Assert(second.Commit(), qt.ErrorIs, db.ErrConflict)

	v, err := database.Get(key)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte{1})
}

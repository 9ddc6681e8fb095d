package prefixeddb

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/vocdoni/maci-coordinator/db"
	"github.com/vocdoni/maci-coordinator/db/inmemory"
)

func TestPrefixIsolation(t *testing.T) {
	c := qt.New(t)
	database, err := inmemory.New(db.Options{})
	c.Assert(err, qt.IsNil)

	one := NewPrefixedDatabase(database, []byte("one/"))
	two := NewPrefixedDatabase(database, []byte("two/"))

	wTx := one.WriteTx()
	c.Assert(wTx.Set([]byte("k"), []byte("v1")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	v, err := one.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v1"))
	_, err = two.Get([]byte("k"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	v, err = database.Get([]byte("one/k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("v1"))

	var keys []string
	c.Assert(one.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.DeepEquals, []string{"k"})

	tx := one.WriteTx()
	defer tx.Discard()
	c.Assert(db.UnwrapWriteTx(tx), qt.Satisfies, func(v db.WriteTx) bool {
		_, ok := v.(*inmemory.WriteTx)
		return ok
	})
}

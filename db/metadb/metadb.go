// Package metadb opens a db.Database by backend type name.
package metadb

import (
	"fmt"
	"testing"

	"github.com/vocdoni/maci-coordinator/db"
	"github.com/vocdoni/maci-coordinator/db/inmemory"
	"github.com/vocdoni/maci-coordinator/db/leveldb"
	"github.com/vocdoni/maci-coordinator/db/pebbledb"
)

// New opens a database of type typ (db.TypePebble, db.TypeLevelDB or
// db.TypeInMem) at dir.
func New(typ, dir string) (db.Database, error) {
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		return pebbledb.New(opts)
	case db.TypeLevelDB:
		return leveldb.New(opts)
	case db.TypeInMem:
		return inmemory.New(opts)
	}
	return nil, fmt.Errorf("invalid database type %q", typ)
}

// NewTest opens a pebble database in a temporary directory that is closed
// when the test ends.
func NewTest(tb testing.TB) db.Database {
	database, err := New(db.TypePebble, tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil {
			tb.Error(err)
		}
	})
	return database
}

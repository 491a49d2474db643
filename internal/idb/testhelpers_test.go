package idb

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/idbtx/internal/event"
	"github.com/roach88/idbtx/internal/sched"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupDB returns a database with "books" (out-of-line keys) and "notes"
// (key path "id", auto-increment) driven by a fresh queue.
func setupDB(t *testing.T, opts ...Option) (*Database, *sched.Queue) {
	t.Helper()
	q := sched.NewQueue(sched.WithLogger(discardLogger()))
	opts = append([]Option{
		WithLogger(discardLogger()),
		WithIDGenerator(NewFixedGenerator("tx-1", "tx-2", "tx-3", "tx-4", "tx-5", "tx-6")),
	}, opts...)
	db := NewDatabase("library", q, opts...)
	_, err := db.CreateStore("books", StoreOptions{})
	require.NoError(t, err)
	_, err = db.CreateStore("notes", StoreOptions{KeyPath: "id", AutoIncrement: true})
	require.NoError(t, err)
	return db, q
}

func seed(t *testing.T, db *Database, store string, records ...Record) {
	t.Helper()
	rs, ok := db.LookupStore(store)
	require.True(t, ok)
	for _, rec := range records {
		k, err := NormalizeKey(rec.Key)
		require.NoError(t, err)
		rs.put(k, mustClone(rec.Value))
	}
}

func openStore(t *testing.T, db *Database, name string, mode Mode) (*Transaction, *ObjectStore) {
	t.Helper()
	tx, err := db.Transaction([]string{name}, mode)
	require.NoError(t, err)
	s, err := tx.ObjectStore(name)
	require.NoError(t, err)
	return tx, s
}

// recorder collects "<label>:<type>" entries from listeners.
type recorder struct {
	events []string
}

func (r *recorder) listen(target event.Target, label string, types ...string) {
	for _, typ := range types {
		target.Emitter().AddListener(typ, func(ev *event.Event) error {
			r.events = append(r.events, label+":"+ev.Type)
			return nil
		})
	}
}

func onSuccess(req *Request, fn func() error) {
	req.Emitter().AddListener("success", func(*event.Event) error { return fn() })
}

func storedKeys(t *testing.T, db *Database, store string) []any {
	t.Helper()
	rs, ok := db.LookupStore(store)
	require.True(t, ok)
	var keys []any
	for _, rec := range rs.Records() {
		keys = append(keys, rec.Key)
	}
	return keys
}

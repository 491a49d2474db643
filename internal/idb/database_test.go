package idb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabase_TransactionValidation(t *testing.T) {
	db, _ := setupDB(t)

	_, err := db.Transaction(nil, ReadOnly)
	assert.ErrorIs(t, err, ErrInvalidAccess)

	_, err = db.Transaction([]string{"books", "missing"}, ReadOnly)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.Transaction([]string{"books"}, VersionChange)
	assert.ErrorIs(t, err, ErrInvalidAccess)

	db.Close()
	_, err = db.Transaction([]string{"books"}, ReadOnly)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDatabase_ScopeIsSortedAndUnique(t *testing.T) {
	db, _ := setupDB(t)

	tx, err := db.Transaction([]string{"notes", "books", "notes"}, ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"books", "notes"}, tx.Scope())
	assert.Equal(t, "tx-1", tx.ID())
}

func TestDatabase_CreateStoreRejectsDuplicate(t *testing.T) {
	db, _ := setupDB(t)

	_, err := db.CreateStore("books", StoreOptions{})
	assert.ErrorIs(t, err, ErrConstraint)

	_, err = db.CreateStore("bad", StoreOptions{KeyPath: "a..b"})
	assert.ErrorIs(t, err, ErrInvalidAccess)

	assert.Equal(t, []string{"books", "notes"}, db.StoreNames())
}

func TestDatabase_OverlappingWritersRunInOrder(t *testing.T) {
	db, q := setupDB(t)

	var order []string
	writer := func(label string, key int) *Transaction {
		tx, s := openStore(t, db, "books", ReadWrite)
		req, err := s.Put(label, key)
		require.NoError(t, err)
		onSuccess(req, func() error {
			order = append(order, label)
			return nil
		})
		return tx
	}

	first := writer("first", 1)
	second := writer("second", 2)

	reader, notes := openStore(t, db, "notes", ReadOnly)
	req, err := notes.Count(nil)
	require.NoError(t, err)
	onSuccess(req, func() error {
		order = append(order, "reader")
		return nil
	})

	assert.True(t, first.scheduled)
	assert.False(t, second.scheduled)
	assert.True(t, reader.scheduled)

	require.NoError(t, q.Flush())
	assert.Equal(t, []string{"first", "reader", "second"}, order)
	assert.Equal(t, Finished, second.State())
}

func TestDatabase_ReadersShareScope(t *testing.T) {
	db, q := setupDB(t)
	seed(t, db, "books", Record{Key: 1, Value: "a"})

	var order []string
	for _, label := range []string{"r1", "r2"} {
		_, s := openStore(t, db, "books", ReadOnly)
		for range 2 {
			req, err := s.Get(1)
			require.NoError(t, err)
			onSuccess(req, func() error {
				order = append(order, label)
				return nil
			})
		}
	}

	require.NoError(t, q.Flush())
	assert.Equal(t, []string{"r1", "r2", "r1", "r2"}, order)
}

func TestDatabase_ReaderWaitsForWriter(t *testing.T) {
	db, q := setupDB(t)

	wtx, ws := openStore(t, db, "books", ReadWrite)
	_, err := ws.Put("a", 1)
	require.NoError(t, err)

	rtx, rs := openStore(t, db, "books", ReadOnly)
	get, err := rs.Get(1)
	require.NoError(t, err)

	assert.False(t, rtx.scheduled)
	require.NoError(t, q.Flush())

	assert.Equal(t, Finished, wtx.State())
	res, err := get.Result()
	require.NoError(t, err)
	assert.Equal(t, "a", res)
}

func TestDatabase_AbortedBlockedTransactionUnblocksOthers(t *testing.T) {
	db, q := setupDB(t)

	first, _ := openStore(t, db, "books", ReadWrite)
	second, _ := openStore(t, db, "books", ReadWrite)
	third, _ := openStore(t, db, "books", ReadWrite)

	require.NoError(t, second.Abort())
	assert.False(t, third.scheduled)

	require.NoError(t, q.Flush())
	assert.Equal(t, Finished, first.State())
	assert.True(t, third.Started())
	assert.False(t, second.Started())
	assert.Empty(t, db.pending)
}

func TestDatabase_UpgradeCreatesStore(t *testing.T) {
	db, q := setupDB(t)

	tx, err := db.Upgrade(2)
	require.NoError(t, err)
	assert.Equal(t, VersionChange, tx.Mode())
	assert.Equal(t, uint64(2), db.Version())

	authors, err := tx.CreateObjectStore("authors", StoreOptions{})
	require.NoError(t, err)
	_, err = authors.Put("ursula", "u1")
	require.NoError(t, err)

	same, err := tx.ObjectStore("authors")
	require.NoError(t, err)
	assert.Same(t, authors, same)
	assert.Equal(t, []string{"authors", "books", "notes"}, tx.Scope())

	require.NoError(t, q.Flush())
	assert.Equal(t, Finished, tx.State())
	assert.Equal(t, []any{"u1"}, storedKeys(t, db, "authors"))
}

func TestDatabase_AbortedUpgradeIsUndone(t *testing.T) {
	db, q := setupDB(t)
	seed(t, db, "books", Record{Key: 1, Value: "a"}, Record{Key: 2, Value: "b"})

	tx, err := db.Upgrade(3)
	require.NoError(t, err)

	_, err = tx.CreateObjectStore("authors", StoreOptions{})
	require.NoError(t, err)

	books, err := tx.ObjectStore("books")
	require.NoError(t, err)
	require.NoError(t, tx.DeleteObjectStore("books"))

	_, err = books.Put("c", 3)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = tx.ObjectStore("books")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tx.Abort())
	require.NoError(t, q.Flush())

	assert.Equal(t, uint64(1), db.Version())
	assert.Equal(t, []string{"books", "notes"}, db.StoreNames())
	assert.Equal(t, []any{float64(1), float64(2)}, storedKeys(t, db, "books"))
}

func TestDatabase_DeleteStorePurgesRecords(t *testing.T) {
	db, q := setupDB(t)
	seed(t, db, "books", Record{Key: 1, Value: "a"})
	old, _ := db.LookupStore("books")

	tx, err := db.Upgrade(2)
	require.NoError(t, err)
	require.NoError(t, tx.DeleteObjectStore("books"))
	assert.Equal(t, 1, old.Len())

	require.NoError(t, q.Flush())
	assert.Equal(t, []string{"notes"}, db.StoreNames())
	assert.Equal(t, 0, old.Len())
	assert.NoError(t, tx.Error())
}

func TestDatabase_UpgradeValidation(t *testing.T) {
	db, _ := setupDB(t)

	_, err := db.Upgrade(1)
	assert.ErrorIs(t, err, ErrVersion)

	tx, err := db.Transaction([]string{"books"}, ReadWrite)
	require.NoError(t, err)
	_, err = tx.CreateObjectStore("authors", StoreOptions{})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, tx.DeleteObjectStore("books"), ErrInvalidState)
}

func TestDatabase_UpgradeWaitsForEarlierTransactions(t *testing.T) {
	db, q := setupDB(t)

	reader, _ := openStore(t, db, "notes", ReadOnly)
	upgrade, err := db.Upgrade(2)
	require.NoError(t, err)
	later, _ := openStore(t, db, "books", ReadOnly)

	assert.True(t, reader.scheduled)
	assert.False(t, upgrade.scheduled)
	assert.False(t, later.scheduled)

	require.NoError(t, q.Flush())
	assert.Equal(t, Finished, upgrade.State())
	assert.Equal(t, Finished, later.State())
}

func TestDatabase_UndoUnknownStore(t *testing.T) {
	db, _ := setupDB(t)

	err := db.Undo(UndoEntry{Kind: UndoRestoreRecord, Store: "missing", Key: 1.0})
	assert.Error(t, err)

	err = db.Undo(UndoEntry{Kind: UndoReviveStore, Store: "books"})
	assert.Error(t, err)

	require.NoError(t, db.Undo(UndoEntry{Kind: UndoRestoreVersion, Version: 7}))
	assert.Equal(t, uint64(7), db.Version())
}

package idb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBooks(t *testing.T, db *Database) {
	t.Helper()
	seed(t, db, "books",
		Record{Key: 1, Value: "a"},
		Record{Key: 2, Value: "b"},
		Record{Key: 3, Value: "c"},
	)
}

// walk collects cursor keys by continuing from the success listener.
func walk(t *testing.T, req *Request, each func(c *Cursor)) *[]any {
	t.Helper()
	keys := &[]any{}
	onSuccess(req, func() error {
		res, err := req.Result()
		require.NoError(t, err)
		c, _ := res.(*Cursor)
		if c == nil {
			return nil
		}
		*keys = append(*keys, c.Key())
		if each != nil {
			each(c)
		}
		return c.Continue()
	})
	return keys
}

func TestCursor_IteratesInOrder(t *testing.T) {
	db, q := setupDB(t)
	seedBooks(t, db)
	_, s := openStore(t, db, "books", ReadOnly)

	next, err := s.OpenCursor(nil, DirectionNext)
	require.NoError(t, err)
	prev, err := s.OpenCursor(nil, DirectionPrev)
	require.NoError(t, err)

	nextKeys := walk(t, next, nil)
	prevKeys := walk(t, prev, nil)

	require.NoError(t, q.Flush())
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, *nextKeys)
	assert.Equal(t, []any{float64(3), float64(2), float64(1)}, *prevKeys)
}

func TestCursor_RespectsRange(t *testing.T) {
	db, q := setupDB(t)
	seedBooks(t, db)
	_, s := openStore(t, db, "books", ReadOnly)

	r, err := LowerBound(1, true)
	require.NoError(t, err)
	req, err := s.OpenCursor(r, DirectionNext)
	require.NoError(t, err)
	keys := walk(t, req, nil)

	require.NoError(t, q.Flush())
	assert.Equal(t, []any{float64(2), float64(3)}, *keys)
}

func TestCursor_EmptyStoreYieldsNil(t *testing.T) {
	db, q := setupDB(t)
	_, s := openStore(t, db, "books", ReadOnly)

	req, err := s.OpenCursor(nil, DirectionNext)
	require.NoError(t, err)
	require.NoError(t, q.Flush())

	res, err := req.Result()
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCursor_ContinueTwiceFails(t *testing.T) {
	db, q := setupDB(t)
	seedBooks(t, db)
	_, s := openStore(t, db, "books", ReadOnly)

	req, err := s.OpenCursor(nil, DirectionNext)
	require.NoError(t, err)

	var second error
	calls := 0
	onSuccess(req, func() error {
		calls++
		res, _ := req.Result()
		c, _ := res.(*Cursor)
		if c == nil || calls > 1 {
			return nil
		}
		require.NoError(t, c.Continue())
		assert.Equal(t, Pending, req.ReadyState())
		second = c.Continue()
		return nil
	})

	require.NoError(t, q.Flush())
	assert.ErrorIs(t, second, ErrInvalidState)
	assert.Equal(t, 2, calls)
}

func TestCursor_UpdateAndDelete(t *testing.T) {
	db, q := setupDB(t)
	seedBooks(t, db)
	_, s := openStore(t, db, "books", ReadWrite)

	req, err := s.OpenCursor(nil, DirectionNext)
	require.NoError(t, err)
	walk(t, req, func(c *Cursor) {
		switch c.Key() {
		case float64(1):
			_, err := c.Update("A")
			require.NoError(t, err)
		case float64(2):
			_, err := c.Delete()
			require.NoError(t, err)
		}
	})

	require.NoError(t, q.Flush())
	rs, _ := db.LookupStore("books")
	assert.Equal(t, []Record{{Key: float64(1), Value: "A"}, {Key: float64(3), Value: "c"}}, rs.Records())
}

func TestCursor_UpdateChecksInlineKey(t *testing.T) {
	db, q := setupDB(t)
	seed(t, db, "notes", Record{Key: 1, Value: map[string]any{"id": 1.0, "text": "a"}})
	_, s := openStore(t, db, "notes", ReadWrite)

	req, err := s.OpenCursor(nil, DirectionNext)
	require.NoError(t, err)

	var mismatch, ok error
	onSuccess(req, func() error {
		res, _ := req.Result()
		c, _ := res.(*Cursor)
		if c == nil {
			return nil
		}
		_, mismatch = c.Update(map[string]any{"id": 2.0})
		_, ok = c.Update(map[string]any{"id": 1.0, "text": "edited"})
		return nil
	})

	require.NoError(t, q.Flush())
	assert.ErrorIs(t, mismatch, ErrData)
	assert.NoError(t, ok)

	rs, _ := db.LookupStore("notes")
	stored, _ := rs.Get(1)
	assert.Equal(t, map[string]any{"id": 1.0, "text": "edited"}, stored)
}

func TestCursor_ReadOnlyUpdateFails(t *testing.T) {
	db, q := setupDB(t)
	seedBooks(t, db)
	_, s := openStore(t, db, "books", ReadOnly)

	req, err := s.OpenCursor(nil, DirectionNext)
	require.NoError(t, err)

	var updateErr error
	onSuccess(req, func() error {
		res, _ := req.Result()
		if c, _ := res.(*Cursor); c != nil && updateErr == nil {
			_, updateErr = c.Update("x")
		}
		return nil
	})

	require.NoError(t, q.Flush())
	assert.ErrorIs(t, updateErr, ErrReadOnly)
}

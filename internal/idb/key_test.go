package idb

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	k, err := NormalizeKey(int32(7))
	require.NoError(t, err)
	assert.Equal(t, float64(7), k)

	k, err = NormalizeKey([]any{1, "a", []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "a", []any{"b"}}, k)

	raw := []byte{1, 2}
	k, err = NormalizeKey(raw)
	require.NoError(t, err)
	raw[0] = 9
	assert.Equal(t, []byte{1, 2}, k)

	for _, bad := range []any{nil, math.NaN(), time.Time{}, true, map[string]any{}, []any{1, nil}} {
		_, err := NormalizeKey(bad)
		assert.ErrorIs(t, err, ErrData, "%#v", bad)
	}
}

func TestNormalizeKey_DepthLimit(t *testing.T) {
	var k any = 1
	for range maxKeyDepth + 2 {
		k = []any{k}
	}
	_, err := NormalizeKey(k)
	assert.ErrorIs(t, err, ErrData)
}

func TestCompareKeys_TypeOrder(t *testing.T) {
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ordered := []any{
		float64(-1),
		float64(10),
		date,
		date.Add(time.Hour),
		"",
		"a",
		[]byte{},
		[]byte{0},
		[]any{},
		[]any{float64(1)},
		[]any{float64(1), float64(0)},
		[]any{"a"},
	}
	for i := range ordered {
		for j := range ordered {
			want := compareOrdered(i, j)
			assert.Equal(t, want, CompareKeys(ordered[i], ordered[j]), "%v vs %v", ordered[i], ordered[j])
		}
	}
}

func TestCompareKeys_UTF16Order(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800...) and sorts before U+FFFF.
	assert.Equal(t, -1, CompareKeys("\U00010000", "\uffff"))
	assert.Equal(t, 1, CompareKeys("b", "ab"))
	assert.Equal(t, -1, CompareKeys("a", "ab"))
}

func TestKeyRange(t *testing.T) {
	only, err := Only(2)
	require.NoError(t, err)
	assert.True(t, only.Includes(float64(2)))
	assert.False(t, only.Includes(float64(3)))

	lower, err := LowerBound(2, true)
	require.NoError(t, err)
	assert.False(t, lower.Includes(float64(2)))
	assert.True(t, lower.Includes("any string"))

	upper, err := UpperBound("m", false)
	require.NoError(t, err)
	assert.True(t, upper.Includes("m"))
	assert.True(t, upper.Includes(float64(100)))
	assert.False(t, upper.Includes("n"))

	bound, err := Bound(1, 5, false, true)
	require.NoError(t, err)
	assert.True(t, bound.Includes(float64(1)))
	assert.False(t, bound.Includes(float64(5)))

	var all *KeyRange
	assert.True(t, all.Includes("x"))
}

func TestKeyRange_Invalid(t *testing.T) {
	_, err := Bound(5, 1, false, false)
	assert.ErrorIs(t, err, ErrData)

	_, err = Bound(1, 1, true, false)
	assert.ErrorIs(t, err, ErrData)

	_, err = Only(math.NaN())
	assert.ErrorIs(t, err, ErrData)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("prevunique")
	require.NoError(t, err)
	assert.Equal(t, DirectionPrev, d)

	_, err = ParseDirection("sideways")
	assert.ErrorIs(t, err, ErrData)
}

func TestRecordStore_KeyGeneratorLimit(t *testing.T) {
	rs := newRecordStore("s", StoreOptions{AutoIncrement: true})
	rs.observeKey(float64(maxGeneratedKey))

	_, err := rs.nextKey()
	assert.ErrorIs(t, err, ErrConstraint)
}

func TestRecordStore_Seek(t *testing.T) {
	rs := newRecordStore("s", StoreOptions{})
	for _, k := range []float64{1, 2, 3} {
		rs.put(k, k*10)
	}

	rec, ok := rs.seek(nil, DirectionNext, nil)
	require.True(t, ok)
	assert.Equal(t, float64(1), rec.Key)

	rec, ok = rs.seek(nil, DirectionNext, float64(1))
	require.True(t, ok)
	assert.Equal(t, float64(2), rec.Key)

	rec, ok = rs.seek(nil, DirectionPrev, float64(2))
	require.True(t, ok)
	assert.Equal(t, float64(1), rec.Key)

	_, ok = rs.seek(nil, DirectionNext, float64(3))
	assert.False(t, ok)
}

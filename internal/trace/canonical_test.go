package trace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"integral float", 3.0, "3"},
		{"fraction", 0.5, "0.5"},
		{"negative zero", math.Copysign(0, -1), "0"},
		{"large float", 1e21, "1e+21"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"no html escape", "<a&b>", `"<a&b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra":      1,
		"alpha":      map[string]any{"b": 1, "a": 2},
		"\U00010000": 3,
		"\uffff":     4,
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"alpha\":{\"a\":2,\"b\":1},\"zebra\":1,\"\U00010000\":3,\"\uffff\":4}", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	result, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalLineSeparators(t *testing.T) {
	result, err := MarshalCanonical("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	result, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(result))
}

func TestMarshalCanonicalStructs(t *testing.T) {
	events := []Event{
		{Seq: 1, Tick: 2, Target: "tx", Type: "abort", Error: "ConstraintError"},
		{Seq: 2, Tick: 2, Target: "db", Type: "abort"},
	}

	result, err := MarshalCanonical(events)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"error":"ConstraintError","seq":1,"target":"tx","tick":2,"type":"abort"},{"seq":2,"target":"db","tick":2,"type":"abort"}]`,
		string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"x": math.Inf(1)})
	assert.Error(t, err)

	_, err = MarshalCanonical(make(chan int))
	assert.Error(t, err)
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	first := r.Record(Event{Target: "r1", Type: "success"})
	r.Record(Event{Target: "tx", Type: "complete"})

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, []string{"r1:success", "tx:complete"}, r.Labels())

	events := r.Events()
	events[0].Type = "changed"
	assert.Equal(t, "success", r.Events()[0].Type)
}

package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idbtx/internal/trace"
)

func sampleTrace() []trace.Event {
	return []trace.Event{
		{Seq: 1, Tick: 2, Target: "tx1.put1", Type: "success"},
		{Seq: 2, Tick: 3, Target: "tx1.add1", Type: "error", Error: "ConstraintError"},
		{Seq: 3, Tick: 3, Target: "tx1", Type: "error", Error: "ConstraintError"},
		{Seq: 4, Tick: 4, Target: "tx1", Type: "abort", Error: "ConstraintError"},
	}
}

func TestAssertEventOrder(t *testing.T) {
	events := sampleTrace()

	assert.NoError(t, assertEventOrder(events, Assertion{
		Type:   AssertEventOrder,
		Events: []string{"tx1.put1:success", "tx1:abort"},
	}))

	err := assertEventOrder(events, Assertion{
		Type:   AssertEventOrder,
		Events: []string{"tx1:abort", "tx1.put1:success"},
	})
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Contains(t, aerr.Actual, `first missing "tx1.put1:success"`)
	assert.Contains(t, aerr.Error(), "tick 3 tx1.add1:error (ConstraintError)")
}

func TestAssertEventCount(t *testing.T) {
	events := sampleTrace()
	assert.NoError(t, assertEventCount(events, "tx1:error", 1, AssertEventCount))
	assert.NoError(t, assertEventCount(events, "tx1:complete", 0, AssertEventAbsent))
	assert.Error(t, assertEventCount(events, "tx1:abort", 0, AssertEventAbsent))
}

func TestAssertLaterTick(t *testing.T) {
	events := sampleTrace()

	assert.NoError(t, assertLaterTick(events, Assertion{Type: AssertLaterTick, Event: "tx1:abort", After: "tx1.add1:error"}))

	err := assertLaterTick(events, Assertion{Type: AssertLaterTick, Event: "tx1:error", After: "tx1.add1:error"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at tick 3")

	err = assertLaterTick(events, Assertion{Type: AssertLaterTick, Event: "tx1:complete", After: "tx1.add1:error"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing tx1:complete")
}

func TestEvaluateAssertions_StateAssertions(t *testing.T) {
	s := booksScenario("state", TxDef{
		Mode:  "readwrite",
		Scope: []string{"books"},
		Steps: []Step{{Op: OpPut, Key: 2, Value: 1.0}},
	})
	s.Assertions = []Assertion{
		{Type: AssertRecord, Store: "books", Key: 2, Value: 1},
		{Type: AssertRecord, Store: "books", Key: 1},
		{Type: AssertRecordAbsent, Store: "books", Key: 3},
		{Type: AssertRequestError, Request: "tx1.put1"},
	}

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	failing := []Assertion{
		{Type: AssertRecord, Store: "ghosts", Key: 1},
		{Type: AssertRecordAbsent, Store: "books", Key: 2},
		{Type: AssertRequestError, Request: "tx1.nothing"},
		{Type: "bogus"},
	}
	s.Assertions = failing
	result, err = Run(s)
	require.NoError(t, err)
	assert.Len(t, result.Errors, len(failing))
}

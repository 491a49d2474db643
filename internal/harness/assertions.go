package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/idbtx/internal/idb"
	"github.com/roach88/idbtx/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] tick %d %s", ev.Seq, ev.Tick, ev.Label())
		if ev.Error != "" {
			fmt.Fprintf(&buf, " (%s)", ev.Error)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// AssertionContext gives assertions access to the final engine state.
type AssertionContext struct {
	Database     *idb.Database
	Transactions map[string]*idb.Transaction
	Requests     map[string]*idb.Request
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}

func evaluate(events []trace.Event, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertEventOrder:
		return assertEventOrder(events, a)
	case AssertEventCount:
		return assertEventCount(events, a.Event, a.Count, a.Type)
	case AssertEventAbsent:
		return assertEventCount(events, a.Event, 0, a.Type)
	case AssertLaterTick:
		return assertLaterTick(events, a)
	case AssertTxState:
		return assertTxState(events, a, actx)
	case AssertTxError:
		return assertTxError(events, a, actx)
	case AssertRecord, AssertRecordAbsent:
		return assertRecord(events, a, actx)
	case AssertRequestError:
		return assertRequestError(events, a, actx)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// assertEventOrder checks that the labels appear in the given order. Other
// events may appear between them.
func assertEventOrder(events []trace.Event, a Assertion) error {
	next := 0
	for _, ev := range events {
		if next < len(a.Events) && ev.Label() == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}

	return &AssertionError{
		Type:     a.Type,
		Expected: strings.Join(a.Events, " -> "),
		Actual:   fmt.Sprintf("matched %d of %d, first missing %q", next, len(a.Events), a.Events[next]),
		Trace:    events,
	}
}

func assertEventCount(events []trace.Event, label string, want int, typ string) error {
	got := 0
	for _, ev := range events {
		if ev.Label() == label {
			got++
		}
	}
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     typ,
		Expected: fmt.Sprintf("%s exactly %d time(s)", label, want),
		Actual:   fmt.Sprintf("%d time(s)", got),
		Trace:    events,
	}
}

// assertLaterTick checks that the first Event is delivered on a strictly
// later tick than the first After.
func assertLaterTick(events []trace.Event, a Assertion) error {
	after, okAfter := firstEvent(events, a.After)
	ev, okEvent := firstEvent(events, a.Event)
	if okAfter && okEvent && ev.Tick > after.Tick {
		return nil
	}

	actual := "missing " + a.After
	switch {
	case okAfter && !okEvent:
		actual = "missing " + a.Event
	case okAfter && okEvent:
		actual = fmt.Sprintf("%s at tick %d, %s at tick %d", a.After, after.Tick, a.Event, ev.Tick)
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s on a later tick than %s", a.Event, a.After),
		Actual:   actual,
		Trace:    events,
	}
}

func firstEvent(events []trace.Event, label string) (trace.Event, bool) {
	for _, ev := range events {
		if ev.Label() == label {
			return ev, true
		}
	}
	return trace.Event{}, false
}

func assertTxState(events []trace.Event, a Assertion, actx *AssertionContext) error {
	tx, ok := actx.Transactions[a.Tx]
	if !ok {
		return fmt.Errorf("transaction %q was never opened", a.Tx)
	}
	if got := tx.State().String(); got != a.State {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s in state %s", a.Tx, a.State),
			Actual:   got,
			Trace:    events,
		}
	}
	return nil
}

func assertTxError(events []trace.Event, a Assertion, actx *AssertionContext) error {
	tx, ok := actx.Transactions[a.Tx]
	if !ok {
		return fmt.Errorf("transaction %q was never opened", a.Tx)
	}
	if got := idb.NameOf(tx.Error()); got != a.Error {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s error %s", a.Tx, describeName(a.Error)),
			Actual:   describeName(got),
			Trace:    events,
		}
	}
	return nil
}

func assertRequestError(events []trace.Event, a Assertion, actx *AssertionContext) error {
	req, ok := actx.Requests[a.Request]
	if !ok {
		return fmt.Errorf("request %q was never issued", a.Request)
	}
	if req.ReadyState() != idb.Done {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s done", a.Request),
			Actual:   "pending",
			Trace:    events,
		}
	}
	if got := idb.NameOf(req.Err()); got != a.Error {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s error %s", a.Request, describeName(a.Error)),
			Actual:   describeName(got),
			Trace:    events,
		}
	}
	return nil
}

// assertRecord compares the stored value with the expected one by their
// canonical encodings, so 1 and 1.0 compare equal.
func assertRecord(events []trace.Event, a Assertion, actx *AssertionContext) error {
	rs, ok := actx.Database.LookupStore(a.Store)
	if !ok {
		return fmt.Errorf("store %q does not exist", a.Store)
	}
	value, found := rs.Get(a.Key)

	if a.Type == AssertRecordAbsent {
		if !found {
			return nil
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("no record at %s/%s", a.Store, canonical(a.Key)),
			Actual:   canonical(value),
			Trace:    events,
		}
	}

	if !found {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("record at %s/%s", a.Store, canonical(a.Key)),
			Actual:   "no record",
			Trace:    events,
		}
	}
	if a.Value == nil {
		return nil
	}
	if want, got := canonical(a.Value), canonical(value); want != got {
		return &AssertionError{
			Type:     a.Type,
			Expected: want,
			Actual:   got,
			Trace:    events,
		}
	}
	return nil
}

func describeName(name string) string {
	if name == "" {
		return "none"
	}
	return name
}

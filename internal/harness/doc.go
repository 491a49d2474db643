// Package harness runs transaction scenarios against the engine and checks
// the observed event trace.
//
// # Scenario Format
//
// Scenarios are YAML (or CUE, for files ending in .cue) documents:
//
//	name: put_then_constraint_aborts
//	description: "A failed add aborts the transaction and rolls back the put"
//	stores:
//	  - name: books
//	seed:
//	  - { store: books, key: 1, value: { title: "Dune" } }
//	transactions:
//	  - name: tx1
//	    mode: readwrite
//	    scope: [books]
//	    steps:
//	      - { op: put, key: 2, value: { title: "Emma" } }
//	      - { op: add, key: 1, value: { title: "again" } }
//	assertions:
//	  - type: event_order
//	    events: [tx1.put1:success, tx1.add1:error, tx1:abort]
//	  - type: record_absent
//	    store: books
//	    key: 2
//
// Requests are labeled "<tx>.<op><n>" unless a step sets name. Every event
// delivery is recorded as "<target>:<type>" with the scheduler tick it
// happened on. Synchronous failures are recorded as "<label>:throw", and
// listener errors re-raised by a driver as "scheduler:uncaught".
//
// # Step Hooks
//
//   - prevent_default: cancel the request's error event
//   - listener_error: the request's listener fails with this message
//   - then: steps applied inside the success listener
//   - later: steps applied by a separate task scheduled from the listener
//
// Cursor steps advance automatically; their hooks run once the cursor is
// exhausted.
//
// # Assertion Types
//
//   - event_order: labels appear in this order (not necessarily adjacent)
//   - event_count, event_absent: exact occurrence count of a label
//   - later_tick: event is delivered on a strictly later tick than after
//   - tx_state, tx_error: final transaction state and error name
//   - record, record_absent: final store contents
//   - request_error: final error name of a labeled request
//
// # Deterministic Testing
//
// Each run gets its own scheduler, database, sequential transaction IDs
// (testutil.SequenceGenerator) and logical clock (trace.Clock), so traces
// are identical across runs and can be compared to golden files with
// RunWithGolden. WithClock substitutes a shared clock.
package harness

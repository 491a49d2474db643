// Package idb implements an in-memory transactional object-store database
// with IndexedDB transaction semantics.
//
// ARCHITECTURE:
//
// Driver Loop:
// Every transaction is driven by a sched.Scheduler. One tick executes at
// most one queued request, dispatches its "success" or "error" event, and
// schedules the next tick. Listeners run inside the tick, so requests they
// enqueue join the same transaction. Between ticks the transaction is
// inactive.
//
// Lifecycle:
//
//	active --(tick yields)--> inactive --(tick resumes)--> active
//	active --Commit--> committing
//	active|inactive|committing --(queue drains)--> finished  (fires "complete")
//	active|inactive --Abort or failed request--> finished     (fires "abort" later)
//
// Ordering:
// Requests execute in FIFO order. A request enqueued by an operation while
// it executes runs immediately after that operation.
//
// Rollback:
// Mutations append UndoEntry commands to the transaction's RollbackLog
// before they apply. Abort replays the log in reverse through the Database,
// which interprets each entry.
//
// Scheduling:
// A Database starts a transaction only once no earlier unfinished
// transaction overlaps its scope with write access on either side.
//
// Nothing in this package is safe for concurrent use. All calls must come
// from the goroutine that drives the scheduler.
package idb

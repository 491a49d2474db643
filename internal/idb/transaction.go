package idb

import (
	"log/slog"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/roach88/idbtx/internal/event"
	"github.com/roach88/idbtx/internal/sched"
)

// Mode is the access mode of a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	// VersionChange is the privileged schema-upgrade mode created by
	// Database.Upgrade.
	VersionChange
)

func (m Mode) String() string {
	switch m {
	case ReadWrite:
		return "readwrite"
	case VersionChange:
		return "versionchange"
	default:
		return "readonly"
	}
}

// ParseMode parses "readonly" or "readwrite".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "readonly":
		return ReadOnly, nil
	case "readwrite":
		return ReadWrite, nil
	default:
		return ReadOnly, errors.Newf("invalid transaction mode %q", s)
	}
}

// State is the lifecycle state of a transaction.
type State int

const (
	Active State = iota
	Inactive
	Committing
	Finished
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Committing:
		return "committing"
	case Finished:
		return "finished"
	default:
		return "active"
	}
}

// Operation is the unit of work a request executes. It runs synchronously
// inside the driver loop and either returns a result or fails; a failure
// carrying an *Error names the DOM error the request completes with.
type Operation func() (any, error)

type queuedRequest struct {
	op  Operation
	req *Request
}

// Transaction is an atomic, serially executed batch of requests against a
// fixed set of object stores.
//
// A transaction is driven entirely by its scheduler. Each tick of the
// driver loop executes at most one request, dispatches its success or error
// event, and schedules the next tick. When the queue drains the transaction
// commits and fires "complete"; on abort the rollback log is replayed in
// reverse and "abort" fires on a later tick.
//
// INVARIANTS:
//   - scope never changes after construction
//   - at most one request executes at a time
//   - Finished is terminal
type Transaction struct {
	emitter event.Emitter

	id    string
	db    *Database
	mode  Mode
	scope []string // sorted, unique; ignored in VersionChange mode

	state     State
	scheduled bool
	started   bool
	aborting  bool
	err       error

	queue     []queuedRequest
	executing bool
	insertAt  int // queue position for requests enqueued by the executing operation
	requests  int

	rollback RollbackLog
	handles  map[string]*ObjectStore

	sched    sched.Scheduler
	logger   *slog.Logger
	observer Observer
}

var _ event.Target = (*Transaction)(nil)

func newTransaction(db *Database, id string, scope []string, mode Mode) *Transaction {
	return &Transaction{
		id:       id,
		db:       db,
		mode:     mode,
		scope:    scope,
		state:    Active,
		handles:  make(map[string]*ObjectStore),
		sched:    db.sched,
		logger:   db.logger.With("tx", id),
		observer: db.observer,
	}
}

// Emitter returns the transaction's listener registry.
func (t *Transaction) Emitter() *event.Emitter { return &t.emitter }

// ID returns the transaction identifier.
func (t *Transaction) ID() string { return t.id }

// Database returns the database the transaction was opened against.
func (t *Transaction) Database() *Database { return t.db }

// Mode returns the access mode.
func (t *Transaction) Mode() Mode { return t.mode }

// State returns the lifecycle state.
func (t *Transaction) State() State { return t.state }

// Started reports whether the driver loop has begun.
func (t *Transaction) Started() bool { return t.started }

// Error returns the failure the transaction aborted with, or nil. A
// transaction aborted explicitly through Abort has no error.
func (t *Transaction) Error() error { return t.err }

// Scope returns the store names the transaction may access. For a
// versionchange transaction this is every store currently in the database.
func (t *Transaction) Scope() []string {
	if t.mode == VersionChange {
		return t.db.StoreNames()
	}
	return slices.Clone(t.scope)
}

// QueueLen returns the number of queued requests, including the ones a
// concurrent abort already completed.
func (t *Transaction) QueueLen() int { return len(t.queue) }

// RollbackLog returns a copy of the undo entries recorded so far.
func (t *Transaction) RollbackLog() []UndoEntry { return t.rollback.Entries() }

// LogUndo appends a compensating command. Mutating operations call it
// before they apply a change.
func (t *Transaction) LogUndo(e UndoEntry) {
	t.rollback.Append(e)
}

func (t *Transaction) inScope(name string) bool {
	if t.mode == VersionChange {
		return true
	}
	_, found := slices.BinarySearch(t.scope, name)
	return found
}

// overlaps reports whether two transactions touch a common store.
func (t *Transaction) overlaps(o *Transaction) bool {
	if t.mode == VersionChange || o.mode == VersionChange {
		return true
	}
	for _, name := range t.scope {
		if o.inScope(name) {
			return true
		}
	}
	return false
}

// Enqueue schedules op for execution and returns its request. Passing an
// existing request reuses it for another execution attempt, which is how
// cursor continuation works.
//
// Requests enqueued while an operation is executing run immediately after
// that operation's request, in the order they were enqueued; all other
// requests are appended to the queue.
//
// Fails with TransactionInactiveError unless the transaction is active.
func (t *Transaction) Enqueue(source Source, op Operation, existing *Request) (*Request, error) {
	if t.state != Active || t.aborting {
		return nil, NewError(TransactionInactiveErr, "transaction %s is %s", t.id, t.state)
	}

	req := existing
	if req == nil {
		t.requests++
		req = newRequest(t, source, t.requests)
	} else {
		req.reset()
	}

	qr := queuedRequest{op: op, req: req}
	if t.executing {
		t.queue = slices.Insert(t.queue, t.insertAt, qr)
		t.insertAt++
	} else {
		t.queue = append(t.queue, qr)
	}

	return req, nil
}

// ObjectStore returns the transaction's handle for the named store. Handles
// are cached, so repeated calls return the same handle.
//
// Fails with InvalidStateError unless the transaction is active, and with
// NotFoundError if the store is outside the scope or missing.
func (t *Transaction) ObjectStore(name string) (*ObjectStore, error) {
	if t.state != Active {
		return nil, NewError(InvalidStateErr, "transaction %s is %s", t.id, t.state)
	}
	if h, ok := t.handles[name]; ok {
		return h, nil
	}
	if !t.inScope(name) {
		return nil, NewError(NotFoundErr, "store %q is not in the transaction scope", name)
	}
	rs, ok := t.db.LookupStore(name)
	if !ok {
		return nil, NewError(NotFoundErr, "store %q does not exist", name)
	}

	h := newObjectStore(t, rs)
	t.handles[name] = h
	return h, nil
}

// Commit stops the transaction from accepting requests. Requests already
// queued still execute before the transaction finishes.
//
// Fails with InvalidStateError unless the transaction is active.
func (t *Transaction) Commit() error {
	if t.state != Active {
		return NewError(InvalidStateErr, "cannot commit: transaction %s is %s", t.id, t.state)
	}
	t.state = Committing
	t.logger.Debug("transaction committing", "queued", len(t.queue))
	return nil
}

// Abort rolls the transaction back. Pending requests fail with AbortError,
// and "abort" fires on a later tick. The transaction's Error stays nil.
//
// Fails with InvalidStateError once the transaction is committing, aborting
// or finished. The returned error otherwise reports listener failures
// raised while the pending requests' error events were dispatched.
func (t *Transaction) Abort() error {
	if t.aborting {
		return NewError(InvalidStateErr, "cannot abort: transaction %s is already aborting", t.id)
	}
	if t.state == Committing || t.state == Finished {
		return NewError(InvalidStateErr, "cannot abort: transaction %s is %s", t.id, t.state)
	}
	t.state = Active
	return t.abort(nil)
}

// abort runs the abort procedure. cause, when non-nil, becomes the
// transaction's error.
func (t *Transaction) abort(cause error) error {
	if t.state == Finished || t.aborting {
		return nil
	}
	t.aborting = true
	t.state = Active

	if err := t.rollback.Replay(t.db); err != nil {
		t.logger.Warn("rollback incomplete", "error", err)
	}

	if cause != nil {
		t.err = cause
	}

	pending := t.queue
	t.queue = nil

	var listenerErrs error
	for _, qr := range pending {
		req := qr.req
		if req.readyState == Done {
			continue
		}
		if req.source == nil {
			req.markDone()
			continue
		}
		req.fail(NewError(AbortErr, "transaction was aborted"))
		ev := event.New("error", true, true)
		ev.Path = t.requestPath()
		if err := event.Dispatch(req, ev); err != nil {
			listenerErrs = errors.CombineErrors(listenerErrs, err)
		}
	}

	t.sched.Schedule(func() error {
		ev := event.New("abort", true, false)
		ev.Path = []event.Target{t.db}
		return event.Dispatch(t, ev)
	})

	t.state = Finished
	t.aborting = false
	t.finished(OutcomeAborted)
	return listenerErrs
}

// requestPath is the dispatch path for request events.
func (t *Transaction) requestPath() []event.Target {
	return []event.Target{t.db, t}
}

// finished reports a terminal transition to the database and observer.
func (t *Transaction) finished(outcome Outcome) {
	t.logger.Info("transaction finished",
		"mode", t.mode.String(),
		"outcome", string(outcome),
		"requests", t.requests,
		"error", NameOf(t.err),
	)
	t.observer.TransactionFinished(t.mode, outcome)
	t.db.transactionFinished(t)
}

// start is the driver loop. The database schedules the first tick; every
// tick schedules the next one until the transaction finishes.
func (t *Transaction) start() error {
	if t.state == Finished {
		return nil
	}
	if t.state == Inactive {
		t.state = Active
	}
	if !t.started {
		t.started = true
		t.observer.TransactionStarted(t.mode)
		t.logger.Debug("transaction started", "mode", t.mode.String(), "scope", t.scope)
	}

	var next *queuedRequest
	for len(t.queue) > 0 {
		qr := t.queue[0]
		t.queue[0] = queuedRequest{}
		t.queue = t.queue[1:]
		if qr.req.readyState != Done {
			next = &qr
			break
		}
	}

	if next == nil {
		t.state = Finished
		t.finished(OutcomeCommitted)
		if t.err != nil {
			return nil
		}
		return event.Dispatch(t, event.New("complete", false, false))
	}

	if next.req.source == nil {
		if out := t.execute(next.op); out.failed() {
			t.logger.Warn("bookkeeping request failed", "request", next.req.index, "error", out.err)
		}
		next.req.markDone()
		t.yield()
		return nil
	}

	ev, defaultAction := t.complete(next)

	if err := event.Dispatch(next.req, ev); err != nil {
		if t.state != Committing {
			err = errors.CombineErrors(err, t.abort(NewError(AbortErr, "listener failed: %v", err)))
		}
		t.yield()
		return err
	}

	var abortErr error
	if defaultAction != nil && !ev.DefaultPrevented() {
		abortErr = defaultAction()
	}

	t.yield()
	return abortErr
}

// complete executes a sourced request, records its outcome, and builds the
// event to dispatch. A failed request carries a default action that aborts
// the transaction with the failure.
func (t *Transaction) complete(qr *queuedRequest) (*event.Event, func() error) {
	out := t.execute(qr.op)

	if t.state == Inactive {
		t.state = Active
	}

	if !out.failed() {
		qr.req.succeed(out.result)
		t.observer.RequestCompleted(OutcomeSuccess)
		t.logger.Debug("request succeeded", "request", qr.req.index, "source", qr.req.source.SourceName())

		ev := event.New("success", false, false)
		ev.Path = t.requestPath()
		return ev, nil
	}

	qr.req.fail(out.err)
	t.observer.RequestCompleted(OutcomeError)
	t.logger.Debug("request failed",
		"request", qr.req.index,
		"source", qr.req.source.SourceName(),
		"error", NameOf(out.err),
	)

	ev := event.New("error", true, true)
	ev.Path = t.requestPath()
	cause := asDOMError(out.err)
	return ev, func() error { return t.abort(cause) }
}

// outcome is the result of executing one operation.
type outcome struct {
	result any
	err    error
}

func (o outcome) failed() bool { return o.err != nil }

// execute runs op with nested enqueues redirected to the front of the queue.
// A panicking operation fails its request with UnknownError.
func (t *Transaction) execute(op Operation) (out outcome) {
	t.executing = true
	t.insertAt = 0
	defer func() {
		t.executing = false
		t.insertAt = 0
		if r := recover(); r != nil {
			out = outcome{err: NewError(UnknownErr, "operation panicked: %v", r)}
		}
	}()
	result, err := op()
	return outcome{result: result, err: err}
}

// yield schedules the next driver tick. Between ticks an active
// transaction is inactive, so unrelated tasks cannot enqueue into it.
func (t *Transaction) yield() {
	if t.state == Finished {
		return
	}
	t.sched.Schedule(t.start)
	if t.state == Active {
		t.state = Inactive
	}
}

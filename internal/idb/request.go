package idb

import (
	"github.com/cockroachdb/errors"

	"github.com/roach88/idbtx/internal/event"
)

// ReadyState is the lifecycle state of a Request.
type ReadyState int

const (
	Pending ReadyState = iota
	Done
)

func (s ReadyState) String() string {
	if s == Done {
		return "done"
	}
	return "pending"
}

// Source is the object that produced a request: an object store handle or
// a cursor. Requests without a source are engine bookkeeping.
type Source interface {
	SourceName() string
}

// Request is the handle for one asynchronous operation.
//
// It starts pending and is moved to done exactly once per execution attempt
// by the transaction that owns it, with either a result or an error.
type Request struct {
	emitter event.Emitter

	tx     *Transaction
	source Source
	index  int

	readyState ReadyState
	result     any
	err        error
}

var _ event.Target = (*Request)(nil)

func newRequest(tx *Transaction, source Source, index int) *Request {
	return &Request{tx: tx, source: source, index: index}
}

// Emitter returns the request's listener registry.
func (r *Request) Emitter() *event.Emitter { return &r.emitter }

// ReadyState returns pending or done.
func (r *Request) ReadyState() ReadyState { return r.readyState }

// Source returns the producing store or cursor, or nil for bookkeeping requests.
func (r *Request) Source() Source { return r.source }

// Transaction returns the owning transaction.
func (r *Request) Transaction() *Transaction { return r.tx }

// Index is the request's 1-based creation order within its transaction.
func (r *Request) Index() int { return r.index }

// Result returns the operation result. It fails with InvalidStateError
// while the request is pending. A failed request yields a nil result; use
// Err for the failure.
func (r *Request) Result() (any, error) {
	if r.readyState != Done {
		return nil, NewError(InvalidStateErr, "request is still pending")
	}
	return r.result, nil
}

// Err returns the failure a done request completed with, or nil. It
// returns InvalidStateError while the request is pending.
func (r *Request) Err() error {
	if r.readyState != Done {
		return NewError(InvalidStateErr, "request is still pending")
	}
	return r.err
}

func (r *Request) succeed(result any) {
	if r.readyState == Done {
		panic(errors.AssertionFailedf("request %d completed twice", r.index))
	}
	r.readyState = Done
	r.result = result
	r.err = nil
}

func (r *Request) fail(err error) {
	if r.readyState == Done {
		panic(errors.AssertionFailedf("request %d completed twice", r.index))
	}
	r.readyState = Done
	r.result = nil
	r.err = err
}

// markDone completes a bookkeeping request without a result.
func (r *Request) markDone() {
	r.readyState = Done
}

// reset returns a reused request to pending for another execution attempt.
func (r *Request) reset() {
	r.readyState = Pending
	r.result = nil
	r.err = nil
}

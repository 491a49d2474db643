package idb

// Observer receives lifecycle notifications for metrics.
// Calls happen synchronously on the driver's goroutine.
type Observer interface {
	TransactionStarted(mode Mode)
	TransactionFinished(mode Mode, outcome Outcome)
	RequestCompleted(outcome Outcome)
}

// Outcome is the terminal result of a request or transaction.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCommitted Outcome = "committed"
	OutcomeAborted   Outcome = "aborted"
)

type nopObserver struct{}

func (nopObserver) TransactionStarted(Mode)           {}
func (nopObserver) TransactionFinished(Mode, Outcome) {}
func (nopObserver) RequestCompleted(Outcome)          {}

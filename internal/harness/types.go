package harness

import "github.com/roach88/idbtx/internal/trace"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: no runner errors and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace contains every observed event delivery in order.
	Trace []trace.Event `json:"trace"`

	// Errors contains failed assertions and runner errors.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Ticks is the number of scheduler ticks the run took.
	Ticks int64 `json:"ticks"`

	// Transactions summarizes each opened transaction by label.
	Transactions map[string]TxOutcome `json:"transactions"`
}

// TxOutcome is the final state of one transaction.
type TxOutcome struct {
	ID    string `json:"id"`
	Mode  string `json:"mode"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:         true,
		Trace:        []trace.Event{},
		Errors:       []string{},
		Transactions: make(map[string]TxOutcome),
	}
}

// AddError adds an error message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

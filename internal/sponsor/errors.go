package sponsor

import "errors"

// Error taxonomy for the sponsorship pipeline. The split between ErrSubmission
// and ErrExecutionFailed is load-bearing: submission faults may be retried with
// the same signed bytes, execution failures never (the gas coin reference is
// stale once the ledger has seen the transaction).
var (
	// ErrValidation: the intent is malformed. Client-fixable, no ledger call
	// made.
	ErrValidation = errors.New("validation error")

	// ErrBelowMinimum: the intent amount is under the configured floor.
	// Rejected before any ledger call.
	ErrBelowMinimum = errors.New("donation amount below configured minimum")

	// ErrNoCoinsFound: the owner holds no coins of the requested type.
	ErrNoCoinsFound = errors.New("no coins found")

	// ErrInsufficientBalance: the owner's combined coin balance is below the
	// required amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrSimulationFailed: the dry run reported a non-success status. The
	// simulator's message is surfaced verbatim and never retried unchanged.
	ErrSimulationFailed = errors.New("simulation failed")

	// ErrSubmission: transport or RPC fault during submission. Identical signed
	// bytes may be resubmitted once the outcome has been resolved.
	ErrSubmission = errors.New("submission fault")

	// ErrExecutionFailed: the ledger finalized a failure for these bytes.
	// Callers must rebuild from scratch.
	ErrExecutionFailed = errors.New("execution failed")
)

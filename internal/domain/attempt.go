package domain

// AttemptState is the lifecycle state of a copy-trade attempt.
type AttemptState string

const (
	AttemptQueued    AttemptState = "queued"
	AttemptExecuting AttemptState = "executing"
	AttemptSucceeded AttemptState = "succeeded"
	AttemptFailed    AttemptState = "failed"
)

// IsValid checks if the state is a valid value.
func (s AttemptState) IsValid() bool {
	switch s {
	case AttemptQueued, AttemptExecuting, AttemptSucceeded, AttemptFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the state is a terminal state.
func (s AttemptState) IsTerminal() bool {
	return s == AttemptSucceeded || s == AttemptFailed
}

// CopyTradeAttempt is the unit of work in the execution queue: one user's
// replication of one signal. ID is derived deterministically from
// (userID, txSignature) so re-processing the same signal for the same user
// is a no-op. Lifecycle: queued -> executing -> succeeded | failed; terminal
// attempts are persisted to the trade ledger and discarded from memory.
type CopyTradeAttempt struct {
	ID           string
	UserID       string
	SourceWallet string
	Signal       SwapEvent
	EnqueuedAt   int64 // Unix timestamp in milliseconds
	State        AttemptState
}

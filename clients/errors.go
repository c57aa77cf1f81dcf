package clients

import "strings"

// Chain error codes. Submission codes mean the node rejected the
// transaction; the timeout code means its fate is unknown.
const (
	// -----------------------------
	// SUBMISSION
	// -----------------------------
	ErrInsufficientBalance = "insufficient_balance"
	ErrSequenceConflict    = "sequence_number_conflict"
	ErrSimulationAbort     = "simulation_abort"
	ErrSubmissionRejected  = "submission_rejected"

	// -----------------------------
	// CONFIRMATION
	// -----------------------------
	ErrConfirmationTimeout = "confirmation_timed_out"
	ErrExecutionFailed     = "execution_failed"
)

// ClassifySubmissionError maps a node rejection to one of the
// submission error codes by inspecting the node's error text.
func ClassifySubmissionError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToUpper(err.Error())
	switch {
	case strings.Contains(msg, "INSUFFICIENT_BALANCE"),
		strings.Contains(msg, "INSUFFICIENT BALANCE"),
		strings.Contains(msg, "EINSUFFICIENT_FUNDS"):
		return ErrInsufficientBalance
	case strings.Contains(msg, "SEQUENCE_NUMBER_TOO_OLD"),
		strings.Contains(msg, "SEQUENCE_NUMBER_TOO_NEW"),
		strings.Contains(msg, "SEQUENCE NUMBER"):
		return ErrSequenceConflict
	case strings.Contains(msg, "ABORT"),
		strings.Contains(msg, "SIMULATION"):
		return ErrSimulationAbort
	default:
		return ErrSubmissionRejected
	}
}

// RemediationFor returns caller-facing guidance for a submission error
// code. Messages stay actionable without exposing node internals.
func RemediationFor(code string) string {
	switch code {
	case ErrInsufficientBalance:
		return "sender balance does not cover the transfer amount plus gas; fund the account and retry"
	case ErrSequenceConflict:
		return "a transaction with this sequence number was already processed; sign a fresh payment"
	case ErrSimulationAbort:
		return "the transfer was rejected by the chain; check the asset and recipient and sign a fresh payment"
	default:
		return "the chain rejected the transaction; sign a fresh payment and retry"
	}
}

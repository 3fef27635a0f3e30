package ledger

import "errors"

// Ledger operations classify failures into these sentinels so the monitor
// runner can tell data-integrity errors (halt) from transient store errors
// (retry). Wrap with fmt.Errorf("...: %w", ...) and test with errors.Is.
var (
	// ErrUnknownLot means a fill or cancel referenced a lot that was
	// never placed. Never silently ignored.
	ErrUnknownLot = errors.New("unknown lot")

	// ErrLotClosed means a fill targeted a FILLED or CANCELED lot.
	ErrLotClosed = errors.New("lot is in a terminal state")

	// ErrOverFill means a fill amount exceeded the lot's remaining amount.
	ErrOverFill = errors.New("fill exceeds remaining lot amount")

	// ErrInsufficientBalance means a debit exceeded the account's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount means a credit, debit, fill or placement carried a
	// non-positive quantity.
	ErrInvalidAmount = errors.New("amount must be positive")
)

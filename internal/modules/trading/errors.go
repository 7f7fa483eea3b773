package trading

import "errors"

// Order rejection and failure reasons. Every rejected order surfaces a
// specific reason so the caller can react, never a generic failure.
var (
	// ErrInvalidOrder is a malformed quantity, symbol or side. Caller
	// error, detected before any mutation.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrSymbolNotFound means the quote source has no such instrument.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrInsufficientFunds rejects a buy whose cost exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientHoldings rejects a sell of more shares than held
	// (including the no-position case).
	ErrInsufficientHoldings = errors.New("insufficient holdings")

	// ErrTradeFailed is a storage or transaction failure. The ledger
	// transaction was rolled back and state is unchanged, so retrying
	// the identical order is safe.
	ErrTradeFailed = errors.New("trade failed")

	// ErrInvalidQuantity is a violated accountant precondition. The
	// executor enforces quantities before calling the accountant, so
	// seeing this outside tests indicates a bug.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

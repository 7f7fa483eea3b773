package trading

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the trade direction (BUY or SELL)
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsValid checks if the side is valid
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// SideFromString creates a Side from a string (case-insensitive)
func SideFromString(value string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("invalid trade side: %q", value)
	}
}

// Order is the transient input to the executor. It is validated before
// any state change and never persisted.
type Order struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
	Side     Side   `json:"side"`
}

// Validate checks order constraints and normalizes the symbol
func (o *Order) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("%w: symbol cannot be empty", ErrInvalidOrder)
	}

	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be a positive integer", ErrInvalidOrder)
	}

	if !o.Side.IsValid() {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}

	o.Symbol = strings.ToUpper(strings.TrimSpace(o.Symbol))

	return nil
}

// Position is an account's current holding of one symbol: quantity and
// quantity-weighted average cost. A position with quantity 0 is never
// stored as a row.
type Position struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Quantity  int64           `json:"quantity"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is one immutable entry of the append-only audit trail.
type Transaction struct {
	ID         int64           `json:"id"`
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Fill is the result of a successfully executed order: the price used
// and the account's new balance, so the caller can confirm without a
// second read.
type Fill struct {
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	NewBalance decimal.Decimal `json:"balance"`
	ExecutedAt time.Time       `json:"executed_at"`
}

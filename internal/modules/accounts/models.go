package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account holds an authenticated user's cash balance. The id is opaque
// to the rest of the system; identity verification happens upstream.
// Balance is non-negative and mutated only by the trade executor inside
// a committed order.
type Account struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

package trading

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Pure cost-basis accounting. These functions never touch storage; the
// executor persists whatever they return inside its ledger transaction.

// ApplyBuy folds a fill into an existing position, or opens a new one.
//
// The new average price is the quantity-weighted average of the old
// position and the fill:
//
//	(avg*qty + price*fillQty) / (qty + fillQty)
//
// Division happens once, on the final totals, so repeated partial fills
// do not accumulate rounding drift. The result is persisted as a decimal
// string, the same representation used here.
func ApplyBuy(existing *Position, fillQty int64, fillPrice decimal.Decimal) (Position, error) {
	if fillQty <= 0 {
		return Position{}, fmt.Errorf("%w: buy quantity must be positive, got %d", ErrInvalidQuantity, fillQty)
	}
	if !fillPrice.IsPositive() {
		return Position{}, fmt.Errorf("%w: fill price must be positive, got %s", ErrInvalidQuantity, fillPrice)
	}

	now := time.Now().UTC()

	if existing == nil {
		return Position{
			Quantity:  fillQty,
			AvgPrice:  fillPrice,
			UpdatedAt: now,
		}, nil
	}

	if existing.Quantity <= 0 {
		return Position{}, fmt.Errorf("%w: existing position quantity must be positive, got %d", ErrInvalidQuantity, existing.Quantity)
	}

	newQty := existing.Quantity + fillQty
	oldCost := existing.AvgPrice.Mul(decimal.NewFromInt(existing.Quantity))
	fillCost := fillPrice.Mul(decimal.NewFromInt(fillQty))
	newAvg := oldCost.Add(fillCost).Div(decimal.NewFromInt(newQty))

	return Position{
		AccountID: existing.AccountID,
		Symbol:    existing.Symbol,
		Quantity:  newQty,
		AvgPrice:  newAvg,
		UpdatedAt: now,
	}, nil
}

// ApplySell reduces a position by sellQty. The average price never
// changes on a sell; the realized gain or loss is implied by the cash
// delta, not ledgered separately. closed is true when the position
// reaches exactly 0 and its row must be deleted.
func ApplySell(existing Position, sellQty int64) (Position, bool, error) {
	if sellQty <= 0 {
		return Position{}, false, fmt.Errorf("%w: sell quantity must be positive, got %d", ErrInvalidQuantity, sellQty)
	}
	if existing.Quantity <= 0 {
		return Position{}, false, fmt.Errorf("%w: existing position quantity must be positive, got %d", ErrInvalidQuantity, existing.Quantity)
	}
	if sellQty > existing.Quantity {
		return Position{}, false, fmt.Errorf("%w: cannot sell %d of %d held", ErrInvalidQuantity, sellQty, existing.Quantity)
	}

	remaining := existing.Quantity - sellQty
	if remaining == 0 {
		return Position{}, true, nil
	}

	updated := existing
	updated.Quantity = remaining
	updated.UpdatedAt = time.Now().UTC()

	return updated, false, nil
}

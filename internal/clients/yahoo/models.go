package yahoo

import "github.com/shopspring/decimal"

// Quote is the current market quote for a single instrument.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Name   string          `json:"name"`
}

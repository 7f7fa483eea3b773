package portfolio

import "github.com/shopspring/decimal"

// PositionView is one valuation row: a stored position enriched with
// the current quote. The pointer fields are nil when the quote for that
// symbol could not be fetched; the row is still returned so one bad or
// delisted symbol never hides the rest of the portfolio.
type PositionView struct {
	Symbol       string           `json:"symbol"`
	Name         string           `json:"name"`
	Quantity     int64            `json:"quantity"`
	AvgPrice     decimal.Decimal  `json:"average_price"`
	CurrentPrice *decimal.Decimal `json:"current_price"`
	MarketValue  *decimal.Decimal `json:"market_value"`
	ProfitLoss   *decimal.Decimal `json:"profit_loss"`
	PercentGain  *decimal.Decimal `json:"percent_gain"`
}

// NetWorth is the derived account summary: cash plus the value of all
// positions. Positions without a live quote are valued at cost so the
// total stays defined during partial quote outages.
type NetWorth struct {
	Balance  decimal.Decimal `json:"balance"`
	Invested decimal.Decimal `json:"invested"`
	Total    decimal.Decimal `json:"net_worth"`
}

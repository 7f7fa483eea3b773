package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/avelldo/papertrader/internal/modules/accounts"
	"github.com/avelldo/papertrader/internal/modules/trading"
)

// maxConcurrentQuotes bounds the valuation fan-out so a large portfolio
// does not flood the quote source.
const maxConcurrentQuotes = 8

// Valuator reconstructs unrealized P/L for an account by re-querying
// live prices for every stored position. Quote lookups are independent
// and fanned out concurrently; a slow or failing symbol degrades only
// its own row.
type Valuator struct {
	positions    *trading.PositionRepository
	accounts     *accounts.Repository
	quotes       trading.QuoteSource
	quoteTimeout time.Duration
	log          zerolog.Logger
}

// NewValuator creates a new portfolio valuator
func NewValuator(
	positions *trading.PositionRepository,
	accountRepo *accounts.Repository,
	quotes trading.QuoteSource,
	quoteTimeout time.Duration,
	log zerolog.Logger,
) *Valuator {
	return &Valuator{
		positions:    positions,
		accounts:     accountRepo,
		quotes:       quotes,
		quoteTimeout: quoteTimeout,
		log:          log.With().Str("component", "valuator").Logger(),
	}
}

// Valuate returns one enriched row per stored position, symbol-ordered.
func (v *Valuator) Valuate(ctx context.Context, accountID string) ([]PositionView, error) {
	positions, err := v.positions.GetAll(accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	views := make([]PositionView, len(positions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentQuotes)

	for i, pos := range positions {
		i, pos := i, pos
		g.Go(func() error {
			views[i] = v.valuateOne(ctx, pos)
			return nil
		})
	}

	// Goroutines never return errors; quote failures are folded into
	// their own row. Wait only joins the fan-out.
	_ = g.Wait()

	return views, nil
}

// valuateOne builds the view for a single position. Any quote failure,
// including a timeout, leaves the price-derived fields nil.
func (v *Valuator) valuateOne(ctx context.Context, pos trading.Position) PositionView {
	view := PositionView{
		Symbol:   pos.Symbol,
		Name:     pos.Symbol,
		Quantity: pos.Quantity,
		AvgPrice: pos.AvgPrice,
	}

	quoteCtx, cancel := context.WithTimeout(ctx, v.quoteTimeout)
	defer cancel()

	quote, err := v.quotes.GetQuote(quoteCtx, pos.Symbol)
	if err != nil {
		v.log.Debug().
			Err(err).
			Str("symbol", pos.Symbol).
			Msg("Quote unavailable, returning unpriced row")
		return view
	}

	if quote.Name != "" {
		view.Name = quote.Name
	}

	qty := decimal.NewFromInt(pos.Quantity)
	marketValue := quote.Price.Mul(qty)
	profitLoss := quote.Price.Sub(pos.AvgPrice).Mul(qty)
	percentGain := quote.Price.Sub(pos.AvgPrice).
		Div(pos.AvgPrice).
		Mul(decimal.NewFromInt(100))

	view.CurrentPrice = &quote.Price
	view.MarketValue = &marketValue
	view.ProfitLoss = &profitLoss
	view.PercentGain = &percentGain

	return view
}

// NetWorth computes cash plus position value. Positions whose quote is
// unavailable are valued at average cost, keeping the total defined
// during partial quote outages.
func (v *Valuator) NetWorth(ctx context.Context, accountID string) (NetWorth, error) {
	account, err := v.accounts.GetByID(accountID)
	if err != nil {
		return NetWorth{}, fmt.Errorf("failed to load account: %w", err)
	}

	views, err := v.Valuate(ctx, accountID)
	if err != nil {
		return NetWorth{}, err
	}

	invested := decimal.Zero
	for _, view := range views {
		price := view.AvgPrice
		if view.CurrentPrice != nil {
			price = *view.CurrentPrice
		}
		invested = invested.Add(price.Mul(decimal.NewFromInt(view.Quantity)))
	}

	return NetWorth{
		Balance:  account.Balance,
		Invested: invested,
		Total:    account.Balance.Add(invested),
	}, nil
}

package portfolio

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelldo/papertrader/internal/clients/yahoo"
	"github.com/avelldo/papertrader/internal/database"
	"github.com/avelldo/papertrader/internal/modules/accounts"
	"github.com/avelldo/papertrader/internal/modules/trading"
)

func d(value string) decimal.Decimal {
	out, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return out
}

// stubQuotes serves fixed prices and fails for unknown symbols
type stubQuotes struct {
	prices map[string]decimal.Decimal
	names  map[string]string
	delay  time.Duration
}

func (s *stubQuotes) GetQuote(ctx context.Context, symbol string) (yahoo.Quote, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return yahoo.Quote{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	price, ok := s.prices[symbol]
	if !ok {
		return yahoo.Quote{}, yahoo.ErrNotFound
	}
	return yahoo.Quote{Symbol: symbol, Price: price, Name: s.names[symbol]}, nil
}

type valuatorEnv struct {
	accounts  *accounts.Repository
	positions *trading.PositionRepository
	account   *accounts.Account
	db        *database.DB
}

func newValuatorEnv(t *testing.T) *valuatorEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	accountRepo := accounts.NewRepository(db.Conn(), decimal.NewFromInt(10000), log)
	positionRepo := trading.NewPositionRepository(db.Conn(), log)

	account, err := accountRepo.GetOrCreate("trader@example.com", "Trader")
	require.NoError(t, err)

	return &valuatorEnv{
		accounts:  accountRepo,
		positions: positionRepo,
		account:   account,
		db:        db,
	}
}

func (e *valuatorEnv) seedPosition(t *testing.T, symbol string, qty int64, avg string) {
	t.Helper()

	tx, err := e.db.Begin()
	require.NoError(t, err)
	require.NoError(t, e.positions.UpsertTx(tx, trading.Position{
		AccountID: e.account.ID,
		Symbol:    symbol,
		Quantity:  qty,
		AvgPrice:  d(avg),
		UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, tx.Commit())
}

func TestValuator_EnrichesPositions(t *testing.T) {
	env := newValuatorEnv(t)
	env.seedPosition(t, "AAPL", 10, "100")

	quotes := &stubQuotes{
		prices: map[string]decimal.Decimal{"AAPL": d("130")},
		names:  map[string]string{"AAPL": "Apple Inc."},
	}
	valuator := NewValuator(env.positions, env.accounts, quotes, time.Second, zerolog.Nop())

	views, err := valuator.Valuate(context.Background(), env.account.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)

	view := views[0]
	assert.Equal(t, "AAPL", view.Symbol)
	assert.Equal(t, "Apple Inc.", view.Name)
	require.NotNil(t, view.CurrentPrice)
	assert.True(t, view.CurrentPrice.Equal(d("130")))
	require.NotNil(t, view.MarketValue)
	assert.True(t, view.MarketValue.Equal(d("1300")))
	require.NotNil(t, view.ProfitLoss)
	assert.True(t, view.ProfitLoss.Equal(d("300")), "P/L = %s", view.ProfitLoss)
	require.NotNil(t, view.PercentGain)
	assert.True(t, view.PercentGain.Equal(d("30")), "gain = %s%%", view.PercentGain)
}

func TestValuator_QuoteFailureIsolatedPerSymbol(t *testing.T) {
	env := newValuatorEnv(t)
	env.seedPosition(t, "AAPL", 10, "100")
	env.seedPosition(t, "GONE", 5, "40")

	// GONE has no quote; AAPL must still come back priced
	quotes := &stubQuotes{
		prices: map[string]decimal.Decimal{"AAPL": d("110")},
		names:  map[string]string{"AAPL": "Apple Inc."},
	}
	valuator := NewValuator(env.positions, env.accounts, quotes, time.Second, zerolog.Nop())

	views, err := valuator.Valuate(context.Background(), env.account.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)

	bySymbol := make(map[string]PositionView)
	for _, v := range views {
		bySymbol[v.Symbol] = v
	}

	priced := bySymbol["AAPL"]
	require.NotNil(t, priced.CurrentPrice)

	unpriced := bySymbol["GONE"]
	assert.Nil(t, unpriced.CurrentPrice)
	assert.Nil(t, unpriced.ProfitLoss)
	assert.Nil(t, unpriced.PercentGain)
	assert.Equal(t, int64(5), unpriced.Quantity, "the stored position still shows")
	assert.True(t, unpriced.AvgPrice.Equal(d("40")))
}

func TestValuator_SlowQuoteTimesOutAlone(t *testing.T) {
	env := newValuatorEnv(t)
	env.seedPosition(t, "SLOW", 3, "50")

	quotes := &stubQuotes{
		prices: map[string]decimal.Decimal{"SLOW": d("60")},
		delay:  200 * time.Millisecond,
	}
	valuator := NewValuator(env.positions, env.accounts, quotes, 10*time.Millisecond, zerolog.Nop())

	views, err := valuator.Valuate(context.Background(), env.account.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Nil(t, views[0].CurrentPrice, "a timed-out quote degrades to an unpriced row")
}

func TestValuator_NetWorthFallsBackToCost(t *testing.T) {
	env := newValuatorEnv(t)
	env.seedPosition(t, "AAPL", 10, "100") // quoted at 130 -> 1300
	env.seedPosition(t, "GONE", 5, "40")   // unquoted -> cost 200

	quotes := &stubQuotes{
		prices: map[string]decimal.Decimal{"AAPL": d("130")},
	}
	valuator := NewValuator(env.positions, env.accounts, quotes, time.Second, zerolog.Nop())

	netWorth, err := valuator.NetWorth(context.Background(), env.account.ID)
	require.NoError(t, err)

	assert.True(t, netWorth.Balance.Equal(d("10000")))
	assert.True(t, netWorth.Invested.Equal(d("1500")), "invested = %s", netWorth.Invested)
	assert.True(t, netWorth.Total.Equal(d("11500")), "total = %s", netWorth.Total)
}

func TestValuator_EmptyPortfolio(t *testing.T) {
	env := newValuatorEnv(t)

	quotes := &stubQuotes{prices: map[string]decimal.Decimal{}}
	valuator := NewValuator(env.positions, env.accounts, quotes, time.Second, zerolog.Nop())

	views, err := valuator.Valuate(context.Background(), env.account.ID)
	require.NoError(t, err)
	assert.Empty(t, views)

	netWorth, err := valuator.NetWorth(context.Background(), env.account.ID)
	require.NoError(t, err)
	assert.True(t, netWorth.Total.Equal(d("10000")))
}

package trading

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelldo/papertrader/internal/clients/yahoo"
	"github.com/avelldo/papertrader/internal/database"
	"github.com/avelldo/papertrader/internal/modules/accounts"
)

// stubQuotes serves fixed prices; unknown symbols fail like the real
// quote source.
type stubQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
}

func (s *stubQuotes) GetQuote(ctx context.Context, symbol string) (yahoo.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		return yahoo.Quote{}, yahoo.ErrNotFound
	}
	return yahoo.Quote{Symbol: symbol, Price: price, Name: symbol + " Inc."}, nil
}

func (s *stubQuotes) set(symbol, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = d(price)
}

type testEnv struct {
	db           *database.DB
	quotes       *stubQuotes
	accounts     *accounts.Repository
	positions    *PositionRepository
	transactions *TransactionRepository
	executor     *Executor
	account      *accounts.Account
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	quotes := &stubQuotes{prices: make(map[string]decimal.Decimal)}

	accountRepo := accounts.NewRepository(db.Conn(), decimal.NewFromInt(10000), log)
	positionRepo := NewPositionRepository(db.Conn(), log)
	transactionRepo := NewTransactionRepository(db.Conn(), log)

	account, err := accountRepo.GetOrCreate("trader@example.com", "Trader")
	require.NoError(t, err)

	return &testEnv{
		db:           db,
		quotes:       quotes,
		accounts:     accountRepo,
		positions:    positionRepo,
		transactions: transactionRepo,
		executor:     NewExecutor(db, quotes, accountRepo, positionRepo, transactionRepo, log),
		account:      account,
	}
}

func (e *testEnv) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	account, err := e.accounts.GetByID(e.account.ID)
	require.NoError(t, err)
	return account.Balance
}

func (e *testEnv) position(t *testing.T, symbol string) *Position {
	t.Helper()
	positions, err := e.positions.GetAll(e.account.ID)
	require.NoError(t, err)
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i]
		}
	}
	return nil
}

func TestExecutor_BuySellLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Buy 10 @ 100: balance 10000 -> 9000, position {10, avg 100}
	env.quotes.set("AAPL", "100")
	fill, err := env.executor.Buy(ctx, env.account.ID, "AAPL", 10)
	require.NoError(t, err)
	assert.True(t, fill.Price.Equal(d("100")))
	assert.True(t, fill.NewBalance.Equal(d("9000")), "balance = %s", fill.NewBalance)

	pos := env.position(t, "AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, int64(10), pos.Quantity)
	assert.True(t, pos.AvgPrice.Equal(d("100")))

	// Buy 10 more @ 120: position {20, avg 110}, balance 7800
	env.quotes.set("AAPL", "120")
	fill, err = env.executor.Buy(ctx, env.account.ID, "AAPL", 10)
	require.NoError(t, err)
	assert.True(t, fill.NewBalance.Equal(d("7800")), "balance = %s", fill.NewBalance)

	pos = env.position(t, "AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, int64(20), pos.Quantity)
	assert.True(t, pos.AvgPrice.Equal(d("110")), "avg = %s", pos.AvgPrice)

	// Sell 15 @ 130: proceeds 1950, balance 9750, avg unchanged
	env.quotes.set("AAPL", "130")
	fill, err = env.executor.Sell(ctx, env.account.ID, "AAPL", 15)
	require.NoError(t, err)
	assert.True(t, fill.NewBalance.Equal(d("9750")), "balance = %s", fill.NewBalance)

	pos = env.position(t, "AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, int64(5), pos.Quantity)
	assert.True(t, pos.AvgPrice.Equal(d("110")), "avg must not change on sell")

	// Sell the rest @ 140: row deleted, balance 10450
	env.quotes.set("AAPL", "140")
	fill, err = env.executor.Sell(ctx, env.account.ID, "AAPL", 5)
	require.NoError(t, err)
	assert.True(t, fill.NewBalance.Equal(d("10450")), "balance = %s", fill.NewBalance)
	assert.Nil(t, env.position(t, "AAPL"), "closed position row must be deleted")

	// Audit trail holds all four fills, nothing else
	count, err := env.transactions.Count(env.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestExecutor_RebuyStartsFreshCostBasis(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.quotes.set("NVDA", "100")
	_, err := env.executor.Buy(ctx, env.account.ID, "NVDA", 4)
	require.NoError(t, err)

	env.quotes.set("NVDA", "150")
	_, err = env.executor.Sell(ctx, env.account.ID, "NVDA", 4)
	require.NoError(t, err)
	require.Nil(t, env.position(t, "NVDA"))

	env.quotes.set("NVDA", "200")
	_, err = env.executor.Buy(ctx, env.account.ID, "NVDA", 2)
	require.NoError(t, err)

	pos := env.position(t, "NVDA")
	require.NotNil(t, pos)
	assert.True(t, pos.AvgPrice.Equal(d("200")), "fresh basis unrelated to the prior one, got %s", pos.AvgPrice)
}

func TestExecutor_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.quotes.set("TSLA", "50")
	_, err := env.executor.Buy(ctx, env.account.ID, "TSLA", 1000) // cost 50000

	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, env.balance(t).Equal(d("10000")), "balance must be untouched")
	assert.Nil(t, env.position(t, "TSLA"))

	count, err := env.transactions.Count(env.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "rejected order must not leave history")
}

func TestExecutor_InsufficientHoldings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.quotes.set("MSFT", "300")

	// No position at all
	_, err := env.executor.Sell(ctx, env.account.ID, "MSFT", 1)
	assert.ErrorIs(t, err, ErrInsufficientHoldings)

	// Position smaller than the request
	_, err = env.executor.Buy(ctx, env.account.ID, "MSFT", 3)
	require.NoError(t, err)
	_, err = env.executor.Sell(ctx, env.account.ID, "MSFT", 4)
	assert.ErrorIs(t, err, ErrInsufficientHoldings)

	pos := env.position(t, "MSFT")
	require.NotNil(t, pos)
	assert.Equal(t, int64(3), pos.Quantity, "rejected sell must not change the position")
}

func TestExecutor_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.executor.Buy(ctx, env.account.ID, "AAPL", 0)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = env.executor.Buy(ctx, env.account.ID, "AAPL", -3)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = env.executor.Buy(ctx, env.account.ID, "   ", 1)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = env.executor.Buy(ctx, env.account.ID, "NOSUCH", 1)
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	assert.True(t, env.balance(t).Equal(d("10000")), "no rejection may move the balance")
}

func TestExecutor_SymbolNormalized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.quotes.set("AAPL", "100")
	_, err := env.executor.Buy(ctx, env.account.ID, "  aapl ", 1)
	require.NoError(t, err)

	pos := env.position(t, "AAPL")
	require.NotNil(t, pos)

	history, err := env.transactions.History(env.account.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "AAPL", history[0].Symbol)
}

func TestExecutor_ConcurrentBuysNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Two buys of 6000 each against a 10000 balance: exactly one can win.
	env.quotes.set("AMZN", "100")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.executor.Buy(ctx, env.account.ID, "AMZN", 60)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one of the two buys may pass the funds check")

	balance := env.balance(t)
	assert.True(t, balance.Equal(d("4000")), "balance = %s", balance)
	assert.False(t, balance.IsNegative(), "balance must never go negative")

	pos := env.position(t, "AMZN")
	require.NotNil(t, pos)
	assert.Equal(t, int64(60), pos.Quantity)
}

func TestExecutor_ManySmallFillsKeepExactAverage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// 30 one-share fills at 0.10 steps; the stored average must match
	// the closed-form weighted mean exactly.
	total := decimal.Zero
	for i := 0; i < 30; i++ {
		price := d("10").Add(d("0.10").Mul(decimal.NewFromInt(int64(i))))
		env.quotes.set("PLTR", price.String())
		_, err := env.executor.Buy(ctx, env.account.ID, "PLTR", 1)
		require.NoError(t, err)
		total = total.Add(price)
	}

	pos := env.position(t, "PLTR")
	require.NotNil(t, pos)
	expected := total.Div(decimal.NewFromInt(30))
	assert.True(t, pos.AvgPrice.Equal(expected),
		"avg = %s, want %s", pos.AvgPrice, expected)
}

func TestExecutor_AccountsIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	other, err := env.accounts.GetOrCreate("other@example.com", "Other")
	require.NoError(t, err)

	env.quotes.set("AAPL", "100")
	_, err = env.executor.Buy(ctx, env.account.ID, "AAPL", 10)
	require.NoError(t, err)

	otherAccount, err := env.accounts.GetByID(other.ID)
	require.NoError(t, err)
	assert.True(t, otherAccount.Balance.Equal(d("10000")), "other account must be untouched")

	positions, err := env.positions.GetAll(other.ID)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestExecutor_HistoryIsAppendOnlyAndOrdered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		env.quotes.set("AAPL", fmt.Sprintf("%d", 100+i))
		_, err := env.executor.Buy(ctx, env.account.ID, "AAPL", 1)
		require.NoError(t, err)
	}

	history, err := env.transactions.History(env.account.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Most recent first
	assert.True(t, history[0].Price.Equal(d("103")), "latest first, got %s", history[0].Price)
	assert.True(t, history[2].Price.Equal(d("101")))
	for _, tx := range history {
		assert.Equal(t, SideBuy, tx.Side)
		assert.Equal(t, env.account.ID, tx.AccountID)
	}
}

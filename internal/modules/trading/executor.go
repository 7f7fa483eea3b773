package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/avelldo/papertrader/internal/clients/yahoo"
	"github.com/avelldo/papertrader/internal/database"
	"github.com/avelldo/papertrader/internal/modules/accounts"
)

// QuoteSource resolves a symbol to its current market quote
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (yahoo.Quote, error)
}

// Executor runs one order end to end: validate, quote, check funds or
// holdings, then mutate balance, history and position inside a single
// ledger transaction.
//
// Orders for the same account are serialized by a per-account lock, and
// funds/holdings are re-checked against a fresh read inside the
// transaction. Two concurrent buys therefore cannot both pass the funds
// check against a stale balance. Orders for different accounts run in
// parallel.
type Executor struct {
	db           *database.DB
	quotes       QuoteSource
	accounts     *accounts.Repository
	positions    *PositionRepository
	transactions *TransactionRepository
	log          zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExecutor creates a new trade executor
func NewExecutor(
	db *database.DB,
	quotes QuoteSource,
	accountRepo *accounts.Repository,
	positionRepo *PositionRepository,
	transactionRepo *TransactionRepository,
	log zerolog.Logger,
) *Executor {
	return &Executor{
		db:           db,
		quotes:       quotes,
		accounts:     accountRepo,
		positions:    positionRepo,
		transactions: transactionRepo,
		log:          log.With().Str("component", "executor").Logger(),
		locks:        make(map[string]*sync.Mutex),
	}
}

// Buy executes a buy order and returns the fill
func (e *Executor) Buy(ctx context.Context, accountID, symbol string, quantity int64) (Fill, error) {
	return e.execute(ctx, accountID, Order{Symbol: symbol, Quantity: quantity, Side: SideBuy})
}

// Sell executes a sell order and returns the fill
func (e *Executor) Sell(ctx context.Context, accountID, symbol string, quantity int64) (Fill, error) {
	return e.execute(ctx, accountID, Order{Symbol: symbol, Quantity: quantity, Side: SideSell})
}

func (e *Executor) execute(ctx context.Context, accountID string, order Order) (Fill, error) {
	if err := order.Validate(); err != nil {
		return Fill{}, err
	}

	// One quote per order, fetched before the storage transaction opens
	// so no lock is held across the network wait. The same price covers
	// the funds check, the cash delta and the history record.
	quote, err := e.fetchQuote(ctx, order.Symbol)
	if err != nil {
		return Fill{}, err
	}

	// Serialize orders per account: the funds/holdings check and the
	// write it guards must not interleave with another order.
	unlock := e.lockAccount(accountID)
	defer unlock()

	executedAt := time.Now().UTC()

	fill, err := e.applyOrder(ctx, accountID, order, quote.Price, executedAt)
	if err != nil {
		return Fill{}, err
	}

	e.log.Info().
		Str("account_id", accountID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Int64("quantity", order.Quantity).
		Str("price", quote.Price.String()).
		Str("balance", fill.NewBalance.String()).
		Msg("Order executed")

	return fill, nil
}

// applyOrder runs the all-or-nothing mutation phase of one order
func (e *Executor) applyOrder(ctx context.Context, accountID string, order Order, price decimal.Decimal, executedAt time.Time) (Fill, error) {
	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	balance, err := e.accounts.BalanceTx(tx, accountID)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
	}

	amount := price.Mul(decimal.NewFromInt(order.Quantity))

	var newBalance decimal.Decimal
	var newPos Position
	var closed bool

	switch order.Side {
	case SideBuy:
		if balance.LessThan(amount) {
			return Fill{}, fmt.Errorf("%w: cost %s exceeds balance %s", ErrInsufficientFunds, amount, balance)
		}
		newBalance = balance.Sub(amount)

		existing, err := e.positions.GetTx(tx, accountID, order.Symbol)
		if err != nil {
			return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
		}

		newPos, err = ApplyBuy(existing, order.Quantity, price)
		if err != nil {
			return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
		}

	case SideSell:
		existing, err := e.positions.GetTx(tx, accountID, order.Symbol)
		if err != nil {
			return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
		}
		if existing == nil || existing.Quantity < order.Quantity {
			held := int64(0)
			if existing != nil {
				held = existing.Quantity
			}
			return Fill{}, fmt.Errorf("%w: requested %d, holding %d", ErrInsufficientHoldings, order.Quantity, held)
		}
		newBalance = balance.Add(amount)

		newPos, closed, err = ApplySell(*existing, order.Quantity)
		if err != nil {
			return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
		}

	default:
		return Fill{}, fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}

	if err := e.accounts.SetBalanceTx(tx, accountID, newBalance); err != nil {
		return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
	}

	if err := e.transactions.AppendTx(tx, Transaction{
		AccountID:  accountID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		ExecutedAt: executedAt,
	}); err != nil {
		return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
	}

	if closed {
		if err := e.positions.DeleteTx(tx, accountID, order.Symbol); err != nil {
			return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
		}
	} else {
		newPos.AccountID = accountID
		newPos.Symbol = order.Symbol
		if err := e.positions.UpsertTx(tx, newPos); err != nil {
			return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Fill{}, fmt.Errorf("%w: %v", ErrTradeFailed, err)
	}
	committed = true

	return Fill{
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		NewBalance: newBalance,
		ExecutedAt: executedAt,
	}, nil
}

// fetchQuote resolves the fill price, mapping quote-source failures to
// the order error taxonomy.
func (e *Executor) fetchQuote(ctx context.Context, symbol string) (yahoo.Quote, error) {
	quote, err := e.quotes.GetQuote(ctx, symbol)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return yahoo.Quote{}, err
		}
		// A quote source that cannot resolve the instrument, for any
		// reason, rejects the order the same way.
		return yahoo.Quote{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	if !quote.Price.IsPositive() {
		return yahoo.Quote{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}

	return quote, nil
}

// lockAccount acquires the per-account order lock and returns its release
func (e *Executor) lockAccount(accountID string) func() {
	e.mu.Lock()
	lock, ok := e.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[accountID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

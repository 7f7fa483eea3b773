package trading

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TransactionRepository handles the append-only trade history. Rows are
// written once inside an order transaction and never updated or deleted.
type TransactionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *sql.DB, log zerolog.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log.With().Str("repo", "transaction").Logger(),
	}
}

// AppendTx appends a history record within an order transaction
func (r *TransactionRepository) AppendTx(tx *sql.Tx, t Transaction) error {
	query := `
		INSERT INTO transactions (account_id, symbol, side, quantity, price, executed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := tx.Exec(query,
		t.AccountID,
		t.Symbol,
		string(t.Side),
		t.Quantity,
		t.Price.String(),
		t.ExecutedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// History retrieves an account's trade history, most recent first
func (r *TransactionRepository) History(accountID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, account_id, symbol, side, quantity, price, executed_at
		FROM transactions
		WHERE account_id = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer rows.Close()

	var transactions []Transaction
	for rows.Next() {
		var t Transaction
		var side, executedAt string

		if err := rows.Scan(&t.ID, &t.AccountID, &t.Symbol, &side, &t.Quantity, &t.Price, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		t.Side = Side(side)
		if ts, err := time.Parse(time.RFC3339Nano, executedAt); err == nil {
			t.ExecutedAt = ts
		}

		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// Count returns the number of history rows for an account
func (r *TransactionRepository) Count(accountID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM transactions WHERE account_id = ?",
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PositionRepository handles position database operations.
//
// Reads outside an order go through the pooled connection; everything
// the executor does during an order takes an explicit *sql.Tx so the
// balance, history and position writes commit or roll back together.
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetAll returns all positions for an account, symbol-ordered
func (r *PositionRepository) GetAll(accountID string) ([]Position, error) {
	query := `
		SELECT account_id, symbol, quantity, avg_price, updated_at
		FROM positions
		WHERE account_id = ?
		ORDER BY symbol ASC
	`

	rows, err := r.db.Query(query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// GetTx returns the account's position in a symbol within an order
// transaction, or nil when no row exists.
func (r *PositionRepository) GetTx(tx *sql.Tx, accountID, symbol string) (*Position, error) {
	query := `
		SELECT account_id, symbol, quantity, avg_price, updated_at
		FROM positions
		WHERE account_id = ? AND symbol = ?
	`

	row := tx.QueryRow(query, accountID, strings.ToUpper(strings.TrimSpace(symbol)))

	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	return &pos, nil
}

// UpsertTx writes a position row within an order transaction
func (r *PositionRepository) UpsertTx(tx *sql.Tx, pos Position) error {
	query := `
		INSERT INTO positions (account_id, symbol, quantity, avg_price, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			avg_price = excluded.avg_price,
			updated_at = excluded.updated_at
	`

	_, err := tx.Exec(query,
		pos.AccountID,
		pos.Symbol,
		pos.Quantity,
		pos.AvgPrice.String(),
		pos.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}

	return nil
}

// DeleteTx removes a closed position row within an order transaction
func (r *PositionRepository) DeleteTx(tx *sql.Tx, accountID, symbol string) error {
	_, err := tx.Exec(
		"DELETE FROM positions WHERE account_id = ? AND symbol = ?",
		accountID, strings.ToUpper(strings.TrimSpace(symbol)),
	)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}

	return nil
}

// HeldSymbols returns the distinct symbols held across all accounts,
// used to pre-warm the quote cache.
func (r *PositionRepository) HeldSymbols() ([]string, error) {
	rows, err := r.db.Query("SELECT DISTINCT symbol FROM positions ORDER BY symbol ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query held symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (Position, error) {
	var pos Position
	var updatedAt string

	if err := s.Scan(&pos.AccountID, &pos.Symbol, &pos.Quantity, &pos.AvgPrice, &updatedAt); err != nil {
		return Position{}, err
	}

	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		pos.UpdatedAt = t
	}

	return pos, nil
}

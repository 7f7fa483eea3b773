package accounts

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates no account exists for the given identifier
var ErrNotFound = errors.New("account not found")

// Repository handles account database operations
type Repository struct {
	db              *sql.DB
	startingBalance decimal.Decimal
	log             zerolog.Logger
}

// NewRepository creates a new account repository
func NewRepository(db *sql.DB, startingBalance decimal.Decimal, log zerolog.Logger) *Repository {
	return &Repository{
		db:              db,
		startingBalance: startingBalance,
		log:             log.With().Str("repo", "account").Logger(),
	}
}

// GetByID returns an account by its opaque id
func (r *Repository) GetByID(id string) (*Account, error) {
	row := r.db.QueryRow(
		"SELECT id, email, name, balance, created_at FROM accounts WHERE id = ?",
		id,
	)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// GetByEmail returns an account by email
func (r *Repository) GetByEmail(email string) (*Account, error) {
	row := r.db.QueryRow(
		"SELECT id, email, name, balance, created_at FROM accounts WHERE email = ?",
		normalizeEmail(email),
	)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by email: %w", err)
	}

	return &account, nil
}

// GetOrCreate returns the account for an email, creating it with the
// starting balance on first login.
func (r *Repository) GetOrCreate(email, name string) (*Account, error) {
	account, err := r.GetByEmail(email)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := Account{
		ID:        uuid.NewString(),
		Email:     normalizeEmail(email),
		Name:      name,
		Balance:   r.startingBalance,
		CreatedAt: time.Now().UTC(),
	}

	_, err = r.db.Exec(
		"INSERT INTO accounts (id, email, name, balance, created_at) VALUES (?, ?, ?, ?, ?)",
		created.ID,
		created.Email,
		created.Name,
		created.Balance.String(),
		created.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	r.log.Info().
		Str("account_id", created.ID).
		Str("balance", created.Balance.String()).
		Msg("Account created")

	return &created, nil
}

// BalanceTx reads the current balance within an order transaction
func (r *Repository) BalanceTx(tx *sql.Tx, id string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow("SELECT balance FROM accounts WHERE id = ?", id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, ErrNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to read balance: %w", err)
	}

	return balance, nil
}

// SetBalanceTx writes a new balance within an order transaction
func (r *Repository) SetBalanceTx(tx *sql.Tx, id string, balance decimal.Decimal) error {
	res, err := tx.Exec("UPDATE accounts SET balance = ? WHERE id = ?", balance.String(), id)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check balance update: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Helpers

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(s scanner) (Account, error) {
	var account Account
	var email, name sql.NullString
	var createdAt string

	if err := s.Scan(&account.ID, &email, &name, &account.Balance, &createdAt); err != nil {
		return Account{}, err
	}

	if email.Valid {
		account.Email = email.String
	}
	if name.Valid {
		account.Name = name.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		account.CreatedAt = t
	}

	return account, nil
}

package repository

import (
	"context"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
)

const createWallet = `-- name: CreateWallet :one
INSERT INTO wallets (id, user_id)
VALUES ($1, $2)
RETURNING id, user_id, created_at
`

type CreateWalletParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) CreateWallet(ctx context.Context, arg CreateWalletParams) (models.Wallet, error) {
	row := q.db.QueryRow(ctx, createWallet, arg.ID, arg.UserID)
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.CreatedAt)
	return w, err
}

const getWalletByUserID = `-- name: GetWalletByUserID :one
SELECT id, user_id, created_at FROM wallets WHERE user_id = $1
`

func (q *Queries) GetWalletByUserID(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	row := q.db.QueryRow(ctx, getWalletByUserID, userID)
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.CreatedAt)
	return w, err
}

// BalanceKey identifies one currency slot of a user's wallet.
type BalanceKey struct {
	UserID   uuid.UUID
	Currency string
}

const createWalletBalance = `-- name: CreateWalletBalance :exec
INSERT INTO wallet_balances (user_id, currency, balance_micros, held_micros)
VALUES ($1, $2, 0, 0)
`

func (q *Queries) CreateWalletBalance(ctx context.Context, arg BalanceKey) error {
	_, err := q.db.Exec(ctx, createWalletBalance, arg.UserID, arg.Currency)
	return err
}

const getWalletBalance = `-- name: GetWalletBalance :one
SELECT user_id, currency, balance_micros, held_micros, updated_at
FROM wallet_balances
WHERE user_id = $1 AND currency = $2
`

func (q *Queries) GetWalletBalance(ctx context.Context, arg BalanceKey) (models.Balance, error) {
	row := q.db.QueryRow(ctx, getWalletBalance, arg.UserID, arg.Currency)
	var b models.Balance
	err := row.Scan(&b.UserID, &b.Currency, &b.BalanceMicro, &b.HeldMicro, &b.UpdatedAt)
	return b, err
}

const listWalletBalances = `-- name: ListWalletBalances :many
SELECT user_id, currency, balance_micros, held_micros, updated_at
FROM wallet_balances
WHERE user_id = $1
ORDER BY currency
`

func (q *Queries) ListWalletBalances(ctx context.Context, userID uuid.UUID) ([]models.Balance, error) {
	rows, err := q.db.Query(ctx, listWalletBalances, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []models.Balance
	for rows.Next() {
		var b models.Balance
		if err := rows.Scan(&b.UserID, &b.Currency, &b.BalanceMicro, &b.HeldMicro, &b.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

// BalanceChangeParams applies Amount to one balance slot. Amount is always
// positive; the query decides the direction.
type BalanceChangeParams struct {
	UserID   uuid.UUID
	Currency string
	Amount   int64
}

const creditBalance = `-- name: CreditBalance :one
UPDATE wallet_balances
SET balance_micros = balance_micros + $3, updated_at = NOW()
WHERE user_id = $1 AND currency = $2
RETURNING balance_micros
`

// CreditBalance returns the new balance.
func (q *Queries) CreditBalance(ctx context.Context, arg BalanceChangeParams) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, creditBalance, arg.UserID, arg.Currency, arg.Amount).Scan(&balance)
	return balance, err
}

const debitBalance = `-- name: DebitBalance :one
UPDATE wallet_balances
SET balance_micros = balance_micros - $3, updated_at = NOW()
WHERE user_id = $1 AND currency = $2 AND balance_micros - held_micros >= $3
RETURNING balance_micros
`

// DebitBalance only succeeds when the available balance covers Amount.
// pgx.ErrNoRows means the slot is missing or the funds are insufficient.
func (q *Queries) DebitBalance(ctx context.Context, arg BalanceChangeParams) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, debitBalance, arg.UserID, arg.Currency, arg.Amount).Scan(&balance)
	return balance, err
}

const holdFunds = `-- name: HoldFunds :one
UPDATE wallet_balances
SET held_micros = held_micros + $3, updated_at = NOW()
WHERE user_id = $1 AND currency = $2 AND balance_micros - held_micros >= $3
RETURNING held_micros
`

// HoldFunds returns the new held amount.
func (q *Queries) HoldFunds(ctx context.Context, arg BalanceChangeParams) (int64, error) {
	var held int64
	err := q.db.QueryRow(ctx, holdFunds, arg.UserID, arg.Currency, arg.Amount).Scan(&held)
	return held, err
}

const releaseHold = `-- name: ReleaseHold :one
UPDATE wallet_balances
SET held_micros = held_micros - $3, updated_at = NOW()
WHERE user_id = $1 AND currency = $2 AND held_micros >= $3
RETURNING held_micros
`

func (q *Queries) ReleaseHold(ctx context.Context, arg BalanceChangeParams) (int64, error) {
	var held int64
	err := q.db.QueryRow(ctx, releaseHold, arg.UserID, arg.Currency, arg.Amount).Scan(&held)
	return held, err
}

const captureHold = `-- name: CaptureHold :one
UPDATE wallet_balances
SET held_micros = held_micros - $3,
    balance_micros = balance_micros - $3,
    updated_at = NOW()
WHERE user_id = $1 AND currency = $2 AND held_micros >= $3
RETURNING balance_micros
`

// CaptureHold removes held funds from the balance and returns the new balance.
func (q *Queries) CaptureHold(ctx context.Context, arg BalanceChangeParams) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, captureHold, arg.UserID, arg.Currency, arg.Amount).Scan(&balance)
	return balance, err
}

const sumHeldByCurrency = `-- name: SumHeldByCurrency :many
SELECT currency, COALESCE(SUM(held_micros), 0)::bigint
FROM wallet_balances
GROUP BY currency
ORDER BY currency
`

func (q *Queries) SumHeldByCurrency(ctx context.Context) ([]CurrencyTotal, error) {
	return q.currencyTotals(ctx, sumHeldByCurrency)
}

func (q *Queries) currencyTotals(ctx context.Context, query string, args ...interface{}) ([]CurrencyTotal, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CurrencyTotal
	for rows.Next() {
		var t CurrencyTotal
		if err := rows.Scan(&t.Currency, &t.Total); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

package repository

import (
	"context"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
)

const transactionColumns = `id, reference, user_id, amount_micros, fee_micros, hold_micros, currency, kind, method, status, provider_reference, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID,
		&t.Reference,
		&t.UserID,
		&t.AmountMicros,
		&t.FeeMicros,
		&t.HoldMicros,
		&t.Currency,
		&t.Kind,
		&t.Method,
		&t.Status,
		&t.ProviderReference,
		&t.Metadata,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (id, reference, user_id, amount_micros, fee_micros, hold_micros, currency, kind, method, status, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11::jsonb, '{}'::jsonb))
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	ID           uuid.UUID
	Reference    string
	UserID       uuid.UUID
	AmountMicros int64
	FeeMicros    int64
	HoldMicros   int64
	Currency     string
	Kind         string
	Method       string
	Status       string
	Metadata     []byte
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (models.Transaction, error) {
	var metadata interface{}
	if len(arg.Metadata) > 0 {
		metadata = string(arg.Metadata)
	}
	row := q.db.QueryRow(ctx, createTransaction,
		arg.ID,
		arg.Reference,
		arg.UserID,
		arg.AmountMicros,
		arg.FeeMicros,
		arg.HoldMicros,
		arg.Currency,
		arg.Kind,
		arg.Method,
		arg.Status,
		metadata,
	)
	return scanTransaction(row)
}

const getTransactionByReference = `-- name: GetTransactionByReference :one
SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`

func (q *Queries) GetTransactionByReference(ctx context.Context, reference string) (models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransactionByReference, reference))
}

const getTransactionByProviderReference = `-- name: GetTransactionByProviderReference :one
SELECT ` + transactionColumns + ` FROM transactions WHERE provider_reference = $1
ORDER BY created_at LIMIT 1`

func (q *Queries) GetTransactionByProviderReference(ctx context.Context, providerReference string) (models.Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransactionByProviderReference, providerReference))
}

const updateTransactionStatus = `-- name: UpdateTransactionStatus :execrows
UPDATE transactions
SET status = $2, updated_at = NOW()
WHERE reference = $1 AND status = ANY($3::text[])
`

// UpdateTransactionStatusParams moves an entry to Status only while it is in
// one of FromStatuses.
type UpdateTransactionStatusParams struct {
	Reference    string
	Status       string
	FromStatuses []string
}

func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateTransactionStatus, arg.Reference, arg.Status, arg.FromStatuses)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const setTransactionProviderReference = `-- name: SetTransactionProviderReference :execrows
UPDATE transactions
SET provider_reference = $2, updated_at = NOW()
WHERE reference = $1
  AND provider_reference IS NULL
  AND NOT EXISTS (
    SELECT 1 FROM transactions other
    WHERE other.provider_reference = $2 AND other.reference <> $1
  )
`

type SetProviderReferenceParams struct {
	Reference         string
	ProviderReference string
}

func (q *Queries) SetTransactionProviderReference(ctx context.Context, arg SetProviderReferenceParams) (int64, error) {
	result, err := q.db.Exec(ctx, setTransactionProviderReference, arg.Reference, arg.ProviderReference)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const mergeTransactionMetadata = `-- name: MergeTransactionMetadata :execrows
UPDATE transactions
SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb, updated_at = NOW()
WHERE reference = $1
`

// MergeMetadataParams carries a JSON object merged key-wise into the entry metadata.
type MergeMetadataParams struct {
	Reference string
	Metadata  []byte
}

func (q *Queries) MergeTransactionMetadata(ctx context.Context, arg MergeMetadataParams) (int64, error) {
	result, err := q.db.Exec(ctx, mergeTransactionMetadata, arg.Reference, string(arg.Metadata))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const countUserTransactionsSince = `-- name: CountUserTransactionsSince :one
SELECT COUNT(*)
FROM transactions
WHERE user_id = $1
  AND kind = $2
  AND method = $3
  AND status = ANY($4::text[])
  AND created_at >= $5
`

type CountUserTransactionsSinceParams struct {
	UserID   uuid.UUID
	Kind     string
	Method   string
	Statuses []string
	Since    time.Time
}

func (q *Queries) CountUserTransactionsSince(ctx context.Context, arg CountUserTransactionsSinceParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countUserTransactionsSince,
		arg.UserID, arg.Kind, arg.Method, arg.Statuses, arg.Since,
	).Scan(&count)
	return count, err
}

const listUserTransactions = `-- name: ListUserTransactions :many
SELECT ` + transactionColumns + `
FROM transactions
WHERE user_id = $1
  AND ($2::text = '' OR kind = $2)
  AND ($3::text = '' OR status = $3)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5
`

type ListUserTransactionsParams struct {
	UserID uuid.UUID
	Kind   string
	Status string
	Limit  int32
	Offset int32
}

func (q *Queries) ListUserTransactions(ctx context.Context, arg ListUserTransactionsParams) ([]models.Transaction, error) {
	return q.transactions(ctx, listUserTransactions, arg.UserID, arg.Kind, arg.Status, arg.Limit, arg.Offset)
}

const listStaleTransactions = `-- name: ListStaleTransactions :many
SELECT ` + transactionColumns + `
FROM transactions
WHERE kind = ANY($1::text[])
  AND status = ANY($2::text[])
  AND updated_at < $3
ORDER BY updated_at ASC
LIMIT $4
`

type ListStaleTransactionsParams struct {
	Kinds    []string
	Statuses []string
	Before   time.Time
	Limit    int32
}

func (q *Queries) ListStaleTransactions(ctx context.Context, arg ListStaleTransactionsParams) ([]models.Transaction, error) {
	return q.transactions(ctx, listStaleTransactions, arg.Kinds, arg.Statuses, arg.Before, arg.Limit)
}

const sumOpenHoldsByCurrency = `-- name: SumOpenHoldsByCurrency :many
SELECT currency, COALESCE(SUM(hold_micros), 0)::bigint
FROM transactions
WHERE status = 'PROCESSING' AND hold_micros > 0
GROUP BY currency
ORDER BY currency
`

// SumOpenHoldsByCurrency totals the holds of in-flight entries.
func (q *Queries) SumOpenHoldsByCurrency(ctx context.Context) ([]CurrencyTotal, error) {
	return q.currencyTotals(ctx, sumOpenHoldsByCurrency)
}

func (q *Queries) transactions(ctx context.Context, query string, args ...interface{}) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

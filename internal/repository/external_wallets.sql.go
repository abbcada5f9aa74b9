package repository

import (
	"context"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
)

const upsertExternalWallet = `-- name: UpsertExternalWallet :one
INSERT INTO external_wallets (user_id, currency, address, label, network)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, currency) DO UPDATE
SET address = EXCLUDED.address,
    label = EXCLUDED.label,
    network = EXCLUDED.network,
    updated_at = NOW()
RETURNING user_id, currency, address, label, network, updated_at
`

type UpsertExternalWalletParams struct {
	UserID   uuid.UUID
	Currency string
	Address  string
	Label    string
	Network  string
}

func (q *Queries) UpsertExternalWallet(ctx context.Context, arg UpsertExternalWalletParams) (models.ExternalWallet, error) {
	row := q.db.QueryRow(ctx, upsertExternalWallet, arg.UserID, arg.Currency, arg.Address, arg.Label, arg.Network)
	var w models.ExternalWallet
	err := row.Scan(&w.UserID, &w.Currency, &w.Address, &w.Label, &w.Network, &w.UpdatedAt)
	return w, err
}

type ExternalWalletKey struct {
	UserID   uuid.UUID
	Currency string
}

const getExternalWallet = `-- name: GetExternalWallet :one
SELECT user_id, currency, address, label, network, updated_at
FROM external_wallets
WHERE user_id = $1 AND currency = $2
`

func (q *Queries) GetExternalWallet(ctx context.Context, arg ExternalWalletKey) (models.ExternalWallet, error) {
	row := q.db.QueryRow(ctx, getExternalWallet, arg.UserID, arg.Currency)
	var w models.ExternalWallet
	err := row.Scan(&w.UserID, &w.Currency, &w.Address, &w.Label, &w.Network, &w.UpdatedAt)
	return w, err
}

const listExternalWallets = `-- name: ListExternalWallets :many
SELECT user_id, currency, address, label, network, updated_at
FROM external_wallets
WHERE user_id = $1
ORDER BY currency
`

func (q *Queries) ListExternalWallets(ctx context.Context, userID uuid.UUID) ([]models.ExternalWallet, error) {
	rows, err := q.db.Query(ctx, listExternalWallets, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []models.ExternalWallet
	for rows.Next() {
		var w models.ExternalWallet
		if err := rows.Scan(&w.UserID, &w.Currency, &w.Address, &w.Label, &w.Network, &w.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

package repository

import (
	"context"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
)

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, email, role, email_verified, kyc_verified, profile_verified)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING
RETURNING id, email, role, email_verified, kyc_verified, profile_verified, created_at
`

type CreateUserParams struct {
	ID              uuid.UUID
	Email           string
	Role            string
	EmailVerified   bool
	KYCVerified     bool
	ProfileVerified bool
}

// CreateUser returns pgx.ErrNoRows when the user already exists.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.ID, arg.Email, arg.Role, arg.EmailVerified, arg.KYCVerified, arg.ProfileVerified,
	)
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Role, &u.EmailVerified, &u.KYCVerified, &u.ProfileVerified, &u.CreatedAt)
	return u, err
}

const getUser = `-- name: GetUser :one
SELECT id, email, role, email_verified, kyc_verified, profile_verified, created_at
FROM users WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Role, &u.EmailVerified, &u.KYCVerified, &u.ProfileVerified, &u.CreatedAt)
	return u, err
}

package repository

import (
	"context"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const insertRateSample = `-- name: InsertRateSample :exec
INSERT INTO rate_samples (from_currency, to_currency, rate, fetched_at)
VALUES ($1, $2, $3::text::numeric, $4)
`

func (q *Queries) InsertRateSample(ctx context.Context, arg models.RateSample) error {
	_, err := q.db.Exec(ctx, insertRateSample, arg.FromCurrency, arg.ToCurrency, arg.Rate.String(), arg.FetchedAt)
	return err
}

const getLatestRateSample = `-- name: GetLatestRateSample :one
SELECT from_currency, to_currency, rate::text, fetched_at
FROM rate_samples
WHERE from_currency = $1 AND to_currency = $2 AND fetched_at >= $3
ORDER BY fetched_at DESC
LIMIT 1
`

// GetLatestRateSampleParams selects the newest sample fetched at or after NotBefore.
type GetLatestRateSampleParams struct {
	FromCurrency string
	ToCurrency   string
	NotBefore    time.Time
}

func (q *Queries) GetLatestRateSample(ctx context.Context, arg GetLatestRateSampleParams) (models.RateSample, error) {
	var (
		s    models.RateSample
		rate string
	)
	err := q.db.QueryRow(ctx, getLatestRateSample, arg.FromCurrency, arg.ToCurrency, arg.NotBefore).
		Scan(&s.FromCurrency, &s.ToCurrency, &rate, &s.FetchedAt)
	if err != nil {
		return s, err
	}
	s.Rate, err = decimal.NewFromString(rate)
	return s, err
}

// Package rates resolves currency conversion rates from live feeds, an
// injected cache and persisted samples.
package rates

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider returns the rate converting one unit of from into to.
// Failures wrap domain.ErrRateUnavailable.
type Provider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

func pairKey(from, to string) string {
	return from + "_" + to
}

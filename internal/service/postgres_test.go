package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/ayo6706/wallet-ledger/internal/db"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/fees"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to DATABASE_URL, applies migrations and empties every
// table. Tests are skipped when no database is configured.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, connString)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, db.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE TABLE audit_log, conversions, transactions, external_wallets,
		wallet_balances, wallets, users, rate_samples, idempotency_keys CASCADE`)
	require.NoError(t, err)
	return pool
}

func TestPostgresConcurrentTransfersNeverDoubleSpend(t *testing.T) {
	pool := setupTestDB(t)
	h := buildHarness(repository.NewStore(pool), nil, fees.NewEngine(fees.WithFreeTransfers(0)))
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 10_000)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.transfers.Transfer(ctx, identity, ngnTransfer("", 3_000))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	total, held := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(10_000-3*3_050), total)
	assert.Equal(t, int64(0), held)

	imbalances, err := h.reconciler.CheckHoldInvariant(ctx)
	require.NoError(t, err)
	assert.Empty(t, imbalances)
}

func TestPostgresWebhookReplayCreditsOnce(t *testing.T) {
	pool := setupTestDB(t)
	h := buildHarness(repository.NewStore(pool), nil, fees.NewEngine())
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 0)
	initiateDeposit(t, h, identity, "DEP-pg", 750)

	body, sig := signedPayload(t, depositEvent("DEP-pg", "750", "success"))
	for i := 0; i < 3; i++ {
		_, err := h.webhooks.HandleWebhook(ctx, body, sig)
		require.NoError(t, err)
	}

	total, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(750), total)

	_, err := h.transfers.Transfer(ctx, identity, ngnTransfer("DEP-pg", 10))
	require.ErrorIs(t, err, domain.ErrDuplicateReference)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStaleReleasesFailedDisbursement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 1_000)
	h.disburser.err = domain.ErrProviderTimeout

	res, err := h.transfers.Transfer(ctx, identity, ngnTransfer("TRF-sweep", 500))
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusProcessing, res.Status)

	report, err := h.reconciler.ResolveStale(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned, "entry is not stale yet")

	h.ageJournal(time.Hour)
	report, err = h.reconciler.ResolveStale(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending, "provider has no final answer")

	h.disburser.status = gateway.Settlement{Outcome: domain.OutcomeFailed, Reason: "beneficiary bank offline"}
	report, err = h.reconciler.ResolveStale(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	total, held := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(1_000), total)
	assert.Equal(t, int64(0), held)

	tx, err := h.journal.Get(ctx, "TRF-sweep")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusFailed, tx.Status)
}

func TestOperatorResolveRecordsActor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 1_000)
	h.disburser.err = domain.ErrProviderTimeout

	_, err := h.transfers.Transfer(ctx, identity, ngnTransfer("TRF-operator", 100))
	require.NoError(t, err)

	_, err = h.reconciler.Resolve(ctx, identity, "TRF-operator", domain.OutcomeSuccess, "confirmed by bank")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	admin := domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin}
	_, err = h.reconciler.Resolve(ctx, admin, "TRF-missing", domain.OutcomeSuccess, "")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	res, err := h.reconciler.Resolve(ctx, admin, "TRF-operator", domain.OutcomeSuccess, "confirmed by bank")
	require.NoError(t, err)
	assert.Equal(t, SettleApplied, res.Result)

	total, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(1_000-150), total)

	tx, err := h.journal.Get(ctx, "TRF-operator")
	require.NoError(t, err)
	history, err := NewAuditService().History(ctx, h.store.Queries(), tx.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	require.NotNil(t, last.ActorID)
	assert.Equal(t, admin.UserID, *last.ActorID)
	assert.Equal(t, "settled_success_operator", last.Action)
}

func TestCheckHoldInvariant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 1_000)
	h.disburser.err = domain.ErrProviderTimeout

	_, err := h.transfers.Transfer(ctx, identity, ngnTransfer("TRF-held", 200))
	require.NoError(t, err)

	imbalances, err := h.reconciler.CheckHoldInvariant(ctx)
	require.NoError(t, err)
	assert.Empty(t, imbalances)

	err = h.store.RunInTx(ctx, func(q repository.Querier) error {
		return h.ledger.Hold(ctx, q, identity.UserID, domain.CurrencyNGN, units(10))
	})
	require.NoError(t, err)

	imbalances, err = h.reconciler.CheckHoldInvariant(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{domain.CurrencyNGN: units(10)}, imbalances)
}

func TestOutboundFinishesAfterCallerCancels(t *testing.T) {
	var canceling *cancelingStore
	h := newHarness(t, withStoreWrapper(func(s QueryStore) QueryStore {
		canceling = &cancelingStore{QueryStore: s}
		return canceling
	}))
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 10_000)
	h.fund(t, identity, domain.CurrencyUSD, 10)

	ctx, cancel := context.WithCancel(context.Background())
	canceling.cancel = cancel
	canceling.cancelAfter = canceling.calls + 1

	res, err := h.transfers.Transfer(ctx, identity, ngnTransfer("TRF-gone", 1_000))
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, res.Status)
	total, held := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(10_000-1_050), total)
	assert.Equal(t, int64(0), held)

	ctx, cancel = context.WithCancel(context.Background())
	canceling.cancel = cancel
	canceling.cancelAfter = canceling.calls + 1

	conv, err := h.conversions.Convert(ctx, identity, ConvertRequest{
		Reference:  "CNV-gone",
		Amount:     domain.NewMoney(units(10), domain.CurrencyUSD),
		ToCurrency: domain.CurrencyNGN,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusSuccess, conv.Status)
	usd, _ := h.balance(t, identity.UserID, domain.CurrencyUSD)
	assert.Equal(t, int64(0), usd)
}

func TestResolveStaleFailsAbandonedEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 1_000)

	record := func(reference, kind, method, status string) {
		err := h.store.RunInTx(ctx, func(q repository.Querier) error {
			_, err := h.journal.Record(ctx, q, RecordParams{
				Reference:   reference,
				UserID:      identity.UserID,
				AmountMicro: units(100),
				Currency:    domain.CurrencyNGN,
				Kind:        kind,
				Method:      method,
				Status:      status,
			}, &identity.UserID)
			return err
		})
		require.NoError(t, err)
	}
	record("TRF-abandoned", domain.KindTransfer, domain.MethodBankTransfer, domain.TxStatusPending)
	record("CNV-abandoned", domain.KindConversion, domain.MethodConversion, domain.TxStatusProcessing)

	// Provider answers never apply to conversions.
	res, err := h.webhooks.Reconcile(ctx, "CNV-abandoned", domain.OutcomeFailed, ReconcileDetails{})
	require.NoError(t, err)
	assert.Equal(t, SettleIgnored, res.Result)

	report, err := h.reconciler.ResolveStale(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned, "entries are not stale yet")

	h.ageJournal(time.Hour)
	report, err = h.reconciler.ResolveStale(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Abandoned)
	assert.Equal(t, 0, report.Errors)

	for _, ref := range []string{"TRF-abandoned", "CNV-abandoned"} {
		tx, err := h.journal.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, domain.TxStatusFailed, tx.Status, ref)
	}
	total, held := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(1_000), total)
	assert.Equal(t, int64(0), held)
}

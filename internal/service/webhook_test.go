package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depositEvent(reference, amount, status string) WebhookPayload {
	return WebhookPayload{
		Event: "charge." + status,
		Data: WebhookData{
			Reference: reference,
			Amount:    amount,
			Currency:  "ngn",
			Status:    status,
		},
	}
}

func initiateDeposit(t *testing.T, h *harness, identity domain.Identity, reference string, amount int64) {
	t.Helper()
	res, err := h.deposits.Initiate(context.Background(), identity, DepositRequest{
		Reference: reference,
		Amount:    domain.NewMoney(units(amount), domain.CurrencyNGN),
		Method:    domain.MethodCard,
	})
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, res.Status)
}

func TestWebhookCreditsDepositOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 0)
	initiateDeposit(t, h, identity, "DEP-once", 5_000)

	body, sig := signedPayload(t, depositEvent("DEP-once", "5000", "success"))

	first, err := h.webhooks.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, SettleApplied, first.Result)
	assert.Equal(t, domain.TxStatusSuccess, first.Status)

	second, err := h.webhooks.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, SettleNoop, second.Result)

	total, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(5_000), total)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 0)
	initiateDeposit(t, h, identity, "DEP-badsig", 5_000)

	body, _ := signedPayload(t, depositEvent("DEP-badsig", "5000", "success"))
	for _, sig := range []string{"", "sha256=deadbeef", Sign([]byte("other-key"), body)} {
		_, err := h.webhooks.HandleWebhook(ctx, body, sig)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	}

	tx, err := h.journal.Get(ctx, "DEP-badsig")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, tx.Status)
	total, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, int64(0), total)
}

func TestWebhookConflictingOutcomeNeverOverwrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 0)
	initiateDeposit(t, h, identity, "DEP-conflict", 2_000)

	body, sig := signedPayload(t, depositEvent("DEP-conflict", "2000", "success"))
	_, err := h.webhooks.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)

	body, sig = signedPayload(t, depositEvent("DEP-conflict", "2000", "failed"))
	res, err := h.webhooks.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, SettleConflict, res.Result)
	assert.Equal(t, domain.TxStatusSuccess, res.Status)

	total, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, units(2_000), total)

	tx, err := h.journal.Get(ctx, "DEP-conflict")
	require.NoError(t, err)
	history, err := NewAuditService().History(ctx, h.store.Queries(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "reconciliation_conflict", history[len(history)-1].Action)
}

func TestWebhookCreditsConfirmedAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 0)
	initiateDeposit(t, h, identity, "DEP-partial", 5_000)

	body, sig := signedPayload(t, depositEvent("DEP-partial", "4999.5", "success"))
	_, err := h.webhooks.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)

	total, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, int64(4_999_500_000), total)

	tx, err := h.journal.Get(ctx, "DEP-partial")
	require.NoError(t, err)
	meta := entryMetadata(t, tx.Metadata)
	assert.EqualValues(t, 5_000_000_000, meta["requested_amount_micros"])
	assert.EqualValues(t, 4_999_500_000, meta["confirmed_amount_micros"])
}

func TestWebhookCurrencyMismatchIsConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 0)
	initiateDeposit(t, h, identity, "DEP-ccy", 100)

	event := depositEvent("DEP-ccy", "100", "success")
	event.Data.Currency = "USD"
	body, sig := signedPayload(t, event)
	res, err := h.webhooks.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, SettleConflict, res.Result)
	assert.Equal(t, domain.TxStatusPending, res.Status)
}

func TestWebhookUnknownReferenceIsIgnored(t *testing.T) {
	h := newHarness(t)
	body, sig := signedPayload(t, depositEvent("DEP-missing", "10", "success"))

	res, err := h.webhooks.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, SettleIgnored, res.Result)
}

func TestWebhookPendingStatusIsIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 0)
	initiateDeposit(t, h, identity, "DEP-wait", 100)

	body, sig := signedPayload(t, depositEvent("DEP-wait", "", "processing"))
	res, err := h.webhooks.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, SettleIgnored, res.Result)

	tx, err := h.journal.Get(ctx, "DEP-wait")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusPending, tx.Status)
}

func TestExpiredDepositRejectsLateSuccess(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 0)
	initiateDeposit(t, h, identity, "DEP-late", 300)

	expired, err := h.deposits.ExpirePending(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	h.ageJournal(2 * time.Hour)
	expired, err = h.deposits.ExpirePending(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	body, sig := signedPayload(t, depositEvent("DEP-late", "300", "success"))
	res, err := h.webhooks.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, SettleConflict, res.Result)

	total, _ := h.balance(t, identity.UserID, domain.CurrencyNGN)
	assert.Equal(t, int64(0), total)
}

func TestDepositInitiateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := verifiedIdentity()

	_, err := h.deposits.Initiate(ctx, identity, DepositRequest{Amount: domain.NewMoney(units(10), domain.CurrencyNGN)})
	require.ErrorIs(t, err, domain.ErrWalletNotFound)

	h.fund(t, identity, domain.CurrencyNGN, 0)
	_, err = h.deposits.Initiate(ctx, identity, DepositRequest{Amount: domain.NewMoney(units(10), domain.CurrencyBTC)})
	require.ErrorIs(t, err, domain.ErrUnsupportedCurrency)

	_, err = h.deposits.Initiate(ctx, identity, DepositRequest{Amount: domain.NewMoney(0, domain.CurrencyNGN)})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	res, err := h.deposits.Initiate(ctx, identity, DepositRequest{Amount: domain.NewMoney(units(10), domain.CurrencyUSD)})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodCard, res.Method)
	assert.Contains(t, res.Reference, domain.RefPrefixDeposit+"-")
}

func TestWebhookLosingFinalizerIsNoopOrConflict(t *testing.T) {
	var racing *racingStore
	h := newHarness(t, withStoreWrapper(func(s QueryStore) QueryStore {
		racing = &racingStore{QueryStore: s}
		return racing
	}))
	ctx := context.Background()
	identity := verifiedIdentity()
	h.fund(t, identity, domain.CurrencyNGN, 10_000)
	h.disburser.err = domain.ErrProviderTimeout

	for _, ref := range []string{"TRF-race-same", "TRF-race-other"} {
		res, err := h.transfers.Transfer(ctx, identity, ngnTransfer(ref, 100))
		require.NoError(t, err)
		require.Equal(t, domain.TxStatusProcessing, res.Status)
	}

	racing.winner = domain.TxStatusSuccess
	res, err := h.webhooks.Reconcile(ctx, "TRF-race-same", domain.OutcomeSuccess, ReconcileDetails{})
	require.NoError(t, err)
	assert.Equal(t, SettleNoop, res.Result)
	assert.Equal(t, domain.TxStatusSuccess, res.Status)

	racing.winner = domain.TxStatusFailed
	res, err = h.webhooks.Reconcile(ctx, "TRF-race-other", domain.OutcomeSuccess, ReconcileDetails{})
	require.NoError(t, err)
	assert.Equal(t, SettleConflict, res.Result)
	assert.Equal(t, domain.TxStatusFailed, res.Status)
}

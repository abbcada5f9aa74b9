package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/fees"
	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testWebhookKey = "whsec_test"

type stubDisburser struct {
	mu       sync.Mutex
	decision gateway.Disbursement
	err      error
	status   gateway.Settlement
	calls    int32
	requests []gateway.DisbursementRequest
}

func (s *stubDisburser) Disburse(_ context.Context, req gateway.DisbursementRequest) (gateway.Disbursement, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	decision := s.decision
	if decision.Accepted() && decision.ProviderReference == "" {
		decision.ProviderReference = "prov-" + req.Reference
	}
	return decision, s.err
}

func (s *stubDisburser) Status(_ context.Context, _ string) (gateway.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *stubDisburser) Calls() int {
	return int(atomic.LoadInt32(&s.calls))
}

type stubRates struct {
	rates map[string]decimal.Decimal
	err   error
}

func (s stubRates) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Decimal{}, s.err
	}
	r, ok := s.rates[from+"_"+to]
	if !ok {
		return decimal.Decimal{}, domain.ErrNoRateAvailable
	}
	return r, nil
}

// flakyStore fails the failOn-th RunInTx call without running it.
type flakyStore struct {
	QueryStore
	mu     sync.Mutex
	calls  int
	failOn int
}

var errInjected = errors.New("injected storage failure")

func (s *flakyStore) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls == s.failOn
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.QueryStore.RunInTx(ctx, fn)
}

// cancelingStore cancels the caller's context right after the cancelAfter-th
// RunInTx call commits, as if the client disconnected at that point.
type cancelingStore struct {
	QueryStore
	mu          sync.Mutex
	calls       int
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *cancelingStore) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	err := s.QueryStore.RunInTx(ctx, fn)
	s.mu.Lock()
	s.calls++
	if s.calls == s.cancelAfter && s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	return err
}

// racingStore lets a competing finalizer move the entry to winner just
// before the next conditional status update runs.
type racingStore struct {
	QueryStore
	winner string
}

func (s *racingStore) RunInTx(ctx context.Context, fn func(q repository.Querier) error) error {
	return s.QueryStore.RunInTx(ctx, func(q repository.Querier) error {
		return fn(&racingQuerier{Querier: q, store: s})
	})
}

type racingQuerier struct {
	repository.Querier
	store *racingStore
}

func (q *racingQuerier) UpdateTransactionStatus(ctx context.Context, arg repository.UpdateTransactionStatusParams) (int64, error) {
	if winner := q.store.winner; winner != "" {
		q.store.winner = ""
		if _, err := q.Querier.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
			Reference:    arg.Reference,
			Status:       winner,
			FromStatuses: arg.FromStatuses,
		}); err != nil {
			return 0, err
		}
	}
	return q.Querier.UpdateTransactionStatus(ctx, arg)
}

type harness struct {
	store       QueryStore
	memory      *repository.MemoryStore
	ledger      *LedgerService
	journal     *JournalService
	settler     *Settler
	transfers   *TransferService
	conversions *ConversionService
	deposits    *DepositService
	webhooks    *WebhookService
	reconciler  *ReconciliationService
	externals   *ExternalWalletService
	disburser   *stubDisburser
	rates       *stubRates
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	engine *fees.Engine
	wrap   func(QueryStore) QueryStore
}

func withFeeEngine(e *fees.Engine) harnessOption {
	return func(c *harnessConfig) { c.engine = e }
}

func withStoreWrapper(wrap func(QueryStore) QueryStore) harnessOption {
	return func(c *harnessConfig) { c.wrap = wrap }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{engine: fees.NewEngine(fees.WithFreeTransfers(0))}
	for _, opt := range opts {
		opt(&cfg)
	}

	memory := repository.NewMemoryStore()
	var store QueryStore = memory
	if cfg.wrap != nil {
		store = cfg.wrap(memory)
	}
	return buildHarness(store, memory, cfg.engine)
}

func buildHarness(store QueryStore, memory *repository.MemoryStore, engine *fees.Engine) *harness {
	audit := NewAuditService()
	ledger := NewLedgerService(store)
	journal := NewJournalService(store, audit)
	settler := NewSettler(ledger, journal, audit)
	disburser := &stubDisburser{
		decision: gateway.Disbursement{Decision: gateway.DecisionAccepted},
		status:   gateway.Settlement{Outcome: domain.OutcomePending},
	}
	rates := &stubRates{rates: map[string]decimal.Decimal{
		"USD_NGN": decimal.NewFromInt(1500),
		"NGN_USD": decimal.RequireFromString("0.0005"),
		"BTC_NGN": decimal.NewFromInt(100_000_000),
	}}
	webhooks := NewWebhookService(store, journal, settler, nil, testWebhookKey, false)

	return &harness{
		store:       store,
		memory:      memory,
		ledger:      ledger,
		journal:     journal,
		settler:     settler,
		transfers:   NewTransferService(store, ledger, journal, settler, engine, disburser, nil).WithDisbursementTimeout(time.Second),
		conversions: NewConversionService(store, ledger, journal, rates, engine, nil),
		deposits:    NewDepositService(store, ledger, journal, settler),
		webhooks:    webhooks,
		reconciler:  NewReconciliationService(store, journal, webhooks, disburser),
		externals:   NewExternalWalletService(store),
		disburser:   disburser,
		rates:       rates,
	}
}

func verifiedIdentity() domain.Identity {
	return domain.Identity{
		UserID:          uuid.New(),
		Email:           "user@example.com",
		EmailVerified:   true,
		KYCVerified:     true,
		ProfileVerified: true,
	}
}

// fund creates the wallet if needed and credits whole units of currency.
func (h *harness) fund(t *testing.T, identity domain.Identity, currency string, units int64) {
	t.Helper()
	ctx := context.Background()
	_, _, err := h.ledger.EnsureWallet(ctx, identity)
	require.NoError(t, err)
	if units == 0 {
		return
	}
	err = h.store.RunInTx(ctx, func(q repository.Querier) error {
		_, err := h.ledger.Mutate(ctx, q, identity.UserID, currency, units*domain.MicrosPerUnit, domain.DirectionAdd)
		return err
	})
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, userID uuid.UUID, currency string) (total, held int64) {
	t.Helper()
	b, err := h.ledger.GetBalance(context.Background(), userID, currency)
	require.NoError(t, err)
	return b.BalanceMicro, b.HeldMicro
}

// ageJournal makes every existing entry look older than any sweep cutoff.
func (h *harness) ageJournal(by time.Duration) {
	h.journal.now = func() time.Time { return time.Now().UTC().Add(by) }
}

func units(n int64) int64 {
	return n * domain.MicrosPerUnit
}

func entryMetadata(t *testing.T, raw []byte) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	if len(raw) == 0 {
		return out
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func signedPayload(t *testing.T, v interface{}) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return body, Sign([]byte(testWebhookKey), body)
}

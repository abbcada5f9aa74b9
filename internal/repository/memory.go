package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MemoryStore is an in-process twin of Store. It honours the same conditional
// update semantics and error values (pgx.ErrNoRows, unique_violation) so
// services behave identically on either backend.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for created_at/updated_at stamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Queries() Querier {
	return &memQueries{store: s}
}

// RunInTx runs fn against a private copy of the state and publishes it only
// when fn succeeds. Transactions are serialised.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(q Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.state.clone()
	if err := fn(&memQueries{store: s, tx: draft}); err != nil {
		return err
	}
	s.state = draft
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

type memState struct {
	users          map[uuid.UUID]models.User
	wallets        map[uuid.UUID]models.Wallet
	balances       map[BalanceKey]models.Balance
	transactions   map[string]models.Transaction
	txSeq          map[string]int64
	seq            int64
	conversions    map[uuid.UUID]models.Conversion
	rates          []models.RateSample
	externals      map[ExternalWalletKey]models.ExternalWallet
	audit          []AuditLog
	idempotencyKey map[string]IdempotencyKey
}

func newMemState() *memState {
	return &memState{
		users:          make(map[uuid.UUID]models.User),
		wallets:        make(map[uuid.UUID]models.Wallet),
		balances:       make(map[BalanceKey]models.Balance),
		transactions:   make(map[string]models.Transaction),
		txSeq:          make(map[string]int64),
		conversions:    make(map[uuid.UUID]models.Conversion),
		externals:      make(map[ExternalWalletKey]models.ExternalWallet),
		idempotencyKey: make(map[string]IdempotencyKey),
	}
}

// clone copies every map. Stored values are never mutated in place, so a
// shallow copy of each value is enough.
func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.wallets {
		c.wallets[k] = v
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	for k, v := range st.txSeq {
		c.txSeq[k] = v
	}
	c.seq = st.seq
	for k, v := range st.conversions {
		c.conversions[k] = v
	}
	c.rates = append([]models.RateSample(nil), st.rates...)
	for k, v := range st.externals {
		c.externals[k] = v
	}
	c.audit = append([]AuditLog(nil), st.audit...)
	for k, v := range st.idempotencyKey {
		c.idempotencyKey[k] = v
	}
	return c
}

type memQueries struct {
	store *MemoryStore
	tx    *memState
}

var _ Querier = (*memQueries)(nil)

// do runs fn against the transaction draft, or against the live state under
// the store lock when called outside a transaction.
func (q *memQueries) do(fn func(st *memState, now time.Time) error) error {
	if q.tx != nil {
		return fn(q.tx, q.store.now())
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	return fn(q.store.state, q.store.now())
}

func (q *memQueries) CreateUser(_ context.Context, arg CreateUserParams) (models.User, error) {
	var out models.User
	err := q.do(func(st *memState, now time.Time) error {
		if _, ok := st.users[arg.ID]; ok {
			return pgx.ErrNoRows
		}
		out = models.User{
			ID:              arg.ID,
			Email:           arg.Email,
			Role:            arg.Role,
			EmailVerified:   arg.EmailVerified,
			KYCVerified:     arg.KYCVerified,
			ProfileVerified: arg.ProfileVerified,
			CreatedAt:       now,
		}
		st.users[arg.ID] = out
		return nil
	})
	return out, err
}

func (q *memQueries) GetUser(_ context.Context, id uuid.UUID) (models.User, error) {
	var out models.User
	err := q.do(func(st *memState, _ time.Time) error {
		u, ok := st.users[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = u
		return nil
	})
	return out, err
}

func (q *memQueries) CreateWallet(_ context.Context, arg CreateWalletParams) (models.Wallet, error) {
	var out models.Wallet
	err := q.do(func(st *memState, now time.Time) error {
		if _, ok := st.wallets[arg.UserID]; ok {
			return uniqueViolationError("wallets_user_id_key")
		}
		out = models.Wallet{ID: arg.ID, UserID: arg.UserID, CreatedAt: now}
		st.wallets[arg.UserID] = out
		return nil
	})
	return out, err
}

func (q *memQueries) GetWalletByUserID(_ context.Context, userID uuid.UUID) (models.Wallet, error) {
	var out models.Wallet
	err := q.do(func(st *memState, _ time.Time) error {
		w, ok := st.wallets[userID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = w
		return nil
	})
	return out, err
}

func (q *memQueries) CreateWalletBalance(_ context.Context, arg BalanceKey) error {
	return q.do(func(st *memState, now time.Time) error {
		if _, ok := st.balances[arg]; ok {
			return uniqueViolationError("wallet_balances_pkey")
		}
		st.balances[arg] = models.Balance{UserID: arg.UserID, Currency: arg.Currency, UpdatedAt: now}
		return nil
	})
}

func (q *memQueries) GetWalletBalance(_ context.Context, arg BalanceKey) (models.Balance, error) {
	var out models.Balance
	err := q.do(func(st *memState, _ time.Time) error {
		b, ok := st.balances[arg]
		if !ok {
			return pgx.ErrNoRows
		}
		out = b
		return nil
	})
	return out, err
}

func (q *memQueries) ListWalletBalances(_ context.Context, userID uuid.UUID) ([]models.Balance, error) {
	var out []models.Balance
	err := q.do(func(st *memState, _ time.Time) error {
		for k, b := range st.balances {
			if k.UserID == userID {
				out = append(out, b)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
		return nil
	})
	return out, err
}

// updateBalance applies mutate to one slot when allowed returns true.
func (q *memQueries) updateBalance(arg BalanceChangeParams, allowed func(models.Balance) bool, mutate func(*models.Balance)) (models.Balance, error) {
	var out models.Balance
	err := q.do(func(st *memState, now time.Time) error {
		key := BalanceKey{UserID: arg.UserID, Currency: arg.Currency}
		b, ok := st.balances[key]
		if !ok || !allowed(b) {
			return pgx.ErrNoRows
		}
		mutate(&b)
		b.UpdatedAt = now
		st.balances[key] = b
		out = b
		return nil
	})
	return out, err
}

func (q *memQueries) CreditBalance(_ context.Context, arg BalanceChangeParams) (int64, error) {
	b, err := q.updateBalance(arg,
		func(models.Balance) bool { return true },
		func(b *models.Balance) { b.BalanceMicro += arg.Amount },
	)
	return b.BalanceMicro, err
}

func (q *memQueries) DebitBalance(_ context.Context, arg BalanceChangeParams) (int64, error) {
	b, err := q.updateBalance(arg,
		func(b models.Balance) bool { return b.Available() >= arg.Amount },
		func(b *models.Balance) { b.BalanceMicro -= arg.Amount },
	)
	return b.BalanceMicro, err
}

func (q *memQueries) HoldFunds(_ context.Context, arg BalanceChangeParams) (int64, error) {
	b, err := q.updateBalance(arg,
		func(b models.Balance) bool { return b.Available() >= arg.Amount },
		func(b *models.Balance) { b.HeldMicro += arg.Amount },
	)
	return b.HeldMicro, err
}

func (q *memQueries) ReleaseHold(_ context.Context, arg BalanceChangeParams) (int64, error) {
	b, err := q.updateBalance(arg,
		func(b models.Balance) bool { return b.HeldMicro >= arg.Amount },
		func(b *models.Balance) { b.HeldMicro -= arg.Amount },
	)
	return b.HeldMicro, err
}

func (q *memQueries) CaptureHold(_ context.Context, arg BalanceChangeParams) (int64, error) {
	b, err := q.updateBalance(arg,
		func(b models.Balance) bool { return b.HeldMicro >= arg.Amount },
		func(b *models.Balance) {
			b.HeldMicro -= arg.Amount
			b.BalanceMicro -= arg.Amount
		},
	)
	return b.BalanceMicro, err
}

func (q *memQueries) SumHeldByCurrency(_ context.Context) ([]CurrencyTotal, error) {
	var out []CurrencyTotal
	err := q.do(func(st *memState, _ time.Time) error {
		totals := make(map[string]int64)
		for _, b := range st.balances {
			totals[b.Currency] += b.HeldMicro
		}
		out = sortedTotals(totals)
		return nil
	})
	return out, err
}

func (q *memQueries) CreateTransaction(_ context.Context, arg CreateTransactionParams) (models.Transaction, error) {
	var out models.Transaction
	err := q.do(func(st *memState, now time.Time) error {
		if _, ok := st.transactions[arg.Reference]; ok {
			return uniqueViolationError("transactions_reference_key")
		}
		metadata := arg.Metadata
		if len(metadata) == 0 {
			metadata = []byte("{}")
		}
		out = models.Transaction{
			ID:           arg.ID,
			Reference:    arg.Reference,
			UserID:       arg.UserID,
			AmountMicros: arg.AmountMicros,
			FeeMicros:    arg.FeeMicros,
			HoldMicros:   arg.HoldMicros,
			Currency:     arg.Currency,
			Kind:         arg.Kind,
			Method:       arg.Method,
			Status:       arg.Status,
			Metadata:     append([]byte(nil), metadata...),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		st.seq++
		st.transactions[arg.Reference] = out
		st.txSeq[arg.Reference] = st.seq
		return nil
	})
	return out, err
}

func (q *memQueries) GetTransactionByReference(_ context.Context, reference string) (models.Transaction, error) {
	var out models.Transaction
	err := q.do(func(st *memState, _ time.Time) error {
		t, ok := st.transactions[reference]
		if !ok {
			return pgx.ErrNoRows
		}
		out = t
		return nil
	})
	return out, err
}

func (q *memQueries) GetTransactionByProviderReference(_ context.Context, providerReference string) (models.Transaction, error) {
	var out models.Transaction
	err := q.do(func(st *memState, _ time.Time) error {
		for _, t := range st.transactions {
			if t.ProviderReference != nil && *t.ProviderReference == providerReference {
				out = t
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (q *memQueries) UpdateTransactionStatus(_ context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	var affected int64
	err := q.do(func(st *memState, now time.Time) error {
		t, ok := st.transactions[arg.Reference]
		if !ok || !contains(arg.FromStatuses, t.Status) {
			return nil
		}
		t.Status = arg.Status
		t.UpdatedAt = now
		st.transactions[arg.Reference] = t
		affected = 1
		return nil
	})
	return affected, err
}

func (q *memQueries) SetTransactionProviderReference(_ context.Context, arg SetProviderReferenceParams) (int64, error) {
	var affected int64
	err := q.do(func(st *memState, now time.Time) error {
		t, ok := st.transactions[arg.Reference]
		if !ok || t.ProviderReference != nil {
			return nil
		}
		for ref, other := range st.transactions {
			if ref != arg.Reference && other.ProviderReference != nil && *other.ProviderReference == arg.ProviderReference {
				return nil
			}
		}
		providerRef := arg.ProviderReference
		t.ProviderReference = &providerRef
		t.UpdatedAt = now
		st.transactions[arg.Reference] = t
		affected = 1
		return nil
	})
	return affected, err
}

func (q *memQueries) MergeTransactionMetadata(_ context.Context, arg MergeMetadataParams) (int64, error) {
	var affected int64
	err := q.do(func(st *memState, now time.Time) error {
		t, ok := st.transactions[arg.Reference]
		if !ok {
			return nil
		}
		merged := map[string]interface{}{}
		if len(t.Metadata) > 0 {
			if err := json.Unmarshal(t.Metadata, &merged); err != nil {
				return err
			}
		}
		patch := map[string]interface{}{}
		if err := json.Unmarshal(arg.Metadata, &patch); err != nil {
			return err
		}
		for k, v := range patch {
			merged[k] = v
		}
		raw, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		t.Metadata = raw
		t.UpdatedAt = now
		st.transactions[arg.Reference] = t
		affected = 1
		return nil
	})
	return affected, err
}

func (q *memQueries) CountUserTransactionsSince(_ context.Context, arg CountUserTransactionsSinceParams) (int64, error) {
	var count int64
	err := q.do(func(st *memState, _ time.Time) error {
		for _, t := range st.transactions {
			if t.UserID == arg.UserID &&
				t.Kind == arg.Kind &&
				t.Method == arg.Method &&
				contains(arg.Statuses, t.Status) &&
				!t.CreatedAt.Before(arg.Since) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (q *memQueries) ListUserTransactions(_ context.Context, arg ListUserTransactionsParams) ([]models.Transaction, error) {
	var out []models.Transaction
	err := q.do(func(st *memState, _ time.Time) error {
		var matched []models.Transaction
		for _, t := range st.transactions {
			if t.UserID != arg.UserID {
				continue
			}
			if arg.Kind != "" && t.Kind != arg.Kind {
				continue
			}
			if arg.Status != "" && t.Status != arg.Status {
				continue
			}
			matched = append(matched, t)
		}
		sort.Slice(matched, func(i, j int) bool {
			if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].CreatedAt.After(matched[j].CreatedAt)
			}
			return st.txSeq[matched[i].Reference] > st.txSeq[matched[j].Reference]
		})
		out = page(matched, int(arg.Offset), int(arg.Limit))
		return nil
	})
	return out, err
}

func (q *memQueries) ListStaleTransactions(_ context.Context, arg ListStaleTransactionsParams) ([]models.Transaction, error) {
	var out []models.Transaction
	err := q.do(func(st *memState, _ time.Time) error {
		var matched []models.Transaction
		for _, t := range st.transactions {
			if contains(arg.Kinds, t.Kind) && contains(arg.Statuses, t.Status) && t.UpdatedAt.Before(arg.Before) {
				matched = append(matched, t)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].UpdatedAt.Before(matched[j].UpdatedAt) })
		out = page(matched, 0, int(arg.Limit))
		return nil
	})
	return out, err
}

func (q *memQueries) SumOpenHoldsByCurrency(_ context.Context) ([]CurrencyTotal, error) {
	var out []CurrencyTotal
	err := q.do(func(st *memState, _ time.Time) error {
		totals := make(map[string]int64)
		for _, t := range st.transactions {
			if t.Status == "PROCESSING" && t.HoldMicros > 0 {
				totals[t.Currency] += t.HoldMicros
			}
		}
		out = sortedTotals(totals)
		return nil
	})
	return out, err
}

func (q *memQueries) CreateConversion(_ context.Context, arg CreateConversionParams) (models.Conversion, error) {
	var out models.Conversion
	err := q.do(func(st *memState, now time.Time) error {
		if _, ok := st.conversions[arg.TransactionID]; ok {
			return uniqueViolationError("conversions_transaction_id_key")
		}
		out = models.Conversion{
			ID:               arg.ID,
			TransactionID:    arg.TransactionID,
			UserID:           arg.UserID,
			FromCurrency:     arg.FromCurrency,
			ToCurrency:       arg.ToCurrency,
			FromAmountMicros: arg.FromAmountMicros,
			ToAmountMicros:   arg.ToAmountMicros,
			Rate:             arg.Rate,
			FeeMicros:        arg.FeeMicros,
			FeeCurrency:      arg.FeeCurrency,
			CreatedAt:        now,
		}
		st.conversions[arg.TransactionID] = out
		return nil
	})
	return out, err
}

func (q *memQueries) GetConversionByTransactionID(_ context.Context, transactionID uuid.UUID) (models.Conversion, error) {
	var out models.Conversion
	err := q.do(func(st *memState, _ time.Time) error {
		c, ok := st.conversions[transactionID]
		if !ok {
			return pgx.ErrNoRows
		}
		out = c
		return nil
	})
	return out, err
}

func (q *memQueries) InsertRateSample(_ context.Context, arg models.RateSample) error {
	return q.do(func(st *memState, _ time.Time) error {
		st.rates = append(st.rates, arg)
		return nil
	})
}

func (q *memQueries) GetLatestRateSample(_ context.Context, arg GetLatestRateSampleParams) (models.RateSample, error) {
	var out models.RateSample
	err := q.do(func(st *memState, _ time.Time) error {
		found := false
		for _, s := range st.rates {
			if s.FromCurrency != arg.FromCurrency || s.ToCurrency != arg.ToCurrency || s.FetchedAt.Before(arg.NotBefore) {
				continue
			}
			if !found || s.FetchedAt.After(out.FetchedAt) {
				out = s
				found = true
			}
		}
		if !found {
			return pgx.ErrNoRows
		}
		return nil
	})
	return out, err
}

func (q *memQueries) UpsertExternalWallet(_ context.Context, arg UpsertExternalWalletParams) (models.ExternalWallet, error) {
	var out models.ExternalWallet
	err := q.do(func(st *memState, now time.Time) error {
		out = models.ExternalWallet{
			UserID:    arg.UserID,
			Currency:  arg.Currency,
			Address:   arg.Address,
			Label:     arg.Label,
			Network:   arg.Network,
			UpdatedAt: now,
		}
		st.externals[ExternalWalletKey{UserID: arg.UserID, Currency: arg.Currency}] = out
		return nil
	})
	return out, err
}

func (q *memQueries) GetExternalWallet(_ context.Context, arg ExternalWalletKey) (models.ExternalWallet, error) {
	var out models.ExternalWallet
	err := q.do(func(st *memState, _ time.Time) error {
		w, ok := st.externals[arg]
		if !ok {
			return pgx.ErrNoRows
		}
		out = w
		return nil
	})
	return out, err
}

func (q *memQueries) ListExternalWallets(_ context.Context, userID uuid.UUID) ([]models.ExternalWallet, error) {
	var out []models.ExternalWallet
	err := q.do(func(st *memState, _ time.Time) error {
		for k, w := range st.externals {
			if k.UserID == userID {
				out = append(out, w)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
		return nil
	})
	return out, err
}

func (q *memQueries) InsertAuditLog(_ context.Context, arg InsertAuditLogParams) (int64, error) {
	var id int64
	err := q.do(func(st *memState, now time.Time) error {
		id = int64(len(st.audit) + 1)
		st.audit = append(st.audit, AuditLog{
			ID:         id,
			EntityType: arg.EntityType,
			EntityID:   arg.EntityID,
			ActorID:    arg.ActorID,
			Action:     arg.Action,
			PrevState:  arg.PrevState,
			NextState:  arg.NextState,
			Metadata:   append([]byte(nil), arg.Metadata...),
			CreatedAt:  now,
		})
		return nil
	})
	return id, err
}

func (q *memQueries) ListAuditLog(_ context.Context, entityType string, entityID uuid.UUID) ([]AuditLog, error) {
	var out []AuditLog
	err := q.do(func(st *memState, _ time.Time) error {
		for _, a := range st.audit {
			if a.EntityType == entityType && a.EntityID == entityID {
				out = append(out, a)
			}
		}
		return nil
	})
	return out, err
}

func (q *memQueries) GetIdempotencyKey(_ context.Context, key string) (IdempotencyKey, error) {
	var out IdempotencyKey
	err := q.do(func(st *memState, _ time.Time) error {
		k, ok := st.idempotencyKey[key]
		if !ok {
			return pgx.ErrNoRows
		}
		out = k
		return nil
	})
	return out, err
}

func (q *memQueries) ReserveIdempotencyKey(_ context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	var out IdempotencyKey
	err := q.do(func(st *memState, now time.Time) error {
		if _, ok := st.idempotencyKey[arg.IdempotencyKey]; ok {
			return pgx.ErrNoRows
		}
		out = IdempotencyKey{
			IdempotencyKey: arg.IdempotencyKey,
			RequestHash:    arg.RequestHash,
			Method:         arg.Method,
			Path:           arg.Path,
			InProgress:     true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		st.idempotencyKey[arg.IdempotencyKey] = out
		return nil
	})
	return out, err
}

func (q *memQueries) FinalizeIdempotencyKey(_ context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	var out IdempotencyKey
	err := q.do(func(st *memState, now time.Time) error {
		k, ok := st.idempotencyKey[arg.IdempotencyKey]
		if !ok || k.RequestHash != arg.RequestHash {
			return pgx.ErrNoRows
		}
		k.ResponseStatus = arg.ResponseStatus
		k.ResponseBody = append([]byte(nil), arg.ResponseBody...)
		k.ContentType = arg.ContentType
		k.InProgress = false
		k.UpdatedAt = now
		st.idempotencyKey[arg.IdempotencyKey] = k
		out = k
		return nil
	})
	return out, err
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func sortedTotals(totals map[string]int64) []CurrencyTotal {
	out := make([]CurrencyTotal, 0, len(totals))
	for currency, total := range totals {
		out = append(out, CurrencyTotal{Currency: currency, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

func page(items []models.Transaction, offset, limit int) []models.Transaction {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

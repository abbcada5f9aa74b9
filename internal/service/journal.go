package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
)

// JournalService records one entry per attempted money movement. Entries are
// keyed by a unique reference and their status is updated in place; every
// transition is also appended to audit_log.
type JournalService struct {
	store QueryStore
	audit *AuditService
	now   func() time.Time
}

func NewJournalService(store QueryStore, audit *AuditService) *JournalService {
	return &JournalService{
		store: store,
		audit: audit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type RecordParams struct {
	Reference   string
	UserID      uuid.UUID
	AmountMicro int64
	FeeMicro    int64
	HoldMicro   int64
	Currency    string
	Kind        string
	Method      string
	Status      string
	Metadata    metadata
}

// Record writes a new entry. A reused reference yields ErrDuplicateReference.
func (s *JournalService) Record(ctx context.Context, qtx repository.Querier, p RecordParams, actorID *uuid.UUID) (models.Transaction, error) {
	meta, err := p.Metadata.bytes()
	if err != nil {
		return models.Transaction{}, err
	}
	tx, err := qtx.CreateTransaction(ctx, repository.CreateTransactionParams{
		ID:           uuid.New(),
		Reference:    p.Reference,
		UserID:       p.UserID,
		AmountMicros: p.AmountMicro,
		FeeMicros:    p.FeeMicro,
		HoldMicros:   p.HoldMicro,
		Currency:     p.Currency,
		Kind:         p.Kind,
		Method:       p.Method,
		Status:       p.Status,
		Metadata:     meta,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return models.Transaction{}, fmt.Errorf("%w: %s", domain.ErrDuplicateReference, p.Reference)
		}
		return models.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if err := s.audit.Write(ctx, qtx, auditEntityTransaction, tx.ID, actorID, "created", "", tx.Status, nil); err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

// EnsureNew fails fast with ErrDuplicateReference before any other work.
// The unique constraint in Record remains the authoritative check.
func (s *JournalService) EnsureNew(ctx context.Context, reference string) error {
	_, err := s.store.Queries().GetTransactionByReference(ctx, reference)
	if err == nil {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateReference, reference)
	}
	if repository.IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("check reference: %w", err)
}

func (s *JournalService) Get(ctx context.Context, reference string) (models.Transaction, error) {
	return s.get(ctx, s.store.Queries(), reference)
}

// GetForUser hides entries owned by other users behind ErrTransactionNotFound.
func (s *JournalService) GetForUser(ctx context.Context, userID uuid.UUID, reference string) (models.Transaction, error) {
	tx, err := s.Get(ctx, reference)
	if err != nil {
		return models.Transaction{}, err
	}
	if tx.UserID != userID {
		return models.Transaction{}, domain.ErrTransactionNotFound
	}
	return tx, nil
}

// History returns every status change recorded for the entry.
func (s *JournalService) History(ctx context.Context, tx models.Transaction) ([]repository.AuditLog, error) {
	return s.audit.History(ctx, s.store.Queries(), tx.ID)
}

// Find resolves either our reference or the provider's reference.
func (s *JournalService) Find(ctx context.Context, q repository.Querier, reference string) (models.Transaction, error) {
	tx, err := s.get(ctx, q, reference)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, domain.ErrTransactionNotFound) {
		return models.Transaction{}, err
	}
	tx, err = q.GetTransactionByProviderReference(ctx, reference)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Transaction{}, domain.ErrTransactionNotFound
		}
		return models.Transaction{}, fmt.Errorf("get transaction by provider reference: %w", err)
	}
	return tx, nil
}

func (s *JournalService) get(ctx context.Context, q repository.Querier, reference string) (models.Transaction, error) {
	tx, err := q.GetTransactionByReference(ctx, reference)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.Transaction{}, domain.ErrTransactionNotFound
		}
		return models.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// Transition moves the entry conditionally on its current status.
func (s *JournalService) Transition(ctx context.Context, qtx repository.Querier, reference, next string, actorID *uuid.UUID, action string, meta metadata) (bool, error) {
	raw, err := meta.bytes()
	if err != nil {
		return false, err
	}
	return transitionTransactionState(ctx, qtx, s.audit, reference, next, actorID, action, raw)
}

// Annotate merges meta into the entry's metadata.
func (s *JournalService) Annotate(ctx context.Context, qtx repository.Querier, reference string, meta metadata) error {
	if len(meta) == 0 {
		return nil
	}
	raw, err := meta.bytes()
	if err != nil {
		return err
	}
	rows, err := qtx.MergeTransactionMetadata(ctx, repository.MergeMetadataParams{Reference: reference, Metadata: raw})
	if err != nil {
		return fmt.Errorf("merge transaction metadata: %w", err)
	}
	return requireExactlyOne(rows, "merge transaction metadata")
}

// AttachProviderReference stores the provider's id for webhook matching. It
// reports false without error when the entry already has one or another
// entry claimed providerRef first.
func (s *JournalService) AttachProviderReference(ctx context.Context, qtx repository.Querier, reference, providerRef string) (bool, error) {
	if providerRef == "" {
		return false, nil
	}
	rows, err := qtx.SetTransactionProviderReference(ctx, repository.SetProviderReferenceParams{
		Reference:         reference,
		ProviderReference: providerRef,
	})
	if err != nil {
		return false, fmt.Errorf("set provider reference: %w", err)
	}
	return rows == 1, nil
}

// CountRecent counts the user's non-failed entries of kind and method
// created inside the rolling window.
func (s *JournalService) CountRecent(ctx context.Context, userID uuid.UUID, kind, method string, window time.Duration) (int, error) {
	n, err := s.store.Queries().CountUserTransactionsSince(ctx, repository.CountUserTransactionsSinceParams{
		UserID:   userID,
		Kind:     kind,
		Method:   method,
		Statuses: []string{domain.TxStatusSuccess, domain.TxStatusProcessing},
		Since:    s.now().Add(-window),
	})
	if err != nil {
		return 0, fmt.Errorf("count recent transactions: %w", err)
	}
	return int(n), nil
}

type ListFilter struct {
	Kind   string
	Status string
	Limit  int32
	Offset int32
}

func (s *JournalService) List(ctx context.Context, userID uuid.UUID, f ListFilter) ([]models.Transaction, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, err := s.store.Queries().ListUserTransactions(ctx, repository.ListUserTransactionsParams{
		UserID: userID,
		Kind:   f.Kind,
		Status: f.Status,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return items, nil
}

// Stale lists entries of the given kinds stuck in status since before cutoff.
func (s *JournalService) Stale(ctx context.Context, kinds []string, status string, olderThan time.Duration, limit int32) ([]models.Transaction, error) {
	items, err := s.store.Queries().ListStaleTransactions(ctx, repository.ListStaleTransactionsParams{
		Kinds:    kinds,
		Statuses: []string{status},
		Before:   s.now().Add(-olderThan),
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list stale transactions: %w", err)
	}
	return items, nil
}

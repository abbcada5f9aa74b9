package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
)

const auditEntityTransaction = "transaction"

// AuditService writes immutable audit trail entries.
type AuditService struct{}

func NewAuditService() *AuditService {
	return &AuditService{}
}

// Write stores a single immutable audit record inside the caller's transaction.
func (s *AuditService) Write(ctx context.Context, qtx repository.Querier, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, meta []byte) error {
	if _, err := qtx.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  textParam(prevState),
		NextState:  textParam(nextState),
		Metadata:   meta,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// History returns the audit trail of one journal entry, oldest first.
func (s *AuditService) History(ctx context.Context, q repository.Querier, transactionID uuid.UUID) ([]repository.AuditLog, error) {
	rows, err := q.ListAuditLog(ctx, auditEntityTransaction, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return rows, nil
}

func textParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

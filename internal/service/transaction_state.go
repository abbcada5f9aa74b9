package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
)

var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusProcessing: {},
		domain.TxStatusSuccess:    {},
		domain.TxStatusFailed:     {},
	},
	domain.TxStatusProcessing: {
		domain.TxStatusSuccess: {},
		domain.TxStatusFailed:  {},
	},
	domain.TxStatusSuccess: {},
	domain.TxStatusFailed:  {},
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// transitionTransactionState moves an entry to nextState with a conditional
// update keyed on the status it was read in. It reports changed=false when the
// entry is already in nextState, and ErrInvalidTransition when the move is not
// allowed or another finalizer won the race.
func transitionTransactionState(ctx context.Context, qtx repository.Querier, audit *AuditService, reference string, nextState string, actorID *uuid.UUID, action string, meta []byte) (bool, error) {
	current, err := qtx.GetTransactionByReference(ctx, reference)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, domain.ErrTransactionNotFound
		}
		return false, fmt.Errorf("get current transaction state: %w", err)
	}

	if current.Status == nextState {
		return false, nil
	}
	if !canTransition(current.Status, nextState) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, nextState)
	}

	rows, err := qtx.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
		Reference:    reference,
		Status:       nextState,
		FromStatuses: []string{current.Status},
	})
	if err != nil {
		return false, fmt.Errorf("update transaction state: %w", err)
	}
	if rows == 0 {
		return false, fmt.Errorf("%w: %s left %s concurrently", domain.ErrInvalidTransition, reference, current.Status)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return false, err
	}

	if err := audit.Write(ctx, qtx, auditEntityTransaction, current.ID, actorID, action, current.Status, nextState, meta); err != nil {
		return false, err
	}
	return true, nil
}

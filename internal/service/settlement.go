package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettleResult describes what a settlement did to the journal.
type SettleResult string

const (
	SettleApplied  SettleResult = "applied"
	SettleNoop     SettleResult = "noop"
	SettleConflict SettleResult = "conflict"
	SettleIgnored  SettleResult = "ignored"
)

// Settlement sources recorded in audit actions.
const (
	SourceWebhook      = "webhook"
	SourceDisbursement = "disbursement"
	SourceSweep        = "sweep"
	SourceExpiry       = "expiry"
	SourceOperator     = "operator"
)

// Settlement is a final provider answer for one journal entry.
type Settlement struct {
	Outcome           string
	ProviderReference string
	Reason            string
	ConfirmedAmount   *domain.Money
	ActorID           *uuid.UUID
	Source            string
}

// Settler applies a provider outcome to a journal entry together with its
// balance effect. The orchestrators, the webhook, the sweep and operators all
// finalize through it, and the conditional transition guarantees that only
// the first of them moves money.
type Settler struct {
	ledger  *LedgerService
	journal *JournalService
	audit   *AuditService
}

func NewSettler(ledger *LedgerService, journal *JournalService, audit *AuditService) *Settler {
	return &Settler{ledger: ledger, journal: journal, audit: audit}
}

// Settle must run inside the caller's database transaction.
func (s *Settler) Settle(ctx context.Context, qtx repository.Querier, reference string, st Settlement) (SettleResult, error) {
	if st.Outcome != domain.OutcomeSuccess && st.Outcome != domain.OutcomeFailed {
		return SettleIgnored, nil
	}
	tx, err := s.journal.get(ctx, qtx, reference)
	if err != nil {
		return "", err
	}

	target := domain.TxStatusFailed
	if st.Outcome == domain.OutcomeSuccess {
		target = domain.TxStatusSuccess
	}
	if domain.IsTerminal(tx.Status) {
		if tx.Status == target {
			return SettleNoop, nil
		}
		return s.conflict(ctx, qtx, tx, st, "entry already final")
	}

	var result SettleResult
	switch tx.Kind {
	case domain.KindDeposit:
		result, err = s.settleDeposit(ctx, qtx, tx, st)
	case domain.KindWithdrawal, domain.KindTransfer:
		result, err = s.settleWithdrawal(ctx, qtx, tx, st)
	case domain.KindConversion:
		result, err = s.settleConversion(ctx, qtx, tx, st)
	default:
		result = SettleIgnored
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		return s.afterLostRace(ctx, qtx, reference, target, st, err)
	}
	return result, err
}

// afterLostRace classifies a settlement whose conditional transition lost to
// a concurrent finalizer. Nothing was changed by the losing attempt.
func (s *Settler) afterLostRace(ctx context.Context, qtx repository.Querier, reference, target string, st Settlement, cause error) (SettleResult, error) {
	tx, err := s.journal.get(ctx, qtx, reference)
	if err != nil {
		return "", err
	}
	if !domain.IsTerminal(tx.Status) {
		return "", cause
	}
	if tx.Status == target {
		return SettleNoop, nil
	}
	return s.conflict(ctx, qtx, tx, st, "another finalizer settled the entry first")
}

// settleConversion only fails conversions abandoned before their legs moved;
// both legs and the success transition commit together, so a processing
// conversion holds no money. Provider answers never apply to conversions.
func (s *Settler) settleConversion(ctx context.Context, qtx repository.Querier, tx models.Transaction, st Settlement) (SettleResult, error) {
	if st.Source == SourceWebhook || st.Source == SourceDisbursement {
		zap.L().Warn("settlement ignored for non-provider entry",
			zap.String("reference", tx.Reference),
			zap.String("kind", tx.Kind),
			zap.String("source", st.Source),
		)
		return SettleIgnored, nil
	}
	if st.Outcome == domain.OutcomeSuccess {
		return s.conflict(ctx, qtx, tx, st, "a conversion cannot be completed by settlement")
	}
	changed, err := s.journal.Transition(ctx, qtx, tx.Reference, domain.TxStatusFailed, st.ActorID, "settled_failed_"+st.Source, metadata{domain.MetaFailureReason: st.Reason})
	if err != nil {
		return "", err
	}
	if !changed {
		return SettleNoop, nil
	}
	if err := s.journal.Annotate(ctx, qtx, tx.Reference, metadata{domain.MetaFailureReason: st.Reason}); err != nil {
		return "", err
	}
	return SettleApplied, nil
}

func (s *Settler) settleDeposit(ctx context.Context, qtx repository.Querier, tx models.Transaction, st Settlement) (SettleResult, error) {
	action := "settled_" + st.Outcome + "_" + st.Source
	if st.Outcome == domain.OutcomeFailed {
		if _, err := s.journal.Transition(ctx, qtx, tx.Reference, domain.TxStatusFailed, st.ActorID, action, metadata{domain.MetaFailureReason: st.Reason}); err != nil {
			return "", err
		}
		if err := s.recordProviderOutcome(ctx, qtx, tx, st); err != nil {
			return "", err
		}
		return SettleApplied, nil
	}

	amount := tx.AmountMicros
	meta := metadata{}
	if st.ConfirmedAmount != nil {
		if st.ConfirmedAmount.Currency != "" && st.ConfirmedAmount.Currency != tx.Currency {
			return s.conflict(ctx, qtx, tx, st, "confirmed currency "+st.ConfirmedAmount.Currency+" differs from "+tx.Currency)
		}
		if st.ConfirmedAmount.Amount <= 0 {
			return s.conflict(ctx, qtx, tx, st, "confirmed amount is not positive")
		}
		if st.ConfirmedAmount.Amount != tx.AmountMicros {
			amount = st.ConfirmedAmount.Amount
			meta["requested_amount_micros"] = tx.AmountMicros
			meta["confirmed_amount_micros"] = amount
		}
	}

	changed, err := s.journal.Transition(ctx, qtx, tx.Reference, domain.TxStatusSuccess, st.ActorID, action, meta)
	if err != nil {
		return "", err
	}
	if !changed {
		return SettleNoop, nil
	}
	if _, err := s.ledger.Mutate(ctx, qtx, tx.UserID, tx.Currency, amount, domain.DirectionAdd); err != nil {
		return "", fmt.Errorf("credit deposit %s: %w", tx.Reference, err)
	}
	if err := s.journal.Annotate(ctx, qtx, tx.Reference, meta); err != nil {
		return "", err
	}
	if err := s.recordProviderOutcome(ctx, qtx, tx, st); err != nil {
		return "", err
	}
	return SettleApplied, nil
}

func (s *Settler) settleWithdrawal(ctx context.Context, qtx repository.Querier, tx models.Transaction, st Settlement) (SettleResult, error) {
	action := "settled_" + st.Outcome + "_" + st.Source

	if tx.Status == domain.TxStatusPending {
		// No hold exists and the provider was never called for this entry.
		if st.Outcome == domain.OutcomeSuccess {
			return s.conflict(ctx, qtx, tx, st, "success reported before disbursement was requested")
		}
		if _, err := s.journal.Transition(ctx, qtx, tx.Reference, domain.TxStatusFailed, st.ActorID, action, metadata{domain.MetaFailureReason: st.Reason}); err != nil {
			return "", err
		}
		return SettleApplied, nil
	}

	if st.Outcome == domain.OutcomeSuccess {
		changed, err := s.journal.Transition(ctx, qtx, tx.Reference, domain.TxStatusSuccess, st.ActorID, action, nil)
		if err != nil {
			return "", err
		}
		if !changed {
			return SettleNoop, nil
		}
		if _, err := s.ledger.Capture(ctx, qtx, tx.UserID, tx.Currency, tx.HoldMicros); err != nil {
			return "", fmt.Errorf("capture hold for %s: %w", tx.Reference, err)
		}
		if err := s.recordProviderOutcome(ctx, qtx, tx, st); err != nil {
			return "", err
		}
		return SettleApplied, nil
	}

	changed, err := s.journal.Transition(ctx, qtx, tx.Reference, domain.TxStatusFailed, st.ActorID, action, metadata{domain.MetaFailureReason: st.Reason})
	if err != nil {
		return "", err
	}
	if !changed {
		return SettleNoop, nil
	}
	if err := s.ledger.Release(ctx, qtx, tx.UserID, tx.Currency, tx.HoldMicros); err != nil {
		return "", fmt.Errorf("release hold for %s: %w", tx.Reference, err)
	}
	if err := s.recordProviderOutcome(ctx, qtx, tx, st); err != nil {
		return "", err
	}
	return SettleApplied, nil
}

// recordProviderOutcome runs after the balance effect. A provider reference
// that cannot be attached is an anomaly to record, never a reason to undo it.
func (s *Settler) recordProviderOutcome(ctx context.Context, qtx repository.Querier, tx models.Transaction, st Settlement) error {
	if tx.ProviderReference == nil && st.ProviderReference != "" && st.ProviderReference != tx.Reference {
		attached, err := s.journal.AttachProviderReference(ctx, qtx, tx.Reference, st.ProviderReference)
		if err != nil {
			return err
		}
		if !attached {
			observability.IncrementReconciliation("provider_reference_conflict")
			zap.L().Error("provider reference already belongs to another entry",
				zap.Bool("anomaly", true),
				zap.String("reference", tx.Reference),
				zap.String("provider_reference", st.ProviderReference),
				zap.String("source", st.Source),
			)
			if err := s.journal.Annotate(ctx, qtx, tx.Reference, metadata{domain.MetaProviderReferenceConflict: st.ProviderReference}); err != nil {
				return err
			}
		}
	}
	if st.Outcome == domain.OutcomeFailed && st.Reason != "" {
		return s.journal.Annotate(ctx, qtx, tx.Reference, metadata{domain.MetaFailureReason: st.Reason})
	}
	return nil
}

// conflict records an anomaly without touching balances or status.
func (s *Settler) conflict(ctx context.Context, qtx repository.Querier, tx models.Transaction, st Settlement, detail string) (SettleResult, error) {
	observability.IncrementReconciliation(string(SettleConflict))
	zap.L().Error("reconciliation conflict",
		zap.Bool("anomaly", true),
		zap.Error(domain.ErrReconciliationConflict),
		zap.String("reference", tx.Reference),
		zap.String("status", tx.Status),
		zap.String("outcome", st.Outcome),
		zap.String("source", st.Source),
		zap.String("detail", detail),
	)
	meta, err := metadata{"outcome": st.Outcome, "source": st.Source, "detail": detail}.bytes()
	if err != nil {
		return "", err
	}
	if err := s.audit.Write(ctx, qtx, auditEntityTransaction, tx.ID, st.ActorID, "reconciliation_conflict", tx.Status, tx.Status, meta); err != nil {
		return "", err
	}
	return SettleConflict, nil
}

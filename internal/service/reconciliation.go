package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"go.uber.org/zap"
)

// SweepReport summarises one pass over stale entries.
type SweepReport struct {
	Scanned   int
	Applied   int
	Pending   int
	Conflicts int
	Errors    int
	Abandoned int
}

const abandonedReason = "abandoned before completion"


// ReconciliationService resolves entries left processing by ambiguous
// provider calls and verifies the hold invariant.
type ReconciliationService struct {
	store     QueryStore
	journal   *JournalService
	webhooks  *WebhookService
	disburser gateway.Disburser
	timeout   time.Duration
}

func NewReconciliationService(store QueryStore, journal *JournalService, webhooks *WebhookService, disburser gateway.Disburser) *ReconciliationService {
	return &ReconciliationService{
		store:     store,
		journal:   journal,
		webhooks:  webhooks,
		disburser: disburser,
		timeout:   10 * time.Second,
	}
}

// WithStatusTimeout bounds each provider status poll.
func (s *ReconciliationService) WithStatusTimeout(timeout time.Duration) *ReconciliationService {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// ResolveStale polls the provider for outbound entries processing longer
// than olderThan and settles the final answers.
func (s *ReconciliationService) ResolveStale(ctx context.Context, olderThan time.Duration, limit int32) (SweepReport, error) {
	stale, err := s.journal.Stale(ctx, []string{domain.KindWithdrawal, domain.KindTransfer}, domain.TxStatusProcessing, olderThan, limit)
	if err != nil {
		return SweepReport{}, err
	}
	observability.SetStaleProcessing(len(stale))

	report := SweepReport{Scanned: len(stale)}
	for _, tx := range stale {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logger := zap.L().With(zap.String("reference", tx.Reference), zap.String("user_id", tx.UserID.String()))

		statusCtx, cancel := context.WithTimeout(ctx, s.timeout)
		settlement, err := s.disburser.Status(statusCtx, tx.Reference)
		cancel()
		if err != nil {
			report.Errors++
			logger.Warn("provider status poll failed", zap.Error(err))
			continue
		}
		if settlement.Outcome != domain.OutcomeSuccess && settlement.Outcome != domain.OutcomeFailed {
			report.Pending++
			continue
		}

		res, err := s.webhooks.Reconcile(ctx, tx.Reference, settlement.Outcome, ReconcileDetails{
			ProviderReference: settlement.ProviderReference,
			Reason:            settlement.Reason,
			Source:            SourceSweep,
		})
		if err != nil {
			report.Errors++
			logger.Error("failed to settle stale entry", zap.Error(err))
			continue
		}
		switch res.Result {
		case SettleApplied:
			report.Applied++
		case SettleConflict:
			report.Conflicts++
		}
	}
	if err := s.failAbandoned(ctx, olderThan, limit, &report); err != nil {
		return report, err
	}
	if report.Scanned > 0 {
		zap.L().Info("reconciliation sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("applied", report.Applied),
			zap.Int("pending", report.Pending),
			zap.Int("conflicts", report.Conflicts),
			zap.Int("errors", report.Errors),
			zap.Int("abandoned", report.Abandoned),
		)
	}
	return report, nil
}

// failAbandoned fails entries whose request stopped before any money moved:
// outbound entries still pending (no hold, provider never called) and
// conversions still processing (legs commit with the success transition).
func (s *ReconciliationService) failAbandoned(ctx context.Context, olderThan time.Duration, limit int32, report *SweepReport) error {
	pending, err := s.journal.Stale(ctx, []string{domain.KindWithdrawal, domain.KindTransfer}, domain.TxStatusPending, olderThan, limit)
	if err != nil {
		return err
	}
	conversions, err := s.journal.Stale(ctx, []string{domain.KindConversion}, domain.TxStatusProcessing, olderThan, limit)
	if err != nil {
		return err
	}

	for _, tx := range append(pending, conversions...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Scanned++
		res, err := s.webhooks.Reconcile(ctx, tx.Reference, domain.OutcomeFailed, ReconcileDetails{
			Reason: abandonedReason,
			Source: SourceSweep,
		})
		if err != nil {
			report.Errors++
			zap.L().Error("failed to close abandoned entry", zap.String("reference", tx.Reference), zap.Error(err))
			continue
		}
		switch res.Result {
		case SettleApplied:
			report.Abandoned++
			zap.L().Warn("abandoned entry failed",
				zap.String("reference", tx.Reference),
				zap.String("kind", tx.Kind),
				zap.String("status", tx.Status),
			)
		case SettleConflict:
			report.Conflicts++
		}
	}
	return nil
}

// Resolve lets an operator settle a stuck entry. The operator is recorded as
// the audit actor.
func (s *ReconciliationService) Resolve(ctx context.Context, operator domain.Identity, reference, outcome, reason string) (WebhookResult, error) {
	if operator.Role != domain.RoleAdmin {
		return WebhookResult{}, fmt.Errorf("%w: admin role required", domain.ErrUnauthorized)
	}
	if outcome != domain.OutcomeSuccess && outcome != domain.OutcomeFailed {
		return WebhookResult{}, fmt.Errorf("outcome must be %q or %q", domain.OutcomeSuccess, domain.OutcomeFailed)
	}
	if _, err := s.journal.Get(ctx, reference); err != nil {
		return WebhookResult{}, err
	}
	actor := operator.UserID
	return s.webhooks.Reconcile(ctx, reference, outcome, ReconcileDetails{
		Reason:  reason,
		ActorID: &actor,
		Source:  SourceOperator,
	})
}

// CheckHoldInvariant compares held balances with the holds of processing
// entries per currency. Imbalances are reported, never repaired.
func (s *ReconciliationService) CheckHoldInvariant(ctx context.Context) (map[string]int64, error) {
	q := s.store.Queries()
	held, err := q.SumHeldByCurrency(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum held balances: %w", err)
	}
	open, err := q.SumOpenHoldsByCurrency(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum open holds: %w", err)
	}

	diff := make(map[string]int64)
	for _, row := range held {
		diff[row.Currency] += row.Total
	}
	for _, row := range open {
		diff[row.Currency] -= row.Total
	}
	imbalances := make(map[string]int64)
	for currency, net := range diff {
		if net == 0 {
			continue
		}
		imbalances[currency] = net
		observability.IncrementHoldImbalance(currency)
		zap.L().Error("CRITICAL: hold imbalance detected",
			zap.Bool("anomaly", true),
			zap.String("currency", currency),
			zap.Int64("net_micros", net),
		)
	}
	if len(imbalances) == 0 {
		zap.L().Debug("holds balanced")
	}
	return imbalances, nil
}

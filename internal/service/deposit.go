package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"go.uber.org/zap"
)

type DepositRequest struct {
	Reference string
	Amount    domain.Money
	Method    string
}

type DepositResult struct {
	Reference string       `json:"reference"`
	Status    string       `json:"status"`
	Amount    domain.Money `json:"-"`
	Method    string       `json:"method"`
}

// DepositService opens pending deposits. Wallets are credited only when the
// provider confirms through the webhook.
type DepositService struct {
	store   QueryStore
	ledger  *LedgerService
	journal *JournalService
	settler *Settler
}

func NewDepositService(store QueryStore, ledger *LedgerService, journal *JournalService, settler *Settler) *DepositService {
	return &DepositService{store: store, ledger: ledger, journal: journal, settler: settler}
}

// Initiate records a pending deposit and returns its reference for checkout.
func (s *DepositService) Initiate(ctx context.Context, identity domain.Identity, req DepositRequest) (DepositResult, error) {
	if err := identity.Require(domain.GateEmail); err != nil {
		return DepositResult{}, err
	}
	currency, err := domain.NormalizeCurrency(req.Amount.Currency)
	if err != nil {
		return DepositResult{}, err
	}
	amount := domain.NewMoney(req.Amount.Amount, currency)
	if !amount.IsPositive() {
		return DepositResult{}, domain.ErrInvalidAmount
	}
	method := req.Method
	if method == "" {
		method = domain.MethodCard
	}
	if method != domain.MethodCard && method != domain.MethodBankTransfer {
		return DepositResult{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedMethod, method)
	}
	if !domain.IsFiat(currency) {
		return DepositResult{}, fmt.Errorf("%w: deposits are fiat only", domain.ErrUnsupportedCurrency)
	}
	if _, err := s.ledger.GetBalance(ctx, identity.UserID, currency); err != nil {
		return DepositResult{}, err
	}

	reference := referenceOrNew(req.Reference, domain.RefPrefixDeposit)
	userID := identity.UserID
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		_, err := s.journal.Record(ctx, qtx, RecordParams{
			Reference:   reference,
			UserID:      userID,
			AmountMicro: amount.Amount,
			Currency:    currency,
			Kind:        domain.KindDeposit,
			Method:      method,
			Status:      domain.TxStatusPending,
		}, &userID)
		return err
	})
	if err != nil {
		return DepositResult{}, err
	}

	zap.L().Info("deposit initiated",
		zap.String("reference", reference),
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()),
		zap.String("method", method),
	)
	return DepositResult{Reference: reference, Status: domain.TxStatusPending, Amount: amount, Method: method}, nil
}

// ExpirePending fails pending deposits older than olderThan and returns how
// many it moved. A success webhook arriving later is logged as a conflict.
func (s *DepositService) ExpirePending(ctx context.Context, olderThan time.Duration, limit int32) (int, error) {
	stale, err := s.journal.Stale(ctx, []string{domain.KindDeposit}, domain.TxStatusPending, olderThan, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, tx := range stale {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		var result SettleResult
		err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			var err error
			result, err = s.settler.Settle(ctx, qtx, tx.Reference, Settlement{
				Outcome: domain.OutcomeFailed,
				Reason:  "expired",
				Source:  SourceExpiry,
			})
			return err
		})
		if err != nil {
			zap.L().Error("failed to expire deposit", zap.String("reference", tx.Reference), zap.Error(err))
			continue
		}
		if result == SettleApplied {
			expired++
		}
	}
	return expired, nil
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/fees"
	"github.com/ayo6706/wallet-ledger/internal/gateway"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"go.uber.org/zap"
)

// BankRecipient is the destination of a fiat payout.
type BankRecipient struct {
	BankCode      string
	AccountNumber string
	AccountName   string
}

func (r BankRecipient) validate() error {
	if strings.TrimSpace(r.BankCode) == "" || strings.TrimSpace(r.AccountNumber) == "" {
		return fmt.Errorf("%w: bank code and account number are required", domain.ErrInvalidRecipient)
	}
	for _, c := range r.AccountNumber {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: account number must be numeric", domain.ErrInvalidRecipient)
		}
	}
	return nil
}

func (r BankRecipient) destination() gateway.Destination {
	return gateway.Destination{
		Kind:          gateway.DestinationBank,
		BankCode:      strings.TrimSpace(r.BankCode),
		AccountNumber: strings.TrimSpace(r.AccountNumber),
		AccountName:   strings.TrimSpace(r.AccountName),
	}
}

type TransferRequest struct {
	Reference string
	Amount    domain.Money
	Recipient BankRecipient
	Narration string
}

type WithdrawRequest struct {
	Reference string
	Amount    domain.Money
	Recipient BankRecipient
	Narration string
}

type TransferResult struct {
	Reference         string       `json:"reference"`
	Status            string       `json:"status"`
	Amount            domain.Money `json:"-"`
	Fee               domain.Money `json:"-"`
	ProviderReference string       `json:"provider_reference,omitempty"`
}

// TransferService orchestrates outbound money movements: NGN bank transfers
// and USD/crypto withdrawals. Funds are held before the provider call,
// captured after acceptance and released after rejection. An ambiguous
// provider answer leaves the entry processing for the webhook or the sweep.
type TransferService struct {
	store     QueryStore
	ledger    *LedgerService
	journal   *JournalService
	settler   *Settler
	fees      *fees.Engine
	disburser gateway.Disburser
	notifier  *notify.Dispatcher
	timeout   time.Duration
	feeWindow time.Duration
}

func NewTransferService(store QueryStore, ledger *LedgerService, journal *JournalService, settler *Settler, engine *fees.Engine, disburser gateway.Disburser, notifier *notify.Dispatcher) *TransferService {
	return &TransferService{
		store:     store,
		ledger:    ledger,
		journal:   journal,
		settler:   settler,
		fees:      engine,
		disburser: disburser,
		notifier:  notifier,
		timeout:   15 * time.Second,
		feeWindow: 7 * 24 * time.Hour,
	}
}

// WithDisbursementTimeout bounds each provider call.
func (s *TransferService) WithDisbursementTimeout(timeout time.Duration) *TransferService {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

// WithFeeWindow sets the rolling window used for free-transfer quotas.
func (s *TransferService) WithFeeWindow(window time.Duration) *TransferService {
	if window > 0 {
		s.feeWindow = window
	}
	return s
}

// Transfer sends NGN to a bank account.
func (s *TransferService) Transfer(ctx context.Context, identity domain.Identity, req TransferRequest) (TransferResult, error) {
	if err := identity.Require(domain.GateEmail, domain.GateProfile); err != nil {
		return TransferResult{}, err
	}
	if !req.Amount.IsPositive() {
		return TransferResult{}, domain.ErrInvalidAmount
	}
	if req.Amount.Currency != domain.CurrencyNGN {
		return TransferResult{}, fmt.Errorf("%w: bank transfers are NGN only", domain.ErrUnsupportedCurrency)
	}
	if err := req.Recipient.validate(); err != nil {
		return TransferResult{}, err
	}

	usage, err := s.journal.CountRecent(ctx, identity.UserID, domain.KindTransfer, domain.MethodBankTransfer, s.feeWindow)
	if err != nil {
		return TransferResult{}, err
	}
	fee, err := s.fees.Compute(fees.KindBankTransfer, req.Amount, fees.Usage{RecentCount: usage})
	if err != nil {
		return TransferResult{}, err
	}

	return s.execute(ctx, outbound{
		identity:     identity,
		reference:    referenceOrNew(req.Reference, domain.RefPrefixTransfer),
		kind:         domain.KindTransfer,
		method:       domain.MethodBankTransfer,
		feeKind:      fees.KindBankTransfer,
		amount:       req.Amount,
		fee:          fee,
		destination:  req.Recipient.destination(),
		narration:    req.Narration,
		successEvent: notify.EventTransferSucceeded,
		failedEvent:  notify.EventTransferFailed,
	})
}

// Withdraw sends USD to a bank account or crypto to the user's saved
// external wallet for that coin.
func (s *TransferService) Withdraw(ctx context.Context, identity domain.Identity, req WithdrawRequest) (TransferResult, error) {
	if !req.Amount.IsPositive() {
		return TransferResult{}, domain.ErrInvalidAmount
	}
	kind, err := fees.WithdrawalKind(req.Amount.Currency)
	if err != nil {
		return TransferResult{}, err
	}

	o := outbound{
		identity:     identity,
		reference:    referenceOrNew(req.Reference, domain.RefPrefixWithdrawal),
		kind:         domain.KindWithdrawal,
		feeKind:      kind,
		amount:       req.Amount,
		narration:    req.Narration,
		successEvent: notify.EventWithdrawalSucceeded,
		failedEvent:  notify.EventWithdrawalFailed,
	}

	switch kind {
	case fees.KindUSDWithdrawal:
		if err := identity.Require(domain.GateEmail, domain.GateProfile); err != nil {
			return TransferResult{}, err
		}
		if err := req.Recipient.validate(); err != nil {
			return TransferResult{}, err
		}
		o.method = domain.MethodBankTransfer
		o.destination = req.Recipient.destination()
	case fees.KindCryptoWithdrawal:
		if err := identity.Require(domain.GateEmail, domain.GateKYC); err != nil {
			return TransferResult{}, err
		}
		ext, err := s.store.Queries().GetExternalWallet(ctx, repository.ExternalWalletKey{UserID: identity.UserID, Currency: req.Amount.Currency})
		if err != nil {
			if repository.IsNotFound(err) {
				return TransferResult{}, fmt.Errorf("%w: %s", domain.ErrExternalWalletNotFound, req.Amount.Currency)
			}
			return TransferResult{}, fmt.Errorf("get external wallet: %w", err)
		}
		o.method = domain.MethodCryptoTransfer
		o.destination = gateway.Destination{Kind: gateway.DestinationCrypto, Address: ext.Address, Network: ext.Network}
	default:
		return TransferResult{}, fmt.Errorf("%w: use a bank transfer for %s", domain.ErrUnsupportedCurrency, req.Amount.Currency)
	}

	fee, err := s.fees.Compute(kind, req.Amount, fees.Usage{})
	if err != nil {
		return TransferResult{}, err
	}
	o.fee = fee
	return s.execute(ctx, o)
}

type outbound struct {
	identity     domain.Identity
	reference    string
	kind         string
	method       string
	feeKind      fees.Kind
	amount       domain.Money
	fee          domain.Money
	destination  gateway.Destination
	narration    string
	successEvent string
	failedEvent  string
}

func (s *TransferService) execute(ctx context.Context, o outbound) (TransferResult, error) {
	userID := o.identity.UserID
	total := o.amount.Amount + o.fee.Amount
	logger := zap.L().With(
		zap.String("reference", o.reference),
		zap.String("user_id", userID.String()),
		zap.String("currency", o.amount.Currency),
	)

	if err := s.journal.EnsureNew(ctx, o.reference); err != nil {
		return TransferResult{}, err
	}
	available, err := s.ledger.Available(ctx, userID, o.amount.Currency)
	if err != nil {
		return TransferResult{}, err
	}
	if available < total {
		return TransferResult{}, fmt.Errorf("%w: need %s, available %s", domain.ErrInsufficientFunds,
			domain.NewMoney(total, o.amount.Currency), domain.NewMoney(available, o.amount.Currency))
	}

	// The entry is durable before funds are touched or the provider is called.
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		_, err := s.journal.Record(ctx, qtx, RecordParams{
			Reference:   o.reference,
			UserID:      userID,
			AmountMicro: o.amount.Amount,
			FeeMicro:    o.fee.Amount,
			HoldMicro:   total,
			Currency:    o.amount.Currency,
			Kind:        o.kind,
			Method:      o.method,
			Status:      domain.TxStatusPending,
			Metadata: metadata{
				"fee_kind":    string(o.feeKind),
				"destination": o.destination,
				"narration":   o.narration,
			},
		}, &userID)
		return err
	})
	if err != nil {
		return TransferResult{}, err
	}
	// From here the entry must reach a final state even if the caller goes
	// away. The provider call stays bounded by the disbursement timeout.
	ctx = context.WithoutCancel(ctx)

	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if err := s.ledger.Hold(ctx, qtx, userID, o.amount.Currency, total); err != nil {
			return err
		}
		_, err := s.journal.Transition(ctx, qtx, o.reference, domain.TxStatusProcessing, &userID, "funds_held", metadata{domain.MetaHoldAmount: total})
		return err
	})
	if err != nil {
		s.failPending(ctx, o, err)
		return TransferResult{}, err
	}

	disburseCtx, cancel := context.WithTimeout(ctx, s.timeout)
	decision, callErr := s.disburser.Disburse(disburseCtx, gateway.DisbursementRequest{
		Reference:   o.reference,
		AmountMicro: o.amount.Amount,
		Currency:    o.amount.Currency,
		Destination: o.destination,
		Narration:   o.narration,
	})
	cancel()

	result := TransferResult{Reference: o.reference, Amount: o.amount, Fee: o.fee}

	if callErr != nil {
		observability.IncrementDisbursement("ambiguous")
		logger.Warn("disbursement outcome unknown, leaving entry processing", zap.Error(callErr))
		result.Status = domain.TxStatusProcessing
		s.notify(o, notify.EventTransferProcessing, domain.TxStatusProcessing, "")
		return result, nil
	}

	if !decision.Accepted() {
		observability.IncrementDisbursement("rejected")
		err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
			_, err := s.settler.Settle(ctx, qtx, o.reference, Settlement{
				Outcome: domain.OutcomeFailed,
				Reason:  decision.Reason,
				Source:  SourceDisbursement,
			})
			return err
		})
		if err != nil {
			logger.Error("failed to release hold after provider rejection", zap.Error(err))
			return s.current(ctx, result)
		}
		s.notify(o, o.failedEvent, domain.TxStatusFailed, decision.Reason)
		return TransferResult{}, fmt.Errorf("%w: %s (reference %s)", domain.ErrProviderRejected, decision.Reason, o.reference)
	}

	observability.IncrementDisbursement("accepted")
	result.ProviderReference = decision.ProviderReference
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		_, err := s.settler.Settle(ctx, qtx, o.reference, Settlement{
			Outcome:           domain.OutcomeSuccess,
			ProviderReference: decision.ProviderReference,
			Source:            SourceDisbursement,
		})
		return err
	})
	if err != nil {
		s.flagForReconciliation(ctx, o.reference, decision.ProviderReference, err)
		return s.current(ctx, result)
	}

	result, err = s.current(ctx, result)
	if err != nil {
		return result, err
	}
	if result.Status == domain.TxStatusSuccess {
		s.notify(o, o.successEvent, result.Status, "")
	}
	return result, nil
}

// failPending marks an entry failed when funds could not be held. Nothing has
// been sent, so no balance change is needed.
func (s *TransferService) failPending(ctx context.Context, o outbound, cause error) {
	userID := o.identity.UserID
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		_, err := s.journal.Transition(ctx, qtx, o.reference, domain.TxStatusFailed, &userID, "hold_failed", metadata{domain.MetaFailureReason: cause.Error()})
		if err != nil {
			return err
		}
		return s.journal.Annotate(ctx, qtx, o.reference, metadata{domain.MetaFailureReason: cause.Error()})
	})
	if err != nil {
		zap.L().Error("failed to mark entry failed after hold error",
			zap.String("reference", o.reference),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

// flagForReconciliation handles the one fatal inconsistency: the provider
// accepted the payout but the local capture failed. The entry stays
// processing so the sweep or the webhook can finish it.
func (s *TransferService) flagForReconciliation(ctx context.Context, reference, providerRef string, cause error) {
	observability.IncrementNeedsReconciliation()
	zap.L().Error("provider accepted disbursement but local debit failed",
		zap.String("reference", reference),
		zap.String("provider_reference", providerRef),
		zap.Error(cause),
	)
	ctx = context.WithoutCancel(ctx)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		return s.journal.Annotate(ctx, qtx, reference, metadata{
			domain.MetaNeedsReconciliation: true,
			"capture_error":                cause.Error(),
		})
	})
	if err != nil {
		zap.L().Error("failed to flag entry for reconciliation", zap.String("reference", reference), zap.Error(err))
	}

	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		_, err := s.journal.AttachProviderReference(ctx, qtx, reference, providerRef)
		return err
	})
	if err != nil {
		zap.L().Error("failed to attach provider reference", zap.String("reference", reference), zap.Error(err))
	}
}

func (s *TransferService) current(ctx context.Context, result TransferResult) (TransferResult, error) {
	tx, err := s.journal.Get(ctx, result.Reference)
	if err != nil {
		return result, err
	}
	result.Status = tx.Status
	if tx.ProviderReference != nil {
		result.ProviderReference = *tx.ProviderReference
	}
	return result, nil
}

func (s *TransferService) notify(o outbound, event, status, reason string) {
	s.notifier.Dispatch(notify.Event{
		Type:      event,
		UserID:    o.identity.UserID,
		Reference: o.reference,
		Amount:    domain.FormatMicros(o.amount.Amount),
		Currency:  o.amount.Currency,
		Status:    status,
		Reason:    reason,
	})
}

func referenceOrNew(reference, prefix string) string {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.NewReference(prefix)
	}
	return reference
}

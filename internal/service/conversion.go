package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/fees"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/rates"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ConvertRequest struct {
	Reference  string
	Amount     domain.Money
	ToCurrency string
}

type ConversionResult struct {
	Reference    string          `json:"reference"`
	Status       string          `json:"status"`
	FromAmount   domain.Money    `json:"-"`
	ToAmount     domain.Money    `json:"-"`
	Rate         decimal.Decimal `json:"rate"`
	Fee          domain.Money    `json:"-"`
	FeeCharged   domain.Money    `json:"-"`
	FeeShortfall bool            `json:"fee_shortfall"`
}

// ConversionService exchanges one wallet currency for another inside a
// single database transaction. Fees are NGN-denominated.
type ConversionService struct {
	store    QueryStore
	ledger   *LedgerService
	journal  *JournalService
	rates    rates.Provider
	fees     *fees.Engine
	notifier *notify.Dispatcher
	timeout  time.Duration
}

func NewConversionService(store QueryStore, ledger *LedgerService, journal *JournalService, provider rates.Provider, engine *fees.Engine, notifier *notify.Dispatcher) *ConversionService {
	return &ConversionService{
		store:    store,
		ledger:   ledger,
		journal:  journal,
		rates:    provider,
		fees:     engine,
		notifier: notifier,
		timeout:  5 * time.Second,
	}
}

// WithRateTimeout bounds the rate lookup.
func (s *ConversionService) WithRateTimeout(timeout time.Duration) *ConversionService {
	if timeout > 0 {
		s.timeout = timeout
	}
	return s
}

type conversionPlan struct {
	reference   string
	from        domain.Money
	to          domain.Money
	rate        decimal.Decimal
	feeKind     fees.Kind
	fee         domain.Money
	feeInTarget domain.Money
}

func (s *ConversionService) Convert(ctx context.Context, identity domain.Identity, req ConvertRequest) (ConversionResult, error) {
	if err := identity.Require(domain.GateEmail); err != nil {
		return ConversionResult{}, err
	}
	plan, err := s.plan(ctx, req)
	if err != nil {
		return ConversionResult{}, err
	}
	userID := identity.UserID
	logger := zap.L().With(
		zap.String("reference", plan.reference),
		zap.String("user_id", userID.String()),
		zap.String("from", plan.from.Currency),
		zap.String("to", plan.to.Currency),
	)

	if err := s.journal.EnsureNew(ctx, plan.reference); err != nil {
		return ConversionResult{}, err
	}
	// The fee is not part of the pre-check; it may still be collected from
	// the target wallet.
	need := plan.from.Amount
	available, err := s.ledger.Available(ctx, userID, plan.from.Currency)
	if err != nil {
		return ConversionResult{}, err
	}
	if available < need {
		return ConversionResult{}, fmt.Errorf("%w: need %s, available %s", domain.ErrInsufficientFunds,
			domain.NewMoney(need, plan.from.Currency), domain.NewMoney(available, plan.from.Currency))
	}

	var entry models.Transaction
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		entry, err = s.journal.Record(ctx, qtx, RecordParams{
			Reference:   plan.reference,
			UserID:      userID,
			AmountMicro: plan.from.Amount,
			FeeMicro:    plan.fee.Amount,
			Currency:    plan.from.Currency,
			Kind:        domain.KindConversion,
			Method:      domain.MethodConversion,
			Status:      domain.TxStatusProcessing,
			Metadata: metadata{
				"to_currency":      plan.to.Currency,
				"to_amount_micros": plan.to.Amount,
				"rate":             plan.rate.String(),
				"fee_currency":     plan.fee.Currency,
			},
		}, &userID)
		return err
	})
	if err != nil {
		return ConversionResult{}, err
	}
	// The entry exists; it must reach a final state even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	result := ConversionResult{
		Reference:  plan.reference,
		FromAmount: plan.from,
		ToAmount:   plan.to,
		Rate:       plan.rate,
		Fee:        plan.fee,
	}
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		charged, shortfall, err := s.apply(ctx, qtx, userID, entry, plan)
		if err != nil {
			return err
		}
		result.FeeCharged = charged
		result.FeeShortfall = shortfall
		return nil
	})
	if err != nil {
		s.fail(ctx, plan.reference, userID, err)
		return ConversionResult{}, err
	}
	if result.FeeShortfall {
		observability.IncrementFeeShortfall(plan.fee.Currency)
		logger.Warn("conversion fee could not be collected", zap.String("fee", plan.fee.String()))
	}

	result.Status = domain.TxStatusSuccess
	s.notifier.Dispatch(notify.Event{
		Type:      notify.EventConversionSucceeded,
		UserID:    userID,
		Reference: plan.reference,
		Amount:    domain.FormatMicros(plan.from.Amount),
		Currency:  plan.from.Currency,
		Status:    result.Status,
	})
	logger.Info("conversion completed", zap.String("rate", plan.rate.String()))
	return result, nil
}

func (s *ConversionService) plan(ctx context.Context, req ConvertRequest) (conversionPlan, error) {
	from, err := domain.NormalizeCurrency(req.Amount.Currency)
	if err != nil {
		return conversionPlan{}, err
	}
	to, err := domain.NormalizeCurrency(req.ToCurrency)
	if err != nil {
		return conversionPlan{}, err
	}
	amount := domain.NewMoney(req.Amount.Amount, from)
	if !amount.IsPositive() {
		return conversionPlan{}, domain.ErrInvalidAmount
	}
	kind, basis, err := fees.ConversionKind(from, to)
	if err != nil {
		return conversionPlan{}, err
	}

	rateCtx, cancel := context.WithTimeout(ctx, s.timeout)
	rate, err := s.rates.Rate(rateCtx, from, to)
	cancel()
	if err != nil {
		return conversionPlan{}, err
	}

	if !domain.FitsMicros(amount.ToDecimal().Mul(rate)) {
		return conversionPlan{}, fmt.Errorf("%w: %s at %s overflows %s", domain.ErrInvalidAmount, amount, rate, to)
	}
	converted := amount.Convert(to, rate)
	if !converted.IsPositive() {
		return conversionPlan{}, fmt.Errorf("%w: %s converts to nothing at %s", domain.ErrInvalidAmount, amount, rate)
	}

	leg := amount
	if basis == to {
		leg = converted
	}
	fee, err := s.fees.Compute(kind, leg, fees.Usage{})
	if err != nil {
		return conversionPlan{}, err
	}

	p := conversionPlan{
		reference: referenceOrNew(req.Reference, domain.RefPrefixConversion),
		from:      amount,
		to:        converted,
		rate:      rate,
		feeKind:   kind,
		fee:       fee,
	}
	// When the target is not the fee currency, the fee may fall back to the
	// target wallet. Its pair rate is the conversion rate itself.
	if fee.IsPositive() && to != fee.Currency && from == fee.Currency {
		p.feeInTarget = fee.Convert(to, rate)
	}
	return p, nil
}

// apply moves both legs and collects the fee. It returns the fee actually
// charged and whether part of it could not be collected.
func (s *ConversionService) apply(ctx context.Context, qtx repository.Querier, userID uuid.UUID, entry models.Transaction, p conversionPlan) (domain.Money, bool, error) {
	if _, err := s.ledger.Mutate(ctx, qtx, userID, p.from.Currency, p.from.Amount, domain.DirectionSubtract); err != nil {
		return domain.Money{}, false, err
	}
	if _, err := s.ledger.Mutate(ctx, qtx, userID, p.to.Currency, p.to.Amount, domain.DirectionAdd); err != nil {
		return domain.Money{}, false, err
	}

	charged := domain.NewMoney(0, p.fee.Currency)
	shortfall := false
	if p.fee.IsPositive() {
		var err error
		charged, err = s.chargeFee(ctx, qtx, userID, p)
		switch {
		case errors.Is(err, domain.ErrInsufficientFunds):
			shortfall = true
			charged = domain.NewMoney(0, p.fee.Currency)
			if err := s.journal.Annotate(ctx, qtx, p.reference, metadata{
				domain.MetaFeeShortfall: domain.FormatMicros(p.fee.Amount),
				"fee_currency":          p.fee.Currency,
			}); err != nil {
				return domain.Money{}, false, err
			}
		case err != nil:
			return domain.Money{}, false, err
		}
	}

	if _, err := qtx.CreateConversion(ctx, repository.CreateConversionParams{
		ID:               uuid.New(),
		TransactionID:    entry.ID,
		UserID:           userID,
		FromCurrency:     p.from.Currency,
		ToCurrency:       p.to.Currency,
		FromAmountMicros: p.from.Amount,
		ToAmountMicros:   p.to.Amount,
		Rate:             p.rate,
		FeeMicros:        charged.Amount,
		FeeCurrency:      charged.Currency,
	}); err != nil {
		return domain.Money{}, false, fmt.Errorf("create conversion: %w", err)
	}
	if _, err := s.journal.Transition(ctx, qtx, p.reference, domain.TxStatusSuccess, &userID, "converted", nil); err != nil {
		return domain.Money{}, false, err
	}
	return charged, shortfall, nil
}

// chargeFee debits the fee from its own currency and falls back to the
// converted amount in the target currency.
func (s *ConversionService) chargeFee(ctx context.Context, qtx repository.Querier, userID uuid.UUID, p conversionPlan) (domain.Money, error) {
	_, err := s.ledger.Mutate(ctx, qtx, userID, p.fee.Currency, p.fee.Amount, domain.DirectionSubtract)
	if err == nil {
		return p.fee, nil
	}
	if !errors.Is(err, domain.ErrInsufficientFunds) || !p.feeInTarget.IsPositive() {
		return domain.Money{}, err
	}
	if _, err := s.ledger.Mutate(ctx, qtx, userID, p.feeInTarget.Currency, p.feeInTarget.Amount, domain.DirectionSubtract); err != nil {
		return domain.Money{}, err
	}
	return p.feeInTarget, nil
}

func (s *ConversionService) fail(ctx context.Context, reference string, userID uuid.UUID, cause error) {
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		if _, err := s.journal.Transition(ctx, qtx, reference, domain.TxStatusFailed, &userID, "conversion_failed", metadata{domain.MetaFailureReason: cause.Error()}); err != nil {
			return err
		}
		return s.journal.Annotate(ctx, qtx, reference, metadata{domain.MetaFailureReason: cause.Error()})
	})
	if err != nil {
		zap.L().Error("failed to mark conversion failed",
			zap.String("reference", reference),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

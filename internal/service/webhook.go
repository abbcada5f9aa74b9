package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/notify"
	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignatureHeader carries "sha256=<hex>" of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// ErrInvalidPayload marks a signed notification that could not be understood.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// WebhookPayload is the provider's settlement notification.
type WebhookPayload struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

type WebhookData struct {
	Reference         string `json:"reference"`
	ProviderReference string `json:"provider_reference"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Status            string `json:"status"`
	Reason            string `json:"reason"`
}

// ReconcileDetails carries the optional facts a provider reports with an
// outcome.
type ReconcileDetails struct {
	ConfirmedAmount   *domain.Money
	ProviderReference string
	Reason            string
	ActorID           *uuid.UUID
	Source            string
}

type WebhookResult struct {
	Reference string       `json:"reference,omitempty"`
	Result    SettleResult `json:"result"`
	Status    string       `json:"status,omitempty"`
}

// WebhookService turns provider notifications into journal and balance
// changes. Replays of the same outcome are no-ops and contradicting outcomes
// are logged, never applied.
type WebhookService struct {
	store    QueryStore
	journal  *JournalService
	settler  *Settler
	notifier *notify.Dispatcher
	hmacKey  []byte
	skipSig  bool
}

func NewWebhookService(store QueryStore, journal *JournalService, settler *Settler, notifier *notify.Dispatcher, hmacKey string, skipSignature bool) *WebhookService {
	return &WebhookService{
		store:    store,
		journal:  journal,
		settler:  settler,
		notifier: notifier,
		hmacKey:  []byte(hmacKey),
		skipSig:  skipSignature,
	}
}

// HandleWebhook verifies the signature before reading the payload. A bad
// signature yields ErrUnauthorized with no side effects.
func (s *WebhookService) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	if !s.verifyHMAC(payload, signature) {
		return WebhookResult{}, domain.ErrUnauthorized
	}

	var event WebhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	data := event.Data
	reference := strings.TrimSpace(data.Reference)
	if reference == "" {
		reference = strings.TrimSpace(data.ProviderReference)
	}
	if reference == "" {
		return WebhookResult{}, fmt.Errorf("%w: reference is required", ErrInvalidPayload)
	}

	outcome := normalizeOutcome(data.Status, event.Event)
	details := ReconcileDetails{
		ProviderReference: strings.TrimSpace(data.ProviderReference),
		Reason:            data.Reason,
		Source:            SourceWebhook,
	}
	if data.Amount != "" {
		confirmed, err := domain.ParseMoney(data.Amount, strings.ToUpper(strings.TrimSpace(data.Currency)))
		if err != nil {
			return WebhookResult{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		details.ConfirmedAmount = &confirmed
	}
	return s.Reconcile(ctx, reference, outcome, details)
}

// Reconcile applies outcome to the entry matching reference, which may be
// ours or the provider's. Unknown references are ignored.
func (s *WebhookService) Reconcile(ctx context.Context, reference, outcome string, details ReconcileDetails) (WebhookResult, error) {
	if details.Source == "" {
		details.Source = SourceWebhook
	}
	logger := zap.L().With(
		zap.String("reference", reference),
		zap.String("outcome", outcome),
		zap.String("source", details.Source),
	)
	if outcome != domain.OutcomeSuccess && outcome != domain.OutcomeFailed {
		logger.Info("non-final provider outcome ignored")
		return WebhookResult{Reference: reference, Result: SettleIgnored}, nil
	}

	var (
		entry  models.Transaction
		result SettleResult
	)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		entry, err = s.journal.Find(ctx, qtx, reference)
		if err != nil {
			return err
		}
		result, err = s.settler.Settle(ctx, qtx, entry.Reference, Settlement{
			Outcome:           outcome,
			ProviderReference: details.ProviderReference,
			Reason:            details.Reason,
			ConfirmedAmount:   details.ConfirmedAmount,
			ActorID:           details.ActorID,
			Source:            details.Source,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			logger.Warn("provider outcome for unknown reference")
			observability.IncrementReconciliation(string(SettleIgnored))
			return WebhookResult{Reference: reference, Result: SettleIgnored}, nil
		}
		return WebhookResult{}, err
	}

	observability.IncrementReconciliation(string(result))
	current, err := s.journal.Get(ctx, entry.Reference)
	if err != nil {
		return WebhookResult{}, err
	}
	if result == SettleApplied {
		logger.Info("provider outcome applied", zap.String("status", current.Status))
		s.notify(current, details.Reason)
	}
	return WebhookResult{Reference: current.Reference, Result: result, Status: current.Status}, nil
}

func (s *WebhookService) notify(tx models.Transaction, reason string) {
	var event string
	switch {
	case tx.Kind == domain.KindDeposit && tx.Status == domain.TxStatusSuccess:
		event = notify.EventDepositSucceeded
	case tx.Kind == domain.KindDeposit:
		event = notify.EventDepositFailed
	case tx.Kind == domain.KindWithdrawal && tx.Status == domain.TxStatusSuccess:
		event = notify.EventWithdrawalSucceeded
	case tx.Kind == domain.KindWithdrawal:
		event = notify.EventWithdrawalFailed
	case tx.Kind == domain.KindConversion:
		event = notify.EventConversionFailed
	case tx.Status == domain.TxStatusSuccess:
		event = notify.EventTransferSucceeded
	default:
		event = notify.EventTransferFailed
	}
	s.notifier.Dispatch(notify.Event{
		Type:      event,
		UserID:    tx.UserID,
		Reference: tx.Reference,
		Amount:    domain.FormatMicros(tx.AmountMicros),
		Currency:  tx.Currency,
		Status:    tx.Status,
		Reason:    reason,
	})
}

// verifyHMAC verifies the HMAC signature of the payload.
func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(s.hmacKey, payload)))
}

// Sign returns the signature header value for payload.
func Sign(key, payload []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func normalizeOutcome(status, event string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		if i := strings.LastIndex(event, "."); i >= 0 {
			s = strings.ToLower(event[i+1:])
		}
	}
	switch s {
	case "success", "successful", "succeeded", "completed":
		return domain.OutcomeSuccess
	case "failed", "failure", "reversed", "declined":
		return domain.OutcomeFailed
	default:
		return domain.OutcomePending
	}
}

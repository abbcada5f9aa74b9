// Package notify publishes user-facing events about money movements.
// Delivery is best effort and never affects the financial outcome.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types.
const (
	EventTransferSucceeded   = "transfer.succeeded"
	EventTransferFailed      = "transfer.failed"
	EventTransferProcessing  = "transfer.processing"
	EventWithdrawalSucceeded = "withdrawal.succeeded"
	EventWithdrawalFailed    = "withdrawal.failed"
	EventDepositSucceeded    = "deposit.succeeded"
	EventDepositFailed       = "deposit.failed"
	EventConversionSucceeded = "conversion.succeeded"
	EventConversionFailed    = "conversion.failed"
)

type Event struct {
	Type       string    `json:"type"`
	UserID     uuid.UUID `json:"user_id"`
	Reference  string    `json:"reference"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the logger.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) Notify(_ context.Context, event Event) error {
	zap.L().Info("notification",
		zap.String("type", event.Type),
		zap.String("user_id", event.UserID.String()),
		zap.String("reference", event.Reference),
		zap.String("amount", event.Amount),
		zap.String("currency", event.Currency),
		zap.String("status", event.Status),
	)
	return nil
}

// Dispatcher delivers events off the request path with a bounded timeout.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{notifier: notifier, timeout: timeout}
}

// Dispatch returns immediately. Failures are logged only.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil || d.notifier == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, event); err != nil {
			zap.L().Warn("notification delivery failed",
				zap.String("type", event.Type),
				zap.String("reference", event.Reference),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every dispatched event has been handled.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

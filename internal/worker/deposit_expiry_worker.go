package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/observability"
	"go.uber.org/zap"
)

// Expirer fails pending deposits older than a cutoff.
type Expirer interface {
	ExpirePending(ctx context.Context, olderThan time.Duration, limit int32) (int, error)
}

// DepositExpiryWorker fails checkouts the provider never confirmed.
type DepositExpiryWorker struct {
	svc          Expirer
	pollInterval time.Duration
	expireAfter  time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewDepositExpiryWorker(svc Expirer) *DepositExpiryWorker {
	return &DepositExpiryWorker{
		svc:          svc,
		pollInterval: 5 * time.Minute,
		expireAfter:  24 * time.Hour,
		batchSize:    100,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the poll interval for the worker.
func (w *DepositExpiryWorker) WithPollInterval(interval time.Duration) *DepositExpiryWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithExpireAfter sets the age at which a pending deposit is failed.
func (w *DepositExpiryWorker) WithExpireAfter(d time.Duration) *DepositExpiryWorker {
	if d > 0 {
		w.expireAfter = d
	}
	return w
}

// WithBatchSize sets the batch size for the worker.
func (w *DepositExpiryWorker) WithBatchSize(size int32) *DepositExpiryWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start runs until Stop is called or the context is canceled.
func (w *DepositExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("deposit expiry worker starting",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("expire_after", w.expireAfter),
		zap.Int32("batch_size", w.batchSize),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("deposit expiry worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("deposit expiry worker stop signal received")
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				zap.L().Error("deposit expiry failed", zap.Error(err))
			}
		}
	}
}

// Stop signals the worker to stop.
func (w *DepositExpiryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// ProcessOnce expires a single batch immediately.
func (w *DepositExpiryWorker) ProcessOnce(ctx context.Context) (int, error) {
	n, err := w.svc.ExpirePending(ctx, w.expireAfter, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("deposit_expiry", "failed")
		return n, err
	}
	observability.IncrementWorkerRun("deposit_expiry", "success")
	if n > 0 {
		zap.L().Info("expired pending deposits", zap.Int("count", n))
	}
	return n, nil
}

// Run starts the worker and returns a function that can be called to stop it.
func (w *DepositExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *DepositExpiryWorker) String() string {
	return fmt.Sprintf("DepositExpiryWorker(interval=%v, after=%v, batch=%d)", w.pollInterval, w.expireAfter, w.batchSize)
}

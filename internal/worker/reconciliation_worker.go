package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"go.uber.org/zap"
)

// Reconciler is the part of service.ReconciliationService the worker drives.
type Reconciler interface {
	ResolveStale(ctx context.Context, olderThan time.Duration, limit int32) (service.SweepReport, error)
	CheckHoldInvariant(ctx context.Context) (map[string]int64, error)
}

// ReconciliationWorker periodically settles stale processing withdrawals and
// checks the hold invariant.
type ReconciliationWorker struct {
	svc        Reconciler
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int32
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewReconciliationWorker(svc Reconciler) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:        svc,
		interval:   time.Minute,
		staleAfter: 10 * time.Minute,
		batchSize:  50,
		stopCh:     make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithStaleAfter sets how long an entry may stay processing before the
// provider is polled.
func (w *ReconciliationWorker) WithStaleAfter(d time.Duration) *ReconciliationWorker {
	if d > 0 {
		w.staleAfter = d
	}
	return w
}

func (w *ReconciliationWorker) WithBatchSize(size int32) *ReconciliationWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and runs reconciliation at the configured interval.
func (w *ReconciliationWorker) Start(ctx context.Context) {
	zap.L().Info("reconciliation worker starting",
		zap.Duration("interval", w.interval),
		zap.Duration("stale_after", w.staleAfter),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stop signal received")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce performs a single sweep and invariant check.
func (w *ReconciliationWorker) RunOnce(ctx context.Context) {
	failed := false
	if _, err := w.svc.ResolveStale(ctx, w.staleAfter, w.batchSize); err != nil {
		failed = true
		zap.L().Error("stale entry sweep failed", zap.Error(err))
	}
	if _, err := w.svc.CheckHoldInvariant(ctx); err != nil {
		failed = true
		zap.L().Error("hold invariant check failed", zap.Error(err))
	}
	if failed {
		observability.IncrementWorkerRun("reconciliation", "failed")
		return
	}
	observability.IncrementWorkerRun("reconciliation", "success")
}

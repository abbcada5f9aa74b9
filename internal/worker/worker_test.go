package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	mu        sync.Mutex
	sweeps    int
	checks    int
	olderThan time.Duration
	limit     int32
	sweepErr  error
}

func (f *fakeReconciler) ResolveStale(_ context.Context, olderThan time.Duration, limit int32) (service.SweepReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	f.olderThan = olderThan
	f.limit = limit
	return service.SweepReport{}, f.sweepErr
}

func (f *fakeReconciler) CheckHoldInvariant(context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	return nil, nil
}

func (f *fakeReconciler) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps, f.checks
}

type fakeExpirer struct {
	n   int
	err error
	got time.Duration
}

func (f *fakeExpirer) ExpirePending(_ context.Context, olderThan time.Duration, _ int32) (int, error) {
	f.got = olderThan
	return f.n, f.err
}

func TestReconciliationWorkerRunOnceUsesSettings(t *testing.T) {
	rec := &fakeReconciler{sweepErr: errors.New("provider down")}
	w := NewReconciliationWorker(rec).WithStaleAfter(3 * time.Minute).WithBatchSize(7)

	w.RunOnce(context.Background())

	sweeps, checks := rec.counts()
	assert.Equal(t, 1, sweeps)
	assert.Equal(t, 1, checks, "invariant check still runs after a failed sweep")
	assert.Equal(t, 3*time.Minute, rec.olderThan)
	assert.Equal(t, int32(7), rec.limit)
}

func TestReconciliationWorkerRunsImmediatelyAndStops(t *testing.T) {
	rec := &fakeReconciler{}
	w := NewReconciliationWorker(rec).WithInterval(time.Hour)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		sweeps, _ := rec.counts()
		return sweeps == 1
	}, time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestDepositExpiryWorkerProcessOnce(t *testing.T) {
	exp := &fakeExpirer{n: 4}
	w := NewDepositExpiryWorker(exp).WithExpireAfter(30 * time.Minute)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 30*time.Minute, exp.got)

	exp.err = errors.New("db down")
	_, err = w.ProcessOnce(context.Background())
	require.Error(t, err)
}

func TestDepositExpiryWorkerStopsOnContextCancel(t *testing.T) {
	w := NewDepositExpiryWorker(&fakeExpirer{}).WithPollInterval(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	stop := w.Run(ctx)
	defer stop()
	cancel()

	assert.Contains(t, w.String(), "DepositExpiryWorker")
}

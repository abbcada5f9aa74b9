package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
)

// MockDisburser simulates a provider. It waits a random delay, rejects
// RejectRate of requests and leaves AmbiguousRate of them unanswered.
// Accepted transfers settle successfully when queried through Status.
type MockDisburser struct {
	MinDelay      time.Duration
	MaxDelay      time.Duration
	RejectRate    float64
	AmbiguousRate float64

	mu       sync.Mutex
	rng      *rand.Rand
	accepted map[string]string
}

func NewMockDisburser() *MockDisburser {
	return &MockDisburser{
		MinDelay:      200 * time.Millisecond,
		MaxDelay:      time.Second,
		RejectRate:    0.05,
		AmbiguousRate: 0.05,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		accepted:      make(map[string]string),
	}
}

func (g *MockDisburser) Disburse(ctx context.Context, req DisbursementRequest) (Disbursement, error) {
	roll, delay := g.draw()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return Disbursement{}, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, ctx.Err())
	}

	switch {
	case roll < g.RejectRate:
		return Disbursement{Decision: DecisionRejected, Reason: "destination account could not be credited"}, nil
	case roll < g.RejectRate+g.AmbiguousRate:
		g.remember(req.Reference, "")
		return Disbursement{}, fmt.Errorf("%w: provider connection reset", domain.ErrProviderTimeout)
	}

	ref := domain.NewReference("MOCK")
	g.remember(req.Reference, ref)
	return Disbursement{Decision: DecisionAccepted, ProviderReference: ref}, nil
}

// Status settles every transfer the mock has seen as successful.
func (g *MockDisburser) Status(_ context.Context, reference string) (Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.accepted[reference]
	if !ok {
		return Settlement{Outcome: domain.OutcomeFailed, Reason: "unknown transfer"}, nil
	}
	if ref == "" {
		ref = fmt.Sprintf("MOCK-LATE-%s", reference)
		g.accepted[reference] = ref
	}
	return Settlement{Outcome: domain.OutcomeSuccess, ProviderReference: ref}, nil
}

func (g *MockDisburser) draw() (float64, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delay := g.MinDelay
	if spread := g.MaxDelay - g.MinDelay; spread > 0 {
		delay += time.Duration(g.rng.Int63n(int64(spread)))
	}
	return g.rng.Float64(), delay
}

func (g *MockDisburser) remember(reference, providerRef string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accepted[reference] = providerRef
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
)

// HTTPDisburser talks to a JSON transfer API authenticated with a bearer
// secret. 2xx answers are explicit decisions, 4xx are rejections, anything
// else is ambiguous.
type HTTPDisburser struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewHTTPDisburser(baseURL, secretKey string, timeout time.Duration) *HTTPDisburser {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPDisburser{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type transferRequest struct {
	Reference   string      `json:"reference"`
	Amount      string      `json:"amount"`
	Currency    string      `json:"currency"`
	Destination Destination `json:"destination"`
	Narration   string      `json:"narration,omitempty"`
}

type transferResponse struct {
	Status            string `json:"status"`
	ProviderReference string `json:"provider_reference"`
	Reason            string `json:"reason"`
	Message           string `json:"message"`
}

func (g *HTTPDisburser) Disburse(ctx context.Context, req DisbursementRequest) (Disbursement, error) {
	payload, err := json.Marshal(transferRequest{
		Reference:   req.Reference,
		Amount:      domain.FormatMicros(req.AmountMicro),
		Currency:    req.Currency,
		Destination: req.Destination,
		Narration:   req.Narration,
	})
	if err != nil {
		return Disbursement{}, fmt.Errorf("encode transfer: %w", err)
	}

	status, body, err := g.do(ctx, http.MethodPost, g.baseURL+"/transfers", payload)
	if err != nil {
		return Disbursement{}, err
	}

	var resp transferResponse
	_ = json.Unmarshal(body, &resp)

	switch {
	case status >= 200 && status < 300:
		switch strings.ToLower(resp.Status) {
		case "rejected", "failed":
			return Disbursement{Decision: DecisionRejected, Reason: firstNonEmpty(resp.Reason, resp.Message, "rejected by provider")}, nil
		default:
			return Disbursement{Decision: DecisionAccepted, ProviderReference: resp.ProviderReference}, nil
		}
	case status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests:
		return Disbursement{Decision: DecisionRejected, Reason: firstNonEmpty(resp.Reason, resp.Message, http.StatusText(status))}, nil
	default:
		return Disbursement{}, fmt.Errorf("%w: provider returned %d", domain.ErrProviderTimeout, status)
	}
}

func (g *HTTPDisburser) Status(ctx context.Context, reference string) (Settlement, error) {
	status, body, err := g.do(ctx, http.MethodGet, g.baseURL+"/transfers/"+url.PathEscape(reference), nil)
	if err != nil {
		return Settlement{}, err
	}
	if status == http.StatusNotFound {
		return Settlement{Outcome: domain.OutcomeFailed, Reason: "provider has no record of transfer"}, nil
	}
	if status < 200 || status >= 300 {
		return Settlement{}, fmt.Errorf("%w: status lookup returned %d", domain.ErrProviderTimeout, status)
	}

	var resp transferResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Settlement{}, fmt.Errorf("decode transfer status: %w", err)
	}
	outcome := domain.OutcomePending
	switch strings.ToLower(resp.Status) {
	case "success", "successful", "completed":
		outcome = domain.OutcomeSuccess
	case "failed", "rejected", "reversed":
		outcome = domain.OutcomeFailed
	}
	return Settlement{Outcome: outcome, ProviderReference: resp.ProviderReference, Reason: resp.Reason}, nil
}

func (g *HTTPDisburser) do(ctx context.Context, method, endpoint string, payload []byte) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0, nil, err
		}
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read provider response: %v", domain.ErrProviderTimeout, err)
	}
	return resp.StatusCode, raw, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

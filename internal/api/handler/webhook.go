package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles settlement notifications from the payment provider.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// HandleProviderWebhook handles POST /v1/webhooks/provider.
// Known-but-unactionable events still answer 200 so the provider stops
// retrying; only bad signatures and malformed bodies are rejected.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	resp, err := h.webhookSvc.HandleWebhook(r.Context(), body, r.Header.Get(service.SignatureHeader))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
			return
		}
		if errors.Is(err, service.ErrInvalidPayload) {
			RespondError(w, r, http.StatusBadRequest, "webhook/invalid-payload", err.Error())
			return
		}
		respondServiceError(w, r, "process webhook", err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{
		"reference": resp.Reference,
		"result":    string(resp.Result),
		"status":    statusLabel(resp.Status),
	})
}

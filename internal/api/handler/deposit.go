package handler

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/service"
)

type DepositHandler struct {
	svc *service.DepositService
}

func NewDepositHandler(svc *service.DepositService) *DepositHandler {
	return &DepositHandler{svc: svc}
}

type DepositRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Method    string `json:"method"`
}

type depositResponse struct {
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Amount    moneyView `json:"amount"`
	Method    string    `json:"method"`
}

// Initiate handles POST /v1/deposits. The wallet is credited only when the
// provider confirms the payment through the webhook.
func (h *DepositHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	var req DepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount, req.Currency)
	if !ok {
		return
	}

	res, err := h.svc.Initiate(r.Context(), identity, service.DepositRequest{
		Reference: requestReference(r, req.Reference),
		Amount:    amount,
		Method:    req.Method,
	})
	if err != nil {
		respondServiceError(w, r, "initiate deposit", err)
		return
	}
	RespondJSON(w, http.StatusAccepted, depositResponse{
		Reference: res.Reference,
		Status:    statusLabel(res.Status),
		Amount:    viewMoney(res.Amount),
		Method:    res.Method,
	})
}

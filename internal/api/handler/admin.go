package handler

import (
	"net/http"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

// AdminHandler exposes operator tooling. Routes are mounted behind
// RequireRole(admin).
type AdminHandler struct {
	reconciler *service.ReconciliationService
}

func NewAdminHandler(reconciler *service.ReconciliationService) *AdminHandler {
	return &AdminHandler{reconciler: reconciler}
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason"`
}

// ResolveTransaction handles POST /v1/admin/transactions/{reference}/resolve.
func (h *AdminHandler) ResolveTransaction(w http.ResponseWriter, r *http.Request) {
	operator, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	outcome := strings.ToLower(strings.TrimSpace(req.Outcome))
	if outcome != domain.OutcomeSuccess && outcome != domain.OutcomeFailed {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-outcome", "outcome must be success or failed")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reason", "reason is required")
		return
	}

	res, err := h.reconciler.Resolve(r.Context(), operator, chi.URLParam(r, "reference"), outcome, req.Reason)
	if err != nil {
		respondServiceError(w, r, "resolve transaction", err)
		return
	}
	status := http.StatusOK
	if res.Result == service.SettleConflict {
		status = http.StatusConflict
	}
	RespondJSON(w, status, map[string]string{
		"reference": res.Reference,
		"result":    string(res.Result),
		"status":    statusLabel(res.Status),
	})
}

package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

type ExternalWalletHandler struct {
	svc *service.ExternalWalletService
}

func NewExternalWalletHandler(svc *service.ExternalWalletService) *ExternalWalletHandler {
	return &ExternalWalletHandler{svc: svc}
}

type ExternalWalletRequest struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

type externalWalletView struct {
	Currency  string    `json:"currency"`
	Address   string    `json:"address"`
	Label     string    `json:"label,omitempty"`
	Network   string    `json:"network"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewExternalWallet(ew models.ExternalWallet) externalWalletView {
	return externalWalletView{Currency: ew.Currency, Address: ew.Address, Label: ew.Label, Network: ew.Network, UpdatedAt: ew.UpdatedAt}
}

// Upsert handles PUT /v1/external-wallets/{currency}.
func (h *ExternalWalletHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	var req ExternalWalletRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ew, err := h.svc.Upsert(r.Context(), identity, service.ExternalWalletRequest{
		Currency: chi.URLParam(r, "currency"),
		Address:  req.Address,
		Label:    req.Label,
	})
	if err != nil {
		respondServiceError(w, r, "save external wallet", err)
		return
	}
	RespondJSON(w, http.StatusOK, viewExternalWallet(ew))
}

// List handles GET /v1/external-wallets.
func (h *ExternalWalletHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	items, err := h.svc.List(r.Context(), identity.UserID)
	if err != nil {
		respondServiceError(w, r, "list external wallets", err)
		return
	}
	views := make([]externalWalletView, 0, len(items))
	for _, ew := range items {
		views = append(views, viewExternalWallet(ew))
	}
	RespondJSON(w, http.StatusOK, map[string]any{"items": views})
}

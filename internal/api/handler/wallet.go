package handler

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

// WalletHandler exposes wallet creation and balance reads.
type WalletHandler struct {
	ledger *service.LedgerService
}

func NewWalletHandler(ledger *service.LedgerService) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

type moneyView struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func viewMoney(m domain.Money) moneyView {
	return moneyView{Amount: domain.FormatMicros(m.Amount), Currency: m.Currency}
}

type balanceView struct {
	Currency  string `json:"currency"`
	Balance   string `json:"balance"`
	Held      string `json:"held"`
	Available string `json:"available"`
}

func viewBalance(b models.Balance) balanceView {
	return balanceView{
		Currency:  b.Currency,
		Balance:   domain.FormatMicros(b.BalanceMicro),
		Held:      domain.FormatMicros(b.HeldMicro),
		Available: domain.FormatMicros(b.Available()),
	}
}

type walletView struct {
	ID       string        `json:"id"`
	UserID   string        `json:"user_id"`
	Balances []balanceView `json:"balances"`
}

func viewWallet(w models.Wallet) walletView {
	out := walletView{ID: w.ID.String(), UserID: w.UserID.String(), Balances: make([]balanceView, 0, len(w.Balances))}
	for _, b := range w.Balances {
		out.Balances = append(out.Balances, viewBalance(b))
	}
	return out
}

// CreateWallet handles POST /v1/wallet. It is safe to call repeatedly: an
// existing wallet is returned with 200.
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	wallet, created, err := h.ledger.EnsureWallet(r.Context(), identity)
	if err != nil {
		respondServiceError(w, r, "create wallet", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	RespondJSON(w, status, viewWallet(wallet))
}

// ListBalances handles GET /v1/wallet/balances.
func (h *WalletHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	wallet, err := h.ledger.GetWallet(r.Context(), identity.UserID)
	if err != nil {
		respondServiceError(w, r, "list balances", err)
		return
	}
	RespondJSON(w, http.StatusOK, viewWallet(wallet))
}

// GetBalance handles GET /v1/wallet/balances/{currency}.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	balance, err := h.ledger.GetBalance(r.Context(), identity.UserID, chi.URLParam(r, "currency"))
	if err != nil {
		respondServiceError(w, r, "get balance", err)
		return
	}
	RespondJSON(w, http.StatusOK, viewBalance(balance))
}

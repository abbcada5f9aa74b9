package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/models"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TransactionHandler serves the caller's journal history.
type TransactionHandler struct {
	journal *service.JournalService
}

func NewTransactionHandler(journal *service.JournalService) *TransactionHandler {
	return &TransactionHandler{journal: journal}
}

type transactionView struct {
	Reference         string          `json:"reference"`
	Kind              string          `json:"kind"`
	Method            string          `json:"method"`
	Status            string          `json:"status"`
	Amount            moneyView       `json:"amount"`
	Fee               moneyView       `json:"fee"`
	ProviderReference *string         `json:"provider_reference,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	History           []historyView   `json:"history,omitempty"`
}

type historyView struct {
	Action    string    `json:"action"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	At        time.Time `json:"at"`
	Automated bool      `json:"automated"`
}

func viewTransaction(tx models.Transaction) transactionView {
	v := transactionView{
		Reference:         tx.Reference,
		Kind:              tx.Kind,
		Method:            tx.Method,
		Status:            statusLabel(tx.Status),
		Amount:            viewMoney(domain.NewMoney(tx.AmountMicros, tx.Currency)),
		Fee:               viewMoney(domain.NewMoney(tx.FeeMicros, tx.Currency)),
		ProviderReference: tx.ProviderReference,
		CreatedAt:         tx.CreatedAt,
		UpdatedAt:         tx.UpdatedAt,
	}
	if len(tx.Metadata) > 0 && json.Valid(tx.Metadata) {
		v.Metadata = json.RawMessage(tx.Metadata)
		// conversion fees are charged in the fee currency, not the source one
		var meta struct {
			FeeCurrency string `json:"fee_currency"`
		}
		if json.Unmarshal(tx.Metadata, &meta) == nil && meta.FeeCurrency != "" {
			v.Fee.Currency = meta.FeeCurrency
		}
	}
	return v
}

// ListTransactions handles GET /v1/transactions?kind=&status=&limit=&offset=.
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", 20, 1)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0, 0)
	if !ok {
		return
	}

	items, err := h.journal.List(r.Context(), identity.UserID, service.ListFilter{
		Kind:   strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind"))),
		Status: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(w, r, "list transactions", err)
		return
	}
	views := make([]transactionView, 0, len(items))
	for _, tx := range items {
		views = append(views, viewTransaction(tx))
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":  views,
		"limit":  limit,
		"offset": offset,
		"count":  len(views),
	})
}

// GetTransaction handles GET /v1/transactions/{reference}.
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	tx, err := h.journal.GetForUser(r.Context(), identity.UserID, chi.URLParam(r, "reference"))
	if err != nil {
		respondServiceError(w, r, "get transaction", err)
		return
	}

	view := viewTransaction(tx)
	history, err := h.journal.History(r.Context(), tx)
	if err != nil {
		zap.L().Warn("load transaction history failed", zap.Error(err), zap.String("reference", tx.Reference))
	}
	for _, entry := range history {
		hv := historyView{Action: entry.Action, At: entry.CreatedAt, Automated: entry.ActorID == nil}
		if entry.PrevState != nil {
			hv.From = statusLabel(*entry.PrevState)
		}
		if entry.NextState != nil {
			hv.To = statusLabel(*entry.NextState)
		}
		view.History = append(view.History, hv)
	}
	RespondJSON(w, http.StatusOK, view)
}

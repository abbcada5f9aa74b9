package handler

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/ayo6706/wallet-ledger/internal/service"
)

// TransferHandler handles outbound bank transfers and withdrawals.
type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

type recipientRequest struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

func (rr recipientRequest) bank() service.BankRecipient {
	return service.BankRecipient{BankCode: rr.BankCode, AccountNumber: rr.AccountNumber, AccountName: rr.AccountName}
}

// OutboundRequest is the body of POST /v1/transfers and POST /v1/withdrawals.
// Crypto withdrawals ignore the recipient and pay out to the saved external
// wallet for the currency.
type OutboundRequest struct {
	Reference string           `json:"reference"`
	Amount    string           `json:"amount"`
	Currency  string           `json:"currency"`
	Recipient recipientRequest `json:"recipient"`
	Narration string           `json:"narration"`
}

type transferResponse struct {
	Reference         string    `json:"reference"`
	Status            string    `json:"status"`
	Amount            moneyView `json:"amount"`
	Fee               moneyView `json:"fee"`
	ProviderReference string    `json:"provider_reference,omitempty"`
}

// Transfer handles POST /v1/transfers.
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	var req OutboundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount, req.Currency)
	if !ok {
		return
	}

	res, err := h.svc.Transfer(r.Context(), identity, service.TransferRequest{
		Reference: requestReference(r, req.Reference),
		Amount:    amount,
		Recipient: req.Recipient.bank(),
		Narration: req.Narration,
	})
	if err != nil {
		respondServiceError(w, r, "transfer", err)
		return
	}
	respondOutbound(w, res)
}

// Withdraw handles POST /v1/withdrawals.
func (h *TransferHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	var req OutboundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount, req.Currency)
	if !ok {
		return
	}

	res, err := h.svc.Withdraw(r.Context(), identity, service.WithdrawRequest{
		Reference: requestReference(r, req.Reference),
		Amount:    amount,
		Recipient: req.Recipient.bank(),
		Narration: req.Narration,
	})
	if err != nil {
		respondServiceError(w, r, "withdraw", err)
		return
	}
	respondOutbound(w, res)
}

// respondOutbound answers 201 once the transfer is final and 202 while the
// provider outcome is still unknown.
func respondOutbound(w http.ResponseWriter, res service.TransferResult) {
	status := http.StatusCreated
	if res.Status != domain.TxStatusSuccess {
		status = http.StatusAccepted
	}
	RespondJSON(w, status, transferResponse{
		Reference:         res.Reference,
		Status:            statusLabel(res.Status),
		Amount:            viewMoney(res.Amount),
		Fee:               viewMoney(res.Fee),
		ProviderReference: res.ProviderReference,
	})
}

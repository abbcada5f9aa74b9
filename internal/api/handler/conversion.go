package handler

import (
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/service"
)

type ConversionHandler struct {
	svc *service.ConversionService
}

func NewConversionHandler(svc *service.ConversionService) *ConversionHandler {
	return &ConversionHandler{svc: svc}
}

type ConvertRequest struct {
	Reference    string `json:"reference"`
	Amount       string `json:"amount"`
	FromCurrency string `json:"from_currency"`
	ToCurrency   string `json:"to_currency"`
}

type conversionResponse struct {
	Reference    string    `json:"reference"`
	Status       string    `json:"status"`
	From         moneyView `json:"from"`
	To           moneyView `json:"to"`
	Rate         string    `json:"rate"`
	Fee          moneyView `json:"fee"`
	FeeCharged   moneyView `json:"fee_charged"`
	FeeShortfall bool      `json:"fee_shortfall"`
}

// Convert handles POST /v1/conversions.
func (h *ConversionHandler) Convert(w http.ResponseWriter, r *http.Request) {
	identity, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	var req ConvertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount, req.FromCurrency)
	if !ok {
		return
	}
	if req.ToCurrency == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-currency", "to_currency is required")
		return
	}

	res, err := h.svc.Convert(r.Context(), identity, service.ConvertRequest{
		Reference:  requestReference(r, req.Reference),
		Amount:     amount,
		ToCurrency: req.ToCurrency,
	})
	if err != nil {
		respondServiceError(w, r, "convert", err)
		return
	}
	RespondJSON(w, http.StatusCreated, conversionResponse{
		Reference:    res.Reference,
		Status:       statusLabel(res.Status),
		From:         viewMoney(res.FromAmount),
		To:           viewMoney(res.ToAmount),
		Rate:         res.Rate.String(),
		Fee:          viewMoney(res.Fee),
		FeeCharged:   viewMoney(res.FeeCharged),
		FeeShortfall: res.FeeShortfall,
	})
}

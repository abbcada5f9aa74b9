package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/wallet-ledger/internal/api/middleware"
	"github.com/ayo6706/wallet-ledger/internal/api/problem"
	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

type errorMapping struct {
	err    error
	status int
	slug   string
}

// Order matters: the first sentinel matched by errors.Is wins.
var serviceErrors = []errorMapping{
	{domain.ErrInvalidAmount, http.StatusBadRequest, "request/invalid-amount"},
	{domain.ErrUnsupportedCurrency, http.StatusBadRequest, "request/unsupported-currency"},
	{domain.ErrUnsupportedConversion, http.StatusBadRequest, "conversion/unsupported-pair"},
	{domain.ErrUnsupportedMethod, http.StatusBadRequest, "request/unsupported-method"},
	{domain.ErrInvalidRecipient, http.StatusBadRequest, "request/invalid-recipient"},
	{domain.ErrInvalidAddress, http.StatusBadRequest, "request/invalid-address"},
	{domain.ErrVerificationRequired, http.StatusForbidden, "auth/verification-required"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "auth/unauthorized"},
	{domain.ErrWalletNotFound, http.StatusNotFound, "wallet/not-found"},
	{domain.ErrTransactionNotFound, http.StatusNotFound, "transaction/not-found"},
	{domain.ErrExternalWalletNotFound, http.StatusUnprocessableEntity, "withdrawal/external-wallet-not-found"},
	{domain.ErrWalletExists, http.StatusConflict, "wallet/already-exists"},
	{domain.ErrDuplicateReference, http.StatusConflict, "transaction/duplicate-reference"},
	{domain.ErrInvalidTransition, http.StatusConflict, "transaction/invalid-transition"},
	{domain.ErrReconciliationConflict, http.StatusConflict, "transaction/reconciliation-conflict"},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity, "wallet/insufficient-funds"},
	{domain.ErrProviderRejected, http.StatusUnprocessableEntity, "provider/rejected"},
	{domain.ErrProviderTimeout, http.StatusGatewayTimeout, "provider/timeout"},
	{domain.ErrRateUnavailable, http.StatusServiceUnavailable, "rates/unavailable"},
	{domain.ErrNoRateAvailable, http.StatusServiceUnavailable, "rates/unavailable"},
}

// respondServiceError maps domain sentinels to problem responses. Anything
// unrecognised is logged and reported as a 500 without leaking internals.
func respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			RespondError(w, r, m.status, m.slug, err.Error())
			return
		}
	}
	if status, slug, msg, ok := mapDBError(err); ok {
		RespondError(w, r, status, slug, msg)
		return
	}
	zap.L().Error(op+" failed", zap.Error(err), zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
	RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
}

func requestIdentity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return domain.Identity{}, false
	}
	return identity, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

// requestReference prefers the body reference and falls back to the
// Idempotency-Key so a retried request maps onto the same journal entry.
func requestReference(r *http.Request, bodyRef string) string {
	if ref := strings.TrimSpace(bodyRef); ref != "" {
		return ref
	}
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func parseAmount(w http.ResponseWriter, r *http.Request, amount, currency string) (domain.Money, bool) {
	if strings.TrimSpace(amount) == "" || strings.TrimSpace(currency) == "" {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", "amount and currency are required")
		return domain.Money{}, false
	}
	m, err := domain.ParseMoney(amount, strings.ToUpper(strings.TrimSpace(currency)))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", err.Error())
		return domain.Money{}, false
	}
	return m, true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int32, floor int) (int32, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, true
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < floor {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, name+" must be an integer of at least "+strconv.Itoa(floor))
		return 0, false
	}
	return int32(parsed), true
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23514": // check_violation
		return http.StatusUnprocessableEntity, "db/check-violation", "request violates balance constraints", true
	default:
		return 0, "", "", false
	}
}

// statusLabel renders journal statuses the way the API reports them.
func statusLabel(status string) string {
	return strings.ToLower(status)
}

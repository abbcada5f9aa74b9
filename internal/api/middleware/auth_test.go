package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configureAuth(t *testing.T) {
	t.Helper()
	SetJWTSecret("auth-test-secret-0123456789-abcdef")
	SetJWTValidation("wallet-ledger", "wallet-api")
}

func signed(t *testing.T, claims Claims) string {
	t.Helper()
	now := time.Now()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(time.Hour))
	}
	token, err := IssueToken(claims)
	require.NoError(t, err)
	return token
}

func serveAuth(token string, next http.Handler) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	AuthMiddleware(next).ServeHTTP(rr, req)
	return rr
}

func TestAuthMiddlewareBuildsIdentity(t *testing.T) {
	configureAuth(t)
	userID := uuid.New()
	token := signed(t, Claims{
		UserID:        userID.String(),
		Role:          "user",
		Email:         "ada@example.com",
		EmailVerified: true,
		KYCVerified:   true,
	})

	var got domain.Identity
	rr := serveAuth(token, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, userID, got.UserID)
	assert.True(t, got.EmailVerified)
	assert.True(t, got.KYCVerified)
	assert.False(t, got.ProfileVerified)
	assert.ErrorIs(t, got.Require(domain.GateProfile), domain.ErrVerificationRequired)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	configureAuth(t)
	userID := uuid.New().String()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	cases := []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "garbage", token: "abc.def.ghi"},
		{name: "bad_user_id", token: signed(t, Claims{UserID: "not-a-uuid"})},
		{name: "subject_mismatch", token: signed(t, Claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()}})},
		{name: "wrong_audience", token: signed(t, Claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"other"}}})},
		{name: "expired", token: signed(t, Claims{UserID: userID, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveAuth(tc.token, ok)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	guard := RequireRole(domain.RoleAdmin)(ok)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := httptest.NewRecorder()
	guard.ServeHTTP(rr, req.WithContext(ContextWithIdentity(req.Context(), domain.Identity{UserID: uuid.New(), Role: "user"})))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	guard.ServeHTTP(rr, req.WithContext(ContextWithIdentity(req.Context(), domain.Identity{UserID: uuid.New(), Role: domain.RoleAdmin})))
	assert.Equal(t, http.StatusOK, rr.Code)
}

package spec

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIHandlerServesDocument(t *testing.T) {
	rr := httptest.NewRecorder()
	OpenAPIHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/yaml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "/v1/transfers:")
	assert.Contains(t, rr.Body.String(), "/v1/admin/transactions/{reference}/resolve:")
	assert.Equal(t, Document(), rr.Body.Bytes())
}

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cirwel/unitares-govcore/pkg/dispatch"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	d := dispatch.New(&dispatch.Deps{})
	return NewServer(d, nil)
}

func TestInvokeToolHandler_ListTools(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/list_tools", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), "health_check")
}

func TestInvokeToolHandler_UnknownTool(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/does_not_exist", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestInvokeToolHandler_MalformedJSONBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/health_check", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_PARAMETER")
}

func TestInvokeToolHandler_EmptyBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tools/health_check", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListToolsHandler(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "list_tools")
}

func TestStatusForEnvelope(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{"NOT_FOUND", http.StatusNotFound},
		{"INVALID_PARAMETER", http.StatusBadRequest},
		{"MISSING_PARAMETER", http.StatusBadRequest},
		{"AUTH_FAILED", http.StatusUnauthorized},
		{"IDENTITY_IN_USE", http.StatusConflict},
		{"IDENTITY_EXISTS", http.StatusConflict},
		{"LOCK_UNAVAILABLE", http.StatusConflict},
		{"RATE_LIMITED", http.StatusTooManyRequests},
		{"TIMEOUT", http.StatusGatewayTimeout},
		{"INVARIANT_VIOLATED", http.StatusUnprocessableEntity},
		{"DEPENDENCY_MISSING", http.StatusServiceUnavailable},
		{"INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got := statusForEnvelope(dispatch.Envelope{Success: false, Error: &dispatch.EnvelopeError{Code: tc.code}})
		assert.Equal(t, tc.want, got, tc.code)
	}

	require.Equal(t, http.StatusOK, statusForEnvelope(dispatch.Envelope{Success: true}))
}

func TestWSHandler_NoConnManagerReturns503(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

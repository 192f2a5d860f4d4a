package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appValidator "github.com/castellan-dev/castellan/pkg/validator"
)

type samplePayload struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"omitempty,min=3"`
}

func runBind(t *testing.T, body string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var payload samplePayload
	ok := bindAndValidate(c, &payload)
	return w, ok
}

func TestBindAndValidateRejectsMalformedJSON(t *testing.T) {
	w, ok := runBind(t, "{not json")
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid JSON payload")
}

func TestBindAndValidateReportsFieldFailures(t *testing.T) {
	w, ok := runBind(t, `{"email":"not-an-email","name":"ab"}`)
	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "email must be a valid email address")
	require.Contains(t, w.Body.String(), "name must be at least 3 characters")
}

func TestBindAndValidateAcceptsValidPayload(t *testing.T) {
	w, ok := runBind(t, `{"email":"user@example.com","name":"abc"}`)
	require.True(t, ok)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestFormatValidationErrorFallback(t *testing.T) {
	require.Equal(t, "invalid request payload", formatValidationError(nil))
	require.Equal(t, "invalid request payload", formatValidationError(appValidator.ValidationErrors{}))
}

func TestParseIntQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=3&junk=abc", nil)

	require.Equal(t, 3, parseIntQuery(c, "page", 1))
	require.Equal(t, 1, parseIntQuery(c, "junk", 1))
	require.Equal(t, 50, parseIntQuery(c, "missing", 50))
}

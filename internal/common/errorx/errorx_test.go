package errorx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithHelpersDoNotMutateTemplates(t *testing.T) {
	e := ErrInvalidInput.WithDetail("field", "type").WithSuggestion("set it")
	assert.Nil(t, ErrInvalidInput.Details)
	assert.Empty(t, ErrInvalidInput.Suggestions)
	assert.Equal(t, "type", e.Details["field"])
	assert.Equal(t, []string{"set it"}, e.Suggestions)

	m := ErrForbidden.WithMessage("nope")
	assert.Equal(t, "nope", m.Message)
	assert.NotEqual(t, "nope", ErrForbidden.Message)
}

func TestAPIErrorIs(t *testing.T) {
	decorated := ErrTokenExpired.WithDetail("exp", 1)
	wrapped := fmt.Errorf("auth: %w", decorated)
	assert.ErrorIs(t, wrapped, ErrTokenExpired)
	assert.NotErrorIs(t, wrapped, ErrInvalidToken)
	assert.Contains(t, decorated.Error(), "E2003")
	assert.Contains(t, decorated.JSON(), `"code":"E2003"`)
}

func TestValidationError(t *testing.T) {
	e := ValidationError("scope", "x", "unknown")
	assert.Equal(t, "E1001", e.Code)
	assert.Equal(t, "scope", e.Details["field"])
	assert.Len(t, e.Suggestions, 1)
}

func newRouter(h *ErrorHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(h.RecoveryMiddleware(), h.ErrorMiddleware())
	r.NoRoute(h.NotFoundHandler())
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body struct {
		Error APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestHandleError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := NewErrorHandler(zap.New(core))
	r := newRouter(h)
	r.GET("/api", func(c *gin.Context) { _ = c.Error(ErrScopeNotPermitted) })
	r.GET("/plain", func(c *gin.Context) { _ = c.Error(errors.New("disk on fire")) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	t.Run("api error", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("X-Trace-Id", "trace-1")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
		e := decodeError(t, w)
		assert.Equal(t, "E3002", e.Code)
		assert.Equal(t, "trace-1", e.TraceID)
		assert.NotEmpty(t, e.Timestamp)
		assert.Empty(t, ErrScopeNotPermitted.TraceID)
	})

	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		e := decodeError(t, w)
		assert.Equal(t, "E5001", e.Code)
		assert.Equal(t, "disk on fire", e.Details["original_error"])
		assert.NotEmpty(t, e.TraceID)
	})

	t.Run("panic", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "E5000", decodeError(t, w).Code)
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "E4001", decodeError(t, w).Code)
	})

	assert.GreaterOrEqual(t, logs.Len(), 4)
}

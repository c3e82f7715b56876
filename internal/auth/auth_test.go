package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amoylab/inboxhub/internal/auth/jwt"
	"github.com/amoylab/inboxhub/internal/common/errorx"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "this-is-a-very-long-secret-key-for-testing"

func newService(t *testing.T) *jwt.Service {
	t.Helper()
	svc, err := jwt.NewService(jwt.Config{SecretKey: testSecret, Duration: time.Hour})
	require.NoError(t, err)
	return svc
}

func TestIdentity(t *testing.T) {
	id := &Identity{TenantID: "T1", UserID: "U7", Role: "Admin"}
	assert.True(t, id.IsAdmin("admin"))
	assert.False(t, id.IsAdmin(""))
	assert.True(t, id.OwnsKey("T1"))
	assert.True(t, id.OwnsKey("T1:U9"))
	assert.False(t, id.OwnsKey("T2"))
	assert.False(t, id.OwnsKey("T10:U7"))
	assert.False(t, id.OwnsKey(""))
	assert.False(t, id.OwnsKey("T1:U7:x"))
	assert.False(t, id.OwnsKey("T1:"))

	var nilID *Identity
	assert.False(t, nilID.IsAdmin("admin"))
	assert.False(t, nilID.OwnsKey("T1"))

	ctx := WithIdentity(context.Background(), id)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)
	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestJWTAuthenticator(t *testing.T) {
	svc := newService(t)
	a := NewJWTAuthenticator(svc, "access_token")
	tok, err := svc.GenerateToken("T1", "U7", "agent")
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		id, err := a.Authenticate(r.Context(), r)
		require.NoError(t, err)
		assert.Equal(t, &Identity{TenantID: "T1", UserID: "U7", Role: "agent"}, id)
	})

	t.Run("query param", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stream?access_token="+tok, nil)
		id, err := a.Authenticate(r.Context(), r)
		require.NoError(t, err)
		assert.Equal(t, "T1", id.TenantID)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
		_, err := a.Authenticate(r.Context(), r)
		assert.ErrorIs(t, err, errorx.ErrUnauthorized)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
		r.Header.Set("Authorization", "Basic abc")
		_, err := a.Authenticate(r.Context(), r)
		assert.ErrorIs(t, err, errorx.ErrInvalidToken)
	})

	t.Run("separator in ids", func(t *testing.T) {
		for _, ids := range [][2]string{{"acme:bob", ""}, {"acme", "bob:x"}} {
			bad, err := svc.GenerateToken(ids[0], ids[1], "agent")
			require.NoError(t, err)
			r := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
			r.Header.Set("Authorization", "Bearer "+bad)
			_, err = a.Authenticate(r.Context(), r)
			assert.ErrorIs(t, err, errorx.ErrInvalidToken, ids)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/stream?access_token=nope", nil)
		_, err := a.Authenticate(r.Context(), r)
		assert.ErrorIs(t, err, errorx.ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	eh := errorx.NewErrorHandler(zap.NewNop())
	static := AuthenticatorFunc(func(_ context.Context, r *http.Request) (*Identity, error) {
		switch r.Header.Get("X-Role") {
		case "":
			return nil, errorx.ErrUnauthorized
		default:
			return &Identity{TenantID: "T1", Role: r.Header.Get("X-Role")}, nil
		}
	})

	r := gin.New()
	api := r.Group("/api", Middleware(static, eh))
	api.GET("/me", func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		require.True(t, ok)
		fromReq, ok := FromContext(c.Request.Context())
		require.True(t, ok)
		assert.Same(t, id, fromReq)
		c.JSON(http.StatusOK, gin.H{"tenant": id.TenantID})
	})
	api.GET("/admin", RequireAdmin("admin", eh), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func(path, role string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if role != "" {
			req.Header.Set("X-Role", role)
		}
		r.ServeHTTP(w, req)
		return w
	}

	w := do("/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "E2001", body["error"]["code"])

	w = do("/api/me", "agent")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tenant":"T1"}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, do("/api/admin", "agent").Code)
	assert.Equal(t, http.StatusNoContent, do("/api/admin", "admin").Code)
}

package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/amoylab/inboxhub/internal/auth/jwt"
	"github.com/amoylab/inboxhub/internal/common/errorx"
	"github.com/amoylab/inboxhub/internal/realtime"
)

// Authenticator turns an inbound request into an Identity. Any error means
// the request is not admitted.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// JWTAuthenticator admits requests carrying a token signed by the CRM.
// The token is read from the Authorization header first and then from the
// query parameter, since EventSource cannot set headers.
type JWTAuthenticator struct {
	Service    *jwt.Service
	QueryParam string
}

// NewJWTAuthenticator creates a JWT backed Authenticator
func NewJWTAuthenticator(svc *jwt.Service, queryParam string) *JWTAuthenticator {
	return &JWTAuthenticator{Service: svc, QueryParam: queryParam}
}

// Authenticate implements Authenticator
func (a *JWTAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	token, err := a.token(r)
	if err != nil {
		return nil, err
	}

	claims, err := a.Service.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, errorx.ErrTokenExpired
		}
		return nil, errorx.ErrInvalidToken.WithDetail("reason", err.Error())
	}

	id := &Identity{
		TenantID: claims.TenantID,
		UserID:   claims.UserID,
		Role:     claims.Role,
	}
	if err := id.validate(); err != nil {
		return nil, err
	}
	return id, nil
}

func errInvalidID(field, value string) error {
	return errorx.ErrInvalidToken.
		WithDetail("reason", field+" must not contain "+strconv.Quote(realtime.KeySeparator)).
		WithDetail("value", value)
}

func (a *JWTAuthenticator) token(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errorx.ErrInvalidToken.WithDetail("reason", "malformed authorization header")
		}
		return strings.TrimSpace(token), nil
	}
	if a.QueryParam != "" {
		if token := r.URL.Query().Get(a.QueryParam); token != "" {
			return token, nil
		}
	}
	return "", errorx.ErrUnauthorized
}

// AuthenticatorFunc adapts a function to Authenticator
type AuthenticatorFunc func(ctx context.Context, r *http.Request) (*Identity, error)

// Authenticate implements Authenticator
func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	return f(ctx, r)
}

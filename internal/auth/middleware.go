package auth

import (
	"github.com/amoylab/inboxhub/internal/common/errorx"
	"github.com/gin-gonic/gin"
)

const identityCtxKey = "identity"

// Middleware rejects requests the Authenticator does not admit and stores
// the resulting Identity on both the gin and the request context.
func Middleware(a Authenticator, eh *errorx.ErrorHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			eh.HandleError(c, err)
			return
		}

		c.Set(identityCtxKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireAdmin lets only identities holding adminRole through
func RequireAdmin(adminRole string, eh *errorx.ErrorHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || !id.IsAdmin(adminRole) {
			eh.HandleError(c, errorx.ErrForbidden)
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity set by Middleware
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityCtxKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok && id != nil
}

package auth

import (
	"context"
	"strings"

	"github.com/amoylab/inboxhub/internal/realtime"
)

// Identity is the admission decision handed to the realtime core
type Identity struct {
	TenantID string
	UserID   string
	Role     string
}

// IsAdmin reports whether the identity holds the configured admin role
func (i *Identity) IsAdmin(adminRole string) bool {
	return i != nil && adminRole != "" && strings.EqualFold(i.Role, adminRole)
}

// OwnsKey reports whether a routing key lies inside the identity's tenant.
// Malformed keys are never owned.
func (i *Identity) OwnsKey(key string) bool {
	if i == nil {
		return false
	}
	tenant, _, ok := realtime.ParseKey(key)
	return ok && tenant == i.TenantID
}

// validate rejects ids that cannot be turned into unambiguous routing keys
func (i *Identity) validate() error {
	if !realtime.ValidID(i.TenantID) {
		return errInvalidID("tenant id", i.TenantID)
	}
	if i.UserID != "" && !realtime.ValidID(i.UserID) {
		return errInvalidID("user id", i.UserID)
	}
	return nil
}

type identityKey struct{}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

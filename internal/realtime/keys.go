package realtime

import "strings"

// scope names accepted on stream requests
const (
	ScopeTenant = "tenant"
	ScopeUser   = "user"
)

// KeySeparator joins the tenant and user segments of a user key. Tenant and
// user ids must not contain it.
const KeySeparator = ":"

// ValidID reports whether id can be used as a tenant or user segment
func ValidID(id string) bool {
	return id != "" && !strings.Contains(id, KeySeparator)
}

// TenantKey is the routing key of every session of a tenant
func TenantKey(tenantID string) string {
	return tenantID
}

// UserKey is the routing key of one user's sessions, "<tenant>:<user>"
func UserKey(tenantID, userID string) string {
	return tenantID + KeySeparator + userID
}

// ParseKey splits a routing key into its tenant and user segments. A key
// with an empty segment or more than one separator is rejected.
func ParseKey(key string) (tenantID, userID string, ok bool) {
	tenantID, userID, isUser := strings.Cut(key, KeySeparator)
	if !ValidID(tenantID) {
		return "", "", false
	}
	if isUser && !ValidID(userID) {
		return "", "", false
	}
	return tenantID, userID, true
}

// IsUserKey reports whether key addresses a single user
func IsUserKey(key string) bool {
	_, user, ok := ParseKey(key)
	return ok && user != ""
}

package auth

import "context"

type identityKey struct{}

// identity is the authenticated caller attached to a request context.
type identity struct {
	tenantID string
	role     Role
	subject  string
}

// WithIdentity attaches the authenticated caller to the context.
func WithIdentity(ctx context.Context, tenantID string, role Role, subject string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{
		tenantID: tenantID,
		role:     role,
		subject:  subject,
	})
}

func identityFromContext(ctx context.Context) (identity, bool) {
	if ctx == nil {
		return identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(identity)
	return id, ok
}

// TenantIDFromContext extracts the tenant id, or "" when unauthenticated.
func TenantIDFromContext(ctx context.Context) string {
	id, _ := identityFromContext(ctx)
	return id.tenantID
}

// RoleFromContext extracts the role, or "" when unauthenticated.
func RoleFromContext(ctx context.Context) Role {
	id, _ := identityFromContext(ctx)
	return id.role
}

// SubjectFromContext extracts the token subject, or "" when unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	id, _ := identityFromContext(ctx)
	return id.subject
}

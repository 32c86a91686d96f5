package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

// SubjectType tags the kind of principal a token was issued to.
type SubjectType string

const (
	SubjectUser   SubjectType = "user"
	SubjectDriver SubjectType = "driver"
)

// Valid reports whether t is a known subject type.
func (t SubjectType) Valid() bool {
	return t == SubjectUser || t == SubjectDriver
}

// Principal is the authenticated caller of a request. TenantID is the only
// source of tenant scoping for everything the request touches.
type Principal struct {
	SubjectID uuid.UUID
	TenantID  uuid.UUID
	Type      SubjectType
	// Role is set for staff users only.
	Role models.Role
}

// IsDriver reports whether the principal is a driver.
func (p Principal) IsDriver() bool {
	return p.Type == SubjectDriver
}

// HasRole reports whether the principal is a staff user holding one of roles.
func (p Principal) HasRole(roles ...models.Role) bool {
	if p.Type != SubjectUser {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached to ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// TenantStatus is the provisioning state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

// Tenant represents a customer company. Tenants are never hard-deleted.
type Tenant struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Name      string       `json:"name" db:"name"`
	Subdomain string       `json:"subdomain" db:"subdomain"`
	Status    TenantStatus `json:"status" db:"status"`
	Settings  Variables    `json:"settings" db:"settings"`
}

// IsActive reports whether principals of the tenant may sign in.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantActive
}

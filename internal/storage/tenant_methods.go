package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

var tenantColumns = []string{"id", "created_at", "updated_at", "name", "subdomain", "status", "settings"}

// CreateTenant creates a new tenant
func (s *SQLStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	now := models.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	if tenant.Status == "" {
		tenant.Status = models.TenantActive
	}
	if tenant.Settings == nil {
		tenant.Settings = models.Variables{}
	}

	_, err := s.exec(ctx, s.sb.Insert("tenants").
		Columns(tenantColumns...).
		Values(tenant.ID, tenant.CreatedAt, tenant.UpdatedAt, tenant.Name,
			tenant.Subdomain, tenant.Status, tenant.Settings))
	return err
}

// GetTenant gets a tenant by ID
func (s *SQLStore) GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := s.get(ctx, tenant, s.sb.Select(tenantColumns...).From("tenants").Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// GetTenantBySubdomain gets a tenant by its unique subdomain
func (s *SQLStore) GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := s.get(ctx, tenant, s.sb.Select(tenantColumns...).From("tenants").Where("subdomain = ?", subdomain))
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// UpdateTenantStatus changes a tenant's status. Tenants are deactivated this
// way rather than deleted.
func (s *SQLStore) UpdateTenantStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error {
	return s.execOne(ctx, s.sb.Update("tenants").
		Set("status", status).
		Set("updated_at", models.Now()).
		Where("id = ?", id))
}

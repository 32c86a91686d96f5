package storage

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

var driverColumns = []string{
	"id", "tenant_id", "created_at", "updated_at", "deleted_at",
	"name", "phone", "email", "password_hash", "status",
}

// CreateDriver creates a new driver
func (s *SQLStore) CreateDriver(ctx context.Context, driver *models.Driver) error {
	if driver.ID == uuid.Nil {
		driver.ID = uuid.New()
	}
	now := models.Now()
	driver.CreatedAt = now
	driver.UpdatedAt = now
	if driver.Status == "" {
		driver.Status = models.DriverOffline
	}

	_, err := s.exec(ctx, s.sb.Insert("drivers").
		Columns(driverColumns...).
		Values(driver.ID, driver.TenantID, driver.CreatedAt, driver.UpdatedAt, nil,
			driver.Name, driver.Phone, driver.Email, driver.PasswordHash, driver.Status))
	return err
}

// GetDriver gets a driver of the tenant by ID
func (s *SQLStore) GetDriver(ctx context.Context, tenantID, id uuid.UUID) (*models.Driver, error) {
	driver := &models.Driver{}
	err := s.get(ctx, driver, s.sb.Select(driverColumns...).From("drivers").
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// FindDriversByPhone returns every live driver with the phone number,
// whatever the tenant.
func (s *SQLStore) FindDriversByPhone(ctx context.Context, phone string) ([]*models.Driver, error) {
	var drivers []*models.Driver
	err := s.selectRows(ctx, &drivers, s.sb.Select(driverColumns...).From("drivers").
		Where("phone = ? AND deleted_at IS NULL", phone).
		OrderBy("created_at"))
	return drivers, err
}

// UpdateDriver updates a driver's profile fields
func (s *SQLStore) UpdateDriver(ctx context.Context, driver *models.Driver) error {
	driver.UpdatedAt = models.Now()
	return s.execOne(ctx, s.sb.Update("drivers").
		Set("updated_at", driver.UpdatedAt).
		Set("name", driver.Name).
		Set("phone", driver.Phone).
		Set("email", driver.Email).
		Set("password_hash", driver.PasswordHash).
		Set("status", driver.Status).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", driver.TenantID, driver.ID))
}

// SetDriverStatus changes only the driver's status
func (s *SQLStore) SetDriverStatus(ctx context.Context, tenantID, id uuid.UUID, status models.DriverStatus) error {
	return s.execOne(ctx, s.sb.Update("drivers").
		Set("status", status).
		Set("updated_at", models.Now()).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
}

// DeleteDriver soft-deletes a driver
func (s *SQLStore) DeleteDriver(ctx context.Context, tenantID, id uuid.UUID) error {
	now := models.Now()
	return s.execOne(ctx, s.sb.Update("drivers").
		Set("deleted_at", now).
		Set("updated_at", now).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
}

// ListDrivers lists the tenant's drivers
func (s *SQLStore) ListDrivers(ctx context.Context, tenantID uuid.UUID, filter DriverFilter, page Page) ([]*models.Driver, int64, error) {
	where := sq.And{sq.Expr("tenant_id = ? AND deleted_at IS NULL", tenantID)}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, sq.Eq{"status": statuses})
	}

	total, err := s.count(ctx, s.sb.Select("COUNT(*)").From("drivers").Where(where))
	if err != nil {
		return nil, 0, err
	}

	drivers := []*models.Driver{}
	err = s.selectRows(ctx, &drivers, paginate(s.sb.Select(driverColumns...).From("drivers").
		Where(where).OrderBy("name", "created_at"), page))
	if err != nil {
		return nil, 0, err
	}
	return drivers, total, nil
}

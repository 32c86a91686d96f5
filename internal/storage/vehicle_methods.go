package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

var vehicleColumns = []string{
	"id", "tenant_id", "created_at", "updated_at", "deleted_at",
	"plate_number", "make", "model", "year", "driver_id",
}

// CreateVehicle creates a new vehicle
func (s *SQLStore) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle.ID == uuid.Nil {
		vehicle.ID = uuid.New()
	}
	now := models.Now()
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now

	_, err := s.exec(ctx, s.sb.Insert("vehicles").
		Columns(vehicleColumns...).
		Values(vehicle.ID, vehicle.TenantID, vehicle.CreatedAt, vehicle.UpdatedAt, nil,
			vehicle.PlateNumber, vehicle.Make, vehicle.Model, vehicle.Year, vehicle.DriverID))
	return err
}

// GetVehicle gets a vehicle of the tenant by ID
func (s *SQLStore) GetVehicle(ctx context.Context, tenantID, id uuid.UUID) (*models.Vehicle, error) {
	vehicle := &models.Vehicle{}
	err := s.get(ctx, vehicle, s.sb.Select(vehicleColumns...).From("vehicles").
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
	if err != nil {
		return nil, err
	}
	return vehicle, nil
}

// GetVehicleByDriver gets the vehicle currently driven by driverID
func (s *SQLStore) GetVehicleByDriver(ctx context.Context, tenantID, driverID uuid.UUID) (*models.Vehicle, error) {
	vehicle := &models.Vehicle{}
	err := s.get(ctx, vehicle, s.sb.Select(vehicleColumns...).From("vehicles").
		Where("tenant_id = ? AND driver_id = ? AND deleted_at IS NULL", tenantID, driverID))
	if err != nil {
		return nil, err
	}
	return vehicle, nil
}

// UpdateVehicle updates a vehicle
func (s *SQLStore) UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	vehicle.UpdatedAt = models.Now()
	return s.execOne(ctx, s.sb.Update("vehicles").
		Set("updated_at", vehicle.UpdatedAt).
		Set("plate_number", vehicle.PlateNumber).
		Set("make", vehicle.Make).
		Set("model", vehicle.Model).
		Set("year", vehicle.Year).
		Set("driver_id", vehicle.DriverID).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", vehicle.TenantID, vehicle.ID))
}

// ReleaseDriverVehicles clears driverID from the tenant's vehicles other
// than keep.
func (s *SQLStore) ReleaseDriverVehicles(ctx context.Context, tenantID, driverID uuid.UUID, keep *uuid.UUID) ([]uuid.UUID, error) {
	sel := s.sb.Select("id").From("vehicles").
		Where("tenant_id = ? AND driver_id = ? AND deleted_at IS NULL", tenantID, driverID)
	upd := s.sb.Update("vehicles").
		Set("driver_id", nil).
		Set("updated_at", models.Now()).
		Where("tenant_id = ? AND driver_id = ? AND deleted_at IS NULL", tenantID, driverID)
	if keep != nil {
		sel = sel.Where("id <> ?", *keep)
		upd = upd.Where("id <> ?", *keep)
	}

	var ids []uuid.UUID
	if err := s.selectRows(ctx, &ids, sel); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := s.exec(ctx, upd); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteVehicle soft-deletes a vehicle and releases its driver
func (s *SQLStore) DeleteVehicle(ctx context.Context, tenantID, id uuid.UUID) error {
	now := models.Now()
	return s.execOne(ctx, s.sb.Update("vehicles").
		Set("deleted_at", now).
		Set("updated_at", now).
		Set("driver_id", nil).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
}

// ListVehicles lists the tenant's vehicles
func (s *SQLStore) ListVehicles(ctx context.Context, tenantID uuid.UUID, page Page) ([]*models.Vehicle, int64, error) {
	const where = "tenant_id = ? AND deleted_at IS NULL"

	total, err := s.count(ctx, s.sb.Select("COUNT(*)").From("vehicles").Where(where, tenantID))
	if err != nil {
		return nil, 0, err
	}

	vehicles := []*models.Vehicle{}
	err = s.selectRows(ctx, &vehicles, paginate(s.sb.Select(vehicleColumns...).From("vehicles").
		Where(where, tenantID).OrderBy("plate_number"), page))
	if err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

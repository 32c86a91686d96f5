package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
	"github.com/fleetdispatch/fleet-dispatch-server/pkg/crypto"
)

// DriverInput holds the fields of a new driver. Password is optional;
// drivers without one cannot sign in.
type DriverInput struct {
	Name     string
	Phone    string
	Email    string
	Password string
	Status   models.DriverStatus
}

// CreateDriver creates a driver, offline unless a status is given.
func (s *Service) CreateDriver(ctx context.Context, tenantID uuid.UUID, in DriverInput) (*models.Driver, error) {
	const op = "dispatch.CreateDriver"

	if in.Status != "" && !in.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown driver status")
	}

	driver := &models.Driver{
		Name:   strings.TrimSpace(in.Name),
		Phone:  strings.TrimSpace(in.Phone),
		Email:  strings.TrimSpace(in.Email),
		Status: in.Status,
	}
	driver.TenantID = tenantID
	if in.Password != "" {
		hash, err := crypto.HashPassword(in.Password)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		driver.PasswordHash = hash
	}

	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		if err := tx.CreateDriver(ctx, driver); err != nil {
			return translate(op, "driver", err)
		}
		out.add(events.DriverCreated, tenantID, driver)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// GetDriver returns a driver with the vehicle assigned to it, if any.
func (s *Service) GetDriver(ctx context.Context, tenantID, id uuid.UUID) (*models.Driver, error) {
	const op = "dispatch.GetDriver"

	driver, err := s.store.GetDriver(ctx, tenantID, id)
	if err != nil {
		return nil, translate(op, "driver", err)
	}
	if driver.Vehicle, err = optional(s.store.GetVehicleByDriver(ctx, tenantID, id)); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return driver, nil
}

// ListDrivers lists drivers by name, optionally narrowed to some statuses.
func (s *Service) ListDrivers(ctx context.Context, tenantID uuid.UUID, filter storage.DriverFilter, page storage.Page) ([]*models.Driver, int64, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, 0, apperr.Invalid("status", "unknown driver status")
		}
	}
	drivers, total, err := s.store.ListDrivers(ctx, tenantID, filter, page)
	if err != nil {
		return nil, 0, apperr.Internal("dispatch.ListDrivers", err)
	}
	return drivers, total, nil
}

// ListAvailableDrivers lists the drivers that can take an order.
func (s *Service) ListAvailableDrivers(ctx context.Context, tenantID uuid.UUID) ([]*models.Driver, error) {
	drivers, _, err := s.ListDrivers(ctx, tenantID, storage.DriverFilter{
		Statuses: []models.DriverStatus{models.DriverAvailable, models.DriverOffline},
	}, storage.Page{})
	return drivers, err
}

// UpdateDriver applies patch to a driver.
func (s *Service) UpdateDriver(ctx context.Context, tenantID, id uuid.UUID, patch models.DriverPatch) (*models.Driver, error) {
	const op = "dispatch.UpdateDriver"

	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown driver status")
	}
	var hash string
	if patch.Password != nil {
		var err error
		if hash, err = crypto.HashPassword(*patch.Password); err != nil {
			return nil, apperr.Internal(op, err)
		}
	}

	var driver *models.Driver
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		var err error
		driver, err = tx.GetDriver(ctx, tenantID, id)
		if err != nil {
			return translate(op, "driver", err)
		}

		if patch.Name != nil {
			driver.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Phone != nil {
			driver.Phone = strings.TrimSpace(*patch.Phone)
		}
		if patch.Email != nil {
			driver.Email = strings.TrimSpace(*patch.Email)
		}
		if patch.Password != nil {
			driver.PasswordHash = hash
		}
		if patch.Status != nil {
			driver.Status = *patch.Status
		}

		if err := tx.UpdateDriver(ctx, driver); err != nil {
			return translate(op, "driver", err)
		}
		out.add(events.DriverUpdated, tenantID, driver)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// DeleteDriver soft-deletes a driver and detaches it from its vehicle.
func (s *Service) DeleteDriver(ctx context.Context, tenantID, id uuid.UUID) error {
	const op = "dispatch.DeleteDriver"

	return s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		if err := tx.DeleteDriver(ctx, tenantID, id); err != nil {
			return translate(op, "driver", err)
		}
		released, err := tx.ReleaseDriverVehicles(ctx, tenantID, id, nil)
		if err != nil {
			return apperr.Internal(op, err)
		}
		return queueVehicles(ctx, tx, out, tenantID, released)
	})
}

// DriverLocation returns the latest tracking point of a driver, or nil when
// it never reported one.
func (s *Service) DriverLocation(ctx context.Context, tenantID, id uuid.UUID) (*models.TrackingPoint, error) {
	const op = "dispatch.DriverLocation"

	if _, err := s.store.GetDriver(ctx, tenantID, id); err != nil {
		return nil, translate(op, "driver", err)
	}
	latest, err := s.store.LatestTrackingPoints(ctx, tenantID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return latest[id], nil
}

// VehicleInput holds the fields of a new vehicle.
type VehicleInput struct {
	PlateNumber string
	Make        string
	Model       string
	Year        *int
	DriverID    *uuid.UUID
}

// CreateVehicle creates a vehicle. A driver given here is first detached
// from any other vehicle of the tenant.
func (s *Service) CreateVehicle(ctx context.Context, tenantID uuid.UUID, in VehicleInput) (*models.Vehicle, error) {
	const op = "dispatch.CreateVehicle"

	vehicle := &models.Vehicle{
		PlateNumber: strings.TrimSpace(in.PlateNumber),
		Make:        in.Make,
		Model:       in.Model,
		Year:        in.Year,
		DriverID:    in.DriverID,
	}
	vehicle.TenantID = tenantID

	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		if in.DriverID != nil {
			if _, err := tenantDriver(ctx, tx, tenantID, *in.DriverID); err != nil {
				return err
			}
			released, err := tx.ReleaseDriverVehicles(ctx, tenantID, *in.DriverID, nil)
			if err != nil {
				return apperr.Internal(op, err)
			}
			if err := queueVehicles(ctx, tx, out, tenantID, released); err != nil {
				return err
			}
		}

		if err := tx.CreateVehicle(ctx, vehicle); err != nil {
			return translate(op, "vehicle", err)
		}
		out.add(events.VehicleCreated, tenantID, vehicle)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vehicle, nil
}

// GetVehicle returns a vehicle
func (s *Service) GetVehicle(ctx context.Context, tenantID, id uuid.UUID) (*models.Vehicle, error) {
	vehicle, err := s.store.GetVehicle(ctx, tenantID, id)
	if err != nil {
		return nil, translate("dispatch.GetVehicle", "vehicle", err)
	}
	return vehicle, nil
}

// ListVehicles lists vehicles by plate number
func (s *Service) ListVehicles(ctx context.Context, tenantID uuid.UUID, page storage.Page) ([]*models.Vehicle, int64, error) {
	vehicles, total, err := s.store.ListVehicles(ctx, tenantID, page)
	if err != nil {
		return nil, 0, apperr.Internal("dispatch.ListVehicles", err)
	}
	return vehicles, total, nil
}

// UpdateVehicle applies patch to a vehicle. Assigning a driver detaches it
// from every other vehicle of the tenant first.
func (s *Service) UpdateVehicle(ctx context.Context, tenantID, id uuid.UUID, patch models.VehiclePatch) (*models.Vehicle, error) {
	const op = "dispatch.UpdateVehicle"

	var vehicle *models.Vehicle
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		var err error
		vehicle, err = tx.GetVehicle(ctx, tenantID, id)
		if err != nil {
			return translate(op, "vehicle", err)
		}

		if patch.PlateNumber != nil {
			vehicle.PlateNumber = strings.TrimSpace(*patch.PlateNumber)
		}
		if patch.Make != nil {
			vehicle.Make = *patch.Make
		}
		if patch.Model != nil {
			vehicle.Model = *patch.Model
		}
		if patch.Year != nil {
			vehicle.Year = patch.Year
		}

		switch {
		case patch.ClearDriver:
			vehicle.DriverID = nil
		case patch.DriverID != nil:
			if _, err := tenantDriver(ctx, tx, tenantID, *patch.DriverID); err != nil {
				return err
			}
			released, err := tx.ReleaseDriverVehicles(ctx, tenantID, *patch.DriverID, &vehicle.ID)
			if err != nil {
				return apperr.Internal(op, err)
			}
			if err := queueVehicles(ctx, tx, out, tenantID, released); err != nil {
				return err
			}
			vehicle.DriverID = patch.DriverID
		}

		if err := tx.UpdateVehicle(ctx, vehicle); err != nil {
			return translate(op, "vehicle", err)
		}
		out.add(events.VehicleUpdated, tenantID, vehicle)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vehicle, nil
}

// DeleteVehicle soft-deletes a vehicle
func (s *Service) DeleteVehicle(ctx context.Context, tenantID, id uuid.UUID) error {
	const op = "dispatch.DeleteVehicle"
	if err := s.store.DeleteVehicle(ctx, tenantID, id); err != nil {
		return translate(op, "vehicle", err)
	}
	return nil
}

// queueVehicles queues vehicle:updated for vehicles changed as a side effect.
func queueVehicles(ctx context.Context, tx storage.Store, out *pending, tenantID uuid.UUID, ids []uuid.UUID) error {
	for _, id := range ids {
		v, err := tx.GetVehicle(ctx, tenantID, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return apperr.Internal("dispatch.queueVehicles", err)
		}
		out.add(events.VehicleUpdated, tenantID, v)
	}
	return nil
}

// LocationInput holds the fields of a new location.
type LocationInput struct {
	Name      string
	Address   string
	Latitude  *float64
	Longitude *float64
	Type      models.LocationType
}

func validLocationType(t models.LocationType) bool {
	switch t {
	case "", models.LocationWarehouse, models.LocationPort, models.LocationDistributionCenter, models.LocationCustomer:
		return true
	}
	return false
}

// CreateLocation creates a location
func (s *Service) CreateLocation(ctx context.Context, tenantID uuid.UUID, in LocationInput) (*models.Location, error) {
	if !validLocationType(in.Type) {
		return nil, apperr.Invalid("type", "unknown location type")
	}
	location := &models.Location{
		Name:      strings.TrimSpace(in.Name),
		Address:   in.Address,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Type:      in.Type,
	}
	location.TenantID = tenantID

	if err := s.store.CreateLocation(ctx, location); err != nil {
		return nil, translate("dispatch.CreateLocation", "location", err)
	}
	return location, nil
}

// GetLocation returns a location
func (s *Service) GetLocation(ctx context.Context, tenantID, id uuid.UUID) (*models.Location, error) {
	location, err := s.store.GetLocation(ctx, tenantID, id)
	if err != nil {
		return nil, translate("dispatch.GetLocation", "location", err)
	}
	return location, nil
}

// ListLocations lists locations, optionally of one type
func (s *Service) ListLocations(ctx context.Context, tenantID uuid.UUID, filter storage.LocationFilter, page storage.Page) ([]*models.Location, int64, error) {
	if filter.Type != nil && (*filter.Type == "" || !validLocationType(*filter.Type)) {
		return nil, 0, apperr.Invalid("type", "unknown location type")
	}
	locations, total, err := s.store.ListLocations(ctx, tenantID, filter, page)
	if err != nil {
		return nil, 0, apperr.Internal("dispatch.ListLocations", err)
	}
	return locations, total, nil
}

// UpdateLocation applies patch to a location
func (s *Service) UpdateLocation(ctx context.Context, tenantID, id uuid.UUID, patch models.LocationPatch) (*models.Location, error) {
	const op = "dispatch.UpdateLocation"

	if patch.Type != nil && !validLocationType(*patch.Type) {
		return nil, apperr.Invalid("type", "unknown location type")
	}

	location, err := s.store.GetLocation(ctx, tenantID, id)
	if err != nil {
		return nil, translate(op, "location", err)
	}
	if patch.Name != nil {
		location.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Address != nil {
		location.Address = *patch.Address
	}
	if patch.Latitude != nil {
		location.Latitude = patch.Latitude
	}
	if patch.Longitude != nil {
		location.Longitude = patch.Longitude
	}
	if patch.Type != nil {
		location.Type = *patch.Type
	}

	if err := s.store.UpdateLocation(ctx, location); err != nil {
		return nil, translate(op, "location", err)
	}
	return location, nil
}

// DeleteLocation soft-deletes a location. Orders keep pointing at it.
func (s *Service) DeleteLocation(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.store.DeleteLocation(ctx, tenantID, id); err != nil {
		return translate("dispatch.DeleteLocation", "location", err)
	}
	return nil
}

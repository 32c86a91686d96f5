package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
)

// History window bounds, in hours.
const (
	DefaultHistoryHours = 24
	MaxHistoryHours     = 168
)

var activeStatuses = []models.OrderStatus{models.OrderAssigned, models.OrderInProgress}

// TrackingInput is one GPS fix reported by a driver. RecordedAt defaults to
// the time the point is stored.
type TrackingInput struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	Speed      *float64
	Heading    *float64
	RecordedAt *time.Time
}

// RecordTrackingPoint appends a fix for the calling driver and broadcasts it
// as driver:location. Staff principals have no position to report.
func (s *Service) RecordTrackingPoint(ctx context.Context, p auth.Principal, in TrackingInput) (*models.TrackingPoint, error) {
	const op = "dispatch.RecordTrackingPoint"

	if !p.IsDriver() {
		return nil, &apperr.Error{Code: apperr.EForbidden, Msg: "only drivers can report tracking points"}
	}
	if in.Latitude < -90 || in.Latitude > 90 {
		return nil, apperr.Invalid("latitude", "must be between -90 and 90")
	}
	if in.Longitude < -180 || in.Longitude > 180 {
		return nil, apperr.Invalid("longitude", "must be between -180 and 180")
	}

	point := &models.TrackingPoint{
		TenantID:  p.TenantID,
		DriverID:  p.SubjectID,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Accuracy:  in.Accuracy,
		Speed:     in.Speed,
		Heading:   in.Heading,
	}
	if in.RecordedAt != nil {
		point.RecordedAt = in.RecordedAt.UTC().Truncate(time.Microsecond)
	}

	if err := s.store.CreateTrackingPoint(ctx, point); err != nil {
		return nil, translate(op, "tracking point", err)
	}

	var out pending
	out.add(events.DriverLocation, p.TenantID, point)
	s.publish(ctx, out)
	return point, nil
}

// VehiclePositions returns the latest fix of every driver that has a vehicle,
// together with the order the driver is working on, if any.
func (s *Service) VehiclePositions(ctx context.Context, tenantID uuid.UUID) ([]*models.VehiclePosition, error) {
	const op = "dispatch.VehiclePositions"

	latest, err := s.store.LatestTrackingPoints(ctx, tenantID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	positions := []*models.VehiclePosition{}
	for driverID, point := range latest {
		driver, err := optional(s.store.GetDriver(ctx, tenantID, driverID))
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		if driver == nil {
			continue
		}
		vehicle, err := optional(s.store.GetVehicleByDriver(ctx, tenantID, driverID))
		if err != nil {
			return nil, apperr.Internal(op, err)
		}
		if vehicle == nil {
			continue
		}
		active, err := s.activeOrder(ctx, tenantID, driverID)
		if err != nil {
			return nil, apperr.Internal(op, err)
		}

		positions = append(positions, &models.VehiclePosition{
			DriverID:     driver.ID,
			DriverName:   driver.Name,
			DriverPhone:  driver.Phone,
			DriverStatus: driver.Status,
			Vehicle:      vehicle,
			Latitude:     point.Latitude,
			Longitude:    point.Longitude,
			Speed:        point.Speed,
			Heading:      point.Heading,
			RecordedAt:   point.RecordedAt,
			ActiveOrder:  active,
		})
	}
	return positions, nil
}

func (s *Service) activeOrder(ctx context.Context, tenantID, driverID uuid.UUID) (*models.Order, error) {
	orders, _, err := s.store.ListOrders(ctx, tenantID, storage.OrderFilter{
		Statuses: activeStatuses,
		DriverID: &driverID,
	}, storage.Page{Limit: 1})
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return orders[0], nil
}

// History returns a driver's fixes over the last hours, oldest first. hours
// outside 1..MaxHistoryHours falls back to the nearest bound, zero to the
// default window.
func (s *Service) History(ctx context.Context, tenantID, driverID uuid.UUID, hours int) ([]*models.TrackingPoint, error) {
	const op = "dispatch.History"

	switch {
	case hours <= 0:
		hours = DefaultHistoryHours
	case hours > MaxHistoryHours:
		hours = MaxHistoryHours
	}

	if _, err := s.store.GetDriver(ctx, tenantID, driverID); err != nil {
		return nil, translate(op, "driver", err)
	}
	since := s.now().Add(-time.Duration(hours) * time.Hour)
	points, err := s.store.ListTrackingPoints(ctx, tenantID, driverID, since)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return points, nil
}

// ActiveOrders lists assigned and in-progress orders with their driver's
// current position.
func (s *Service) ActiveOrders(ctx context.Context, tenantID uuid.UUID) ([]*models.ActiveOrderTracking, error) {
	const op = "dispatch.ActiveOrders"

	orders, _, err := s.store.ListOrders(ctx, tenantID, storage.OrderFilter{Statuses: activeStatuses}, storage.Page{})
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	latest, err := s.store.LatestTrackingPoints(ctx, tenantID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	result := make([]*models.ActiveOrderTracking, 0, len(orders))
	for _, order := range orders {
		d, err := s.detail(ctx, order)
		if err != nil {
			return nil, err
		}
		item := &models.ActiveOrderTracking{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
			Driver:      d.Driver,
			Vehicle:     d.Vehicle,
			Pickup:      d.PickupLocation,
			Delivery:    d.DeliveryLocation,
		}
		if order.DriverID != nil {
			item.CurrentPosition = latest[*order.DriverID]
		}
		result = append(result, item)
	}
	return result, nil
}

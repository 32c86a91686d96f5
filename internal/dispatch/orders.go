package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/apperr"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/events"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
)

const orderCounter = "order_number"

// transitions lists the statuses reachable from each status through a
// generic update. Assign, start, complete and cancel follow the same graph.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderNew:        {models.OrderAssigned, models.OrderCancelled},
	models.OrderAssigned:   {models.OrderInProgress, models.OrderCompleted, models.OrderCancelled},
	models.OrderInProgress: {models.OrderCompleted, models.OrderCancelled},
}

// CanTransition reports whether an order may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to models.OrderStatus) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func illegalTransition(from, to models.OrderStatus) error {
	return apperr.Conflict(fmt.Sprintf("cannot move order from %s to %s", from, to))
}

// OrderInput holds the fields of a new order.
type OrderInput struct {
	PickupLocationID   uuid.UUID
	DeliveryLocationID uuid.UUID
	ScheduledAt        *time.Time
	Notes              string
	CustomerName       string
	CustomerPhone      string
	Metadata           models.Variables
}

// OrderDetail is an order with its related records resolved. Relations that
// have since been deleted are left nil.
type OrderDetail struct {
	*models.Order
	PickupLocation   *models.Location        `json:"pickupLocation"`
	DeliveryLocation *models.Location        `json:"deliveryLocation"`
	Driver           *models.Driver          `json:"driver"`
	Vehicle          *models.Vehicle         `json:"vehicle"`
	ProofOfDelivery  *models.ProofOfDelivery `json:"proofOfDelivery"`
}

// loadOrder fetches an order visible to p. Drivers only see orders assigned
// to them; anything else is reported as missing.
func loadOrder(ctx context.Context, store storage.Store, op string, p auth.Principal, id uuid.UUID) (*models.Order, error) {
	order, err := store.GetOrder(ctx, p.TenantID, id)
	if err != nil {
		return nil, translate(op, "order", err)
	}
	if p.IsDriver() && (order.DriverID == nil || *order.DriverID != p.SubjectID) {
		return nil, apperr.NotFound("order")
	}
	return order, nil
}

func requireLocation(ctx context.Context, store storage.Store, tenantID, id uuid.UUID, field string) error {
	if id == uuid.Nil {
		return apperr.Invalid(field, "is required")
	}
	if _, err := store.GetLocation(ctx, tenantID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.Invalid(field, "location not found")
		}
		return apperr.Internal("dispatch.requireLocation", err)
	}
	return nil
}

// tenantDriver resolves a driver the caller wants to reference. A driver
// outside the tenant is a tenant mismatch, never a not-found.
func tenantDriver(ctx context.Context, store storage.Store, tenantID, id uuid.UUID) (*models.Driver, error) {
	driver, err := store.GetDriver(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, tenantMismatch("driverId")
		}
		return nil, apperr.Internal("dispatch.tenantDriver", err)
	}
	return driver, nil
}

func tenantVehicle(ctx context.Context, store storage.Store, tenantID, id uuid.UUID) (*models.Vehicle, error) {
	vehicle, err := store.GetVehicle(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, tenantMismatch("vehicleId")
		}
		return nil, apperr.Internal("dispatch.tenantVehicle", err)
	}
	return vehicle, nil
}

// CreateOrder creates an order in status new with the next order number of
// the tenant.
func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, in OrderInput) (*models.Order, error) {
	const op = "dispatch.CreateOrder"

	var order *models.Order
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		if err := requireLocation(ctx, tx, p.TenantID, in.PickupLocationID, "pickupLocationId"); err != nil {
			return err
		}
		if err := requireLocation(ctx, tx, p.TenantID, in.DeliveryLocationID, "deliveryLocationId"); err != nil {
			return err
		}

		n, err := tx.NextCounter(ctx, p.TenantID, orderCounter)
		if err != nil {
			return apperr.Internal(op, err)
		}

		pickup, delivery := in.PickupLocationID, in.DeliveryLocationID
		order = &models.Order{
			OrderNumber:        fmt.Sprintf("%s-%d-%04d", s.opts.OrderNumberPrefix, s.now().Year(), n),
			Status:             models.OrderNew,
			PickupLocationID:   &pickup,
			DeliveryLocationID: &delivery,
			ScheduledAt:        in.ScheduledAt,
			Notes:              in.Notes,
			CustomerName:       in.CustomerName,
			CustomerPhone:      in.CustomerPhone,
			Metadata:           in.Metadata,
		}
		order.TenantID = p.TenantID

		if err := tx.CreateOrder(ctx, order); err != nil {
			return translate(op, "order", err)
		}
		out.add(events.OrderCreated, p.TenantID, order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.OrderTransitioned(string(models.OrderNew))
	return order, nil
}

// GetOrder returns a live order
func (s *Service) GetOrder(ctx context.Context, p auth.Principal, id uuid.UUID) (*OrderDetail, error) {
	order, err := loadOrder(ctx, s.store, "dispatch.GetOrder", p, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, order)
}

// GetOrderForAudit returns an order even after it was deleted.
func (s *Service) GetOrderForAudit(ctx context.Context, p auth.Principal, id uuid.UUID) (*OrderDetail, error) {
	order, err := s.store.GetOrderForAudit(ctx, p.TenantID, id)
	if err != nil {
		return nil, translate("dispatch.GetOrderForAudit", "order", err)
	}
	return s.detail(ctx, order)
}

func (s *Service) detail(ctx context.Context, order *models.Order) (*OrderDetail, error) {
	const op = "dispatch.detail"
	d := &OrderDetail{Order: order}
	tenantID := order.TenantID

	var err error
	if order.PickupLocationID != nil {
		if d.PickupLocation, err = optional(s.store.GetLocation(ctx, tenantID, *order.PickupLocationID)); err != nil {
			return nil, apperr.Internal(op, err)
		}
	}
	if order.DeliveryLocationID != nil {
		if d.DeliveryLocation, err = optional(s.store.GetLocation(ctx, tenantID, *order.DeliveryLocationID)); err != nil {
			return nil, apperr.Internal(op, err)
		}
	}
	if order.DriverID != nil {
		if d.Driver, err = optional(s.store.GetDriver(ctx, tenantID, *order.DriverID)); err != nil {
			return nil, apperr.Internal(op, err)
		}
	}
	if order.VehicleID != nil {
		if d.Vehicle, err = optional(s.store.GetVehicle(ctx, tenantID, *order.VehicleID)); err != nil {
			return nil, apperr.Internal(op, err)
		}
	}
	if d.ProofOfDelivery, err = optional(s.store.GetProofOfDelivery(ctx, tenantID, order.ID)); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return d, nil
}

// optional turns ErrNotFound into a nil record.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// ListOrders lists orders newest first. Drivers only see their own.
func (s *Service) ListOrders(ctx context.Context, p auth.Principal, filter storage.OrderFilter, page storage.Page) ([]*models.Order, int64, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, 0, apperr.Invalid("status", "unknown order status")
		}
	}
	if p.IsDriver() {
		id := p.SubjectID
		filter.DriverID = &id
	}
	orders, total, err := s.store.ListOrders(ctx, p.TenantID, filter, page)
	if err != nil {
		return nil, 0, apperr.Internal("dispatch.ListOrders", err)
	}
	return orders, total, nil
}

// AssignOrder puts the order in the hands of driverID, optionally with
// vehicleID. The new driver goes on_trip and a replaced driver becomes
// available again, in the same transaction as the order.
func (s *Service) AssignOrder(ctx context.Context, p auth.Principal, id, driverID uuid.UUID, vehicleID *uuid.UUID) (*models.Order, error) {
	const op = "dispatch.AssignOrder"

	var order *models.Order
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		var err error
		order, err = loadOrder(ctx, tx, op, p, id)
		if err != nil {
			return err
		}
		if order.Status != models.OrderNew && order.Status != models.OrderAssigned {
			return illegalTransition(order.Status, models.OrderAssigned)
		}

		driver, err := tenantDriver(ctx, tx, p.TenantID, driverID)
		if err != nil {
			return err
		}
		if vehicleID != nil {
			if _, err := tenantVehicle(ctx, tx, p.TenantID, *vehicleID); err != nil {
				return err
			}
		}

		expected := order.Status
		previous := order.DriverID
		order.DriverID = &driver.ID
		order.VehicleID = vehicleID
		order.Status = models.OrderAssigned

		if err := tx.UpdateOrder(ctx, order, expected); err != nil {
			return translate(op, "order", err)
		}
		if err := s.reassignDrivers(ctx, tx, out, p.TenantID, previous, &driver.ID); err != nil {
			return err
		}
		out.add(events.OrderUpdated, p.TenantID, order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recorder.OrderTransitioned(string(models.OrderAssigned))
	return order, nil
}

// reassignDrivers moves a replaced driver back to available and the new one
// on_trip. Either may be nil.
func (s *Service) reassignDrivers(ctx context.Context, tx storage.Store, out *pending, tenantID uuid.UUID, previous, next *uuid.UUID) error {
	if previous != nil && (next == nil || *previous != *next) {
		if err := s.setDriverStatus(ctx, tx, out, tenantID, *previous, models.DriverAvailable); err != nil {
			return err
		}
	}
	if next != nil {
		if err := s.setDriverStatus(ctx, tx, out, tenantID, *next, models.DriverOnTrip); err != nil {
			return err
		}
	}
	return nil
}

// setDriverStatus updates a driver and queues driver:updated. A driver
// deleted in the meantime is skipped.
func (s *Service) setDriverStatus(ctx context.Context, tx storage.Store, out *pending, tenantID, id uuid.UUID, status models.DriverStatus) error {
	driver, err := tx.GetDriver(ctx, tenantID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Internal("dispatch.setDriverStatus", err)
	}
	if driver.Status == status {
		return nil
	}
	if err := tx.SetDriverStatus(ctx, tenantID, id, status); err != nil {
		return translate("dispatch.setDriverStatus", "driver", err)
	}
	driver.Status = status
	driver.UpdatedAt = s.now()
	out.add(events.DriverUpdated, tenantID, driver)
	return nil
}

// StartOrder moves an assigned order to in_progress. Starting an order that
// is already in progress changes nothing.
func (s *Service) StartOrder(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Order, error) {
	const op = "dispatch.StartOrder"

	var order *models.Order
	changed := false
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		var err error
		order, err = loadOrder(ctx, tx, op, p, id)
		if err != nil {
			return err
		}
		if order.Status == models.OrderInProgress {
			return nil
		}
		if order.Status != models.OrderAssigned {
			return illegalTransition(order.Status, models.OrderInProgress)
		}

		expected := order.Status
		s.applyStatus(order, models.OrderInProgress)
		if err := tx.UpdateOrder(ctx, order, expected); err != nil {
			return translate(op, "order", err)
		}
		changed = true
		out.add(events.OrderUpdated, p.TenantID, order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recorder.OrderTransitioned(string(models.OrderInProgress))
	}
	return order, nil
}

// CompleteOrder moves an assigned or in-progress order to completed and
// frees its driver. Completing a completed order changes nothing.
func (s *Service) CompleteOrder(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Order, error) {
	const op = "dispatch.CompleteOrder"

	var order *models.Order
	changed := false
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		var err error
		order, err = loadOrder(ctx, tx, op, p, id)
		if err != nil {
			return err
		}
		changed, err = s.complete(ctx, tx, out, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recorder.OrderTransitioned(string(models.OrderCompleted))
	}
	return order, nil
}

// complete applies completion to a loaded order inside tx. It reports
// whether anything changed.
func (s *Service) complete(ctx context.Context, tx storage.Store, out *pending, order *models.Order) (bool, error) {
	const op = "dispatch.complete"

	if order.Status == models.OrderCompleted {
		return false, nil
	}
	if !CanTransition(order.Status, models.OrderCompleted) {
		return false, illegalTransition(order.Status, models.OrderCompleted)
	}
	if s.opts.RequireProofOfDelivery {
		if _, err := tx.GetProofOfDelivery(ctx, order.TenantID, order.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return false, apperr.Conflict("proof of delivery is required to complete the order")
			}
			return false, apperr.Internal(op, err)
		}
	}

	expected := order.Status
	s.applyStatus(order, models.OrderCompleted)
	if err := tx.UpdateOrder(ctx, order, expected); err != nil {
		return false, translate(op, "order", err)
	}
	if err := s.reassignDrivers(ctx, tx, out, order.TenantID, order.DriverID, nil); err != nil {
		return false, err
	}
	out.add(events.OrderUpdated, order.TenantID, order)
	return true, nil
}

// CancelOrder cancels a non-terminal order and frees its driver. Cancelling
// a cancelled order changes nothing.
func (s *Service) CancelOrder(ctx context.Context, p auth.Principal, id uuid.UUID) (*models.Order, error) {
	const op = "dispatch.CancelOrder"

	var order *models.Order
	changed := false
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		var err error
		order, err = loadOrder(ctx, tx, op, p, id)
		if err != nil {
			return err
		}
		if order.Status == models.OrderCancelled {
			return nil
		}
		if !CanTransition(order.Status, models.OrderCancelled) {
			return illegalTransition(order.Status, models.OrderCancelled)
		}

		expected := order.Status
		s.applyStatus(order, models.OrderCancelled)
		if err := tx.UpdateOrder(ctx, order, expected); err != nil {
			return translate(op, "order", err)
		}
		if err := s.reassignDrivers(ctx, tx, out, p.TenantID, order.DriverID, nil); err != nil {
			return err
		}
		changed = true
		out.add(events.OrderUpdated, p.TenantID, order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.recorder.OrderTransitioned(string(models.OrderCancelled))
	}
	return order, nil
}

// applyStatus sets the status and the timestamps that come with it.
// StartedAt and CompletedAt are only ever set once.
func (s *Service) applyStatus(order *models.Order, status models.OrderStatus) {
	now := s.now()
	order.Status = status
	switch status {
	case models.OrderInProgress:
		if order.StartedAt == nil {
			order.StartedAt = &now
		}
	case models.OrderCompleted:
		if order.CompletedAt == nil {
			order.CompletedAt = &now
		}
	}
}

// UpdateOrder applies patch to a live order. Reference changes are checked
// against the tenant, and a status change must follow the lifecycle graph.
func (s *Service) UpdateOrder(ctx context.Context, p auth.Principal, id uuid.UUID, patch models.OrderPatch) (*models.Order, error) {
	const op = "dispatch.UpdateOrder"

	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Invalid("status", "unknown order status")
	}

	var order *models.Order
	var transitioned *models.OrderStatus
	err := s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		var err error
		order, err = loadOrder(ctx, tx, op, p, id)
		if err != nil {
			return err
		}
		if patch.Empty() {
			return nil
		}
		if order.Status.Terminal() {
			return apperr.Conflict(fmt.Sprintf("order is %s and can no longer be changed", order.Status))
		}

		if patch.PickupLocationID != nil {
			if err := requireLocation(ctx, tx, p.TenantID, *patch.PickupLocationID, "pickupLocationId"); err != nil {
				return err
			}
			order.PickupLocationID = patch.PickupLocationID
		}
		if patch.DeliveryLocationID != nil {
			if err := requireLocation(ctx, tx, p.TenantID, *patch.DeliveryLocationID, "deliveryLocationId"); err != nil {
				return err
			}
			order.DeliveryLocationID = patch.DeliveryLocationID
		}

		previous := order.DriverID
		switch {
		case patch.ClearDriver:
			order.DriverID = nil
		case patch.DriverID != nil:
			if _, err := tenantDriver(ctx, tx, p.TenantID, *patch.DriverID); err != nil {
				return err
			}
			order.DriverID = patch.DriverID
		}
		switch {
		case patch.ClearVehicle:
			order.VehicleID = nil
		case patch.VehicleID != nil:
			if _, err := tenantVehicle(ctx, tx, p.TenantID, *patch.VehicleID); err != nil {
				return err
			}
			order.VehicleID = patch.VehicleID
		}

		switch {
		case patch.ClearScheduledAt:
			order.ScheduledAt = nil
		case patch.ScheduledAt != nil:
			order.ScheduledAt = patch.ScheduledAt
		}
		if patch.Notes != nil {
			order.Notes = *patch.Notes
		}
		if patch.CustomerName != nil {
			order.CustomerName = *patch.CustomerName
		}
		if patch.CustomerPhone != nil {
			order.CustomerPhone = *patch.CustomerPhone
		}
		if patch.Metadata != nil {
			order.Metadata = patch.Metadata
		}

		expected := order.Status
		if patch.Status != nil && *patch.Status != order.Status {
			next := *patch.Status
			if !CanTransition(order.Status, next) {
				return illegalTransition(order.Status, next)
			}
			if next.Active() && order.DriverID == nil {
				return apperr.Invalid("driverId", "an order in this status needs a driver")
			}
			if next == models.OrderCompleted && s.opts.RequireProofOfDelivery {
				if _, err := tx.GetProofOfDelivery(ctx, p.TenantID, order.ID); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						return apperr.Conflict("proof of delivery is required to complete the order")
					}
					return apperr.Internal(op, err)
				}
			}
			s.applyStatus(order, next)
			transitioned = &next
		}
		if order.Status.Active() && order.DriverID == nil {
			return apperr.Invalid("driverId", "an order in this status needs a driver")
		}

		if err := tx.UpdateOrder(ctx, order, expected); err != nil {
			return translate(op, "order", err)
		}

		switch {
		case order.Status.Terminal():
			err = s.reassignDrivers(ctx, tx, out, p.TenantID, previous, nil)
		case !sameID(previous, order.DriverID):
			err = s.reassignDrivers(ctx, tx, out, p.TenantID, previous, order.DriverID)
		}
		if err != nil {
			return err
		}

		out.add(events.OrderUpdated, p.TenantID, order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned != nil {
		s.recorder.OrderTransitioned(string(*transitioned))
	}
	return order, nil
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DeleteOrder soft-deletes an order. A driver held by it becomes available.
func (s *Service) DeleteOrder(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	const op = "dispatch.DeleteOrder"

	return s.withTx(ctx, op, func(tx storage.Store, out *pending) error {
		order, err := loadOrder(ctx, tx, op, p, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, p.TenantID, id); err != nil {
			return translate(op, "order", err)
		}
		if order.Status.Terminal() {
			return nil
		}
		// a driver patched onto a new order is already on_trip
		return s.reassignDrivers(ctx, tx, out, p.TenantID, order.DriverID, nil)
	})
}

package storage

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

var orderColumns = []string{
	"id", "tenant_id", "created_at", "updated_at", "deleted_at",
	"order_number", "status", "pickup_location_id", "delivery_location_id",
	"driver_id", "vehicle_id", "scheduled_at", "started_at", "completed_at",
	"customer_name", "customer_phone", "notes", "metadata",
}

// CreateOrder creates a new order. OrderNumber must already be allocated.
func (s *SQLStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	now := models.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	if order.Status == "" {
		order.Status = models.OrderNew
	}
	if order.Metadata == nil {
		order.Metadata = models.Variables{}
	}

	_, err := s.exec(ctx, s.sb.Insert("orders").
		Columns(orderColumns...).
		Values(order.ID, order.TenantID, order.CreatedAt, order.UpdatedAt, nil,
			order.OrderNumber, order.Status, order.PickupLocationID, order.DeliveryLocationID,
			order.DriverID, order.VehicleID, order.ScheduledAt, order.StartedAt, order.CompletedAt,
			order.CustomerName, order.CustomerPhone, order.Notes, order.Metadata))
	return err
}

// GetOrder gets a live order of the tenant by ID
func (s *SQLStore) GetOrder(ctx context.Context, tenantID, id uuid.UUID) (*models.Order, error) {
	order := &models.Order{}
	err := s.get(ctx, order, s.sb.Select(orderColumns...).From("orders").
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrderForAudit gets an order of the tenant by ID including soft-deleted ones
func (s *SQLStore) GetOrderForAudit(ctx context.Context, tenantID, id uuid.UUID) (*models.Order, error) {
	order := &models.Order{}
	err := s.get(ctx, order, s.sb.Select(orderColumns...).From("orders").
		Where("tenant_id = ? AND id = ?", tenantID, id))
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrder writes every mutable order field, guarded by the expected
// current status.
func (s *SQLStore) UpdateOrder(ctx context.Context, order *models.Order, expected models.OrderStatus) error {
	order.UpdatedAt = models.Now()
	rows, err := s.exec(ctx, s.sb.Update("orders").
		Set("updated_at", order.UpdatedAt).
		Set("status", order.Status).
		Set("pickup_location_id", order.PickupLocationID).
		Set("delivery_location_id", order.DeliveryLocationID).
		Set("driver_id", order.DriverID).
		Set("vehicle_id", order.VehicleID).
		Set("scheduled_at", order.ScheduledAt).
		Set("started_at", order.StartedAt).
		Set("completed_at", order.CompletedAt).
		Set("customer_name", order.CustomerName).
		Set("customer_phone", order.CustomerPhone).
		Set("notes", order.Notes).
		Set("metadata", order.Metadata).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL AND status = ?",
			order.TenantID, order.ID, expected))
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetOrder(ctx, order.TenantID, order.ID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// DeleteOrder soft-deletes an order
func (s *SQLStore) DeleteOrder(ctx context.Context, tenantID, id uuid.UUID) error {
	now := models.Now()
	return s.execOne(ctx, s.sb.Update("orders").
		Set("deleted_at", now).
		Set("updated_at", now).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
}

// ListOrders lists the tenant's live orders, newest first
func (s *SQLStore) ListOrders(ctx context.Context, tenantID uuid.UUID, filter OrderFilter, page Page) ([]*models.Order, int64, error) {
	where := sq.And{sq.Expr("tenant_id = ? AND deleted_at IS NULL", tenantID)}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, sq.Eq{"status": statuses})
	}
	if filter.DriverID != nil {
		where = append(where, sq.Expr("driver_id = ?", *filter.DriverID))
	}

	total, err := s.count(ctx, s.sb.Select("COUNT(*)").From("orders").Where(where))
	if err != nil {
		return nil, 0, err
	}

	orders := []*models.Order{}
	err = s.selectRows(ctx, &orders, paginate(s.sb.Select(orderColumns...).From("orders").
		Where(where).OrderBy("created_at DESC", "order_number DESC"), page))
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderNew        OrderStatus = "new"
	OrderAssigned   OrderStatus = "assigned"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderNew, OrderAssigned, OrderInProgress, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// Active reports whether a driver is working the order.
func (s OrderStatus) Active() bool {
	return s == OrderAssigned || s == OrderInProgress
}

// Order is a single pickup-to-delivery job.
type Order struct {
	TenantModel
	SoftDelete

	OrderNumber string      `json:"orderNumber" db:"order_number"`
	Status      OrderStatus `json:"status" db:"status"`

	PickupLocationID   *uuid.UUID `json:"pickupLocationId" db:"pickup_location_id"`
	DeliveryLocationID *uuid.UUID `json:"deliveryLocationId" db:"delivery_location_id"`
	DriverID           *uuid.UUID `json:"driverId" db:"driver_id"`
	VehicleID          *uuid.UUID `json:"vehicleId" db:"vehicle_id"`

	ScheduledAt *time.Time `json:"scheduledAt" db:"scheduled_at"`
	StartedAt   *time.Time `json:"startedAt" db:"started_at"`
	CompletedAt *time.Time `json:"completedAt" db:"completed_at"`

	CustomerName  string    `json:"customerName,omitempty" db:"customer_name"`
	CustomerPhone string    `json:"customerPhone,omitempty" db:"customer_phone"`
	Notes         string    `json:"notes,omitempty" db:"notes"`
	Metadata      Variables `json:"metadata" db:"metadata"`
}

// OrderPatch enumerates every field a generic order update may change. A nil
// pointer leaves the field unchanged; the Clear flags null a reference.
type OrderPatch struct {
	PickupLocationID   *uuid.UUID
	DeliveryLocationID *uuid.UUID
	DriverID           *uuid.UUID
	ClearDriver        bool
	VehicleID          *uuid.UUID
	ClearVehicle       bool
	ScheduledAt        *time.Time
	ClearScheduledAt   bool
	Notes              *string
	CustomerName       *string
	CustomerPhone      *string
	Metadata           Variables
	Status             *OrderStatus
}

// Empty reports whether the patch changes nothing.
func (p OrderPatch) Empty() bool {
	return p.PickupLocationID == nil && p.DeliveryLocationID == nil &&
		p.DriverID == nil && !p.ClearDriver &&
		p.VehicleID == nil && !p.ClearVehicle &&
		p.ScheduledAt == nil && !p.ClearScheduledAt &&
		p.Notes == nil && p.CustomerName == nil && p.CustomerPhone == nil &&
		p.Metadata == nil && p.Status == nil
}

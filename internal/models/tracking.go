package models

import (
	"time"

	"github.com/google/uuid"
)

// TrackingPoint is one GPS fix reported by a driver. Points are append-only.
type TrackingPoint struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	TenantID  uuid.UUID `json:"tenantId" db:"tenant_id"`
	DriverID  uuid.UUID `json:"driverId" db:"driver_id"`

	Latitude  float64  `json:"latitude" db:"latitude"`
	Longitude float64  `json:"longitude" db:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty" db:"accuracy"`
	Speed     *float64 `json:"speed,omitempty" db:"speed"`
	Heading   *float64 `json:"heading,omitempty" db:"heading"`

	RecordedAt time.Time `json:"recordedAt" db:"recorded_at"`
}

// VehiclePosition is the latest known fix of a driver with a vehicle.
type VehiclePosition struct {
	DriverID     uuid.UUID    `json:"driverId"`
	DriverName   string       `json:"driverName"`
	DriverPhone  string       `json:"driverPhone"`
	DriverStatus DriverStatus `json:"driverStatus"`
	Vehicle      *Vehicle     `json:"vehicle"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Speed        *float64     `json:"speed,omitempty"`
	Heading      *float64     `json:"heading,omitempty"`
	RecordedAt   time.Time    `json:"recordedAt"`
	ActiveOrder  *Order       `json:"activeOrder"`
}

// ActiveOrderTracking joins an assigned or in-progress order with its
// driver's latest position.
type ActiveOrderTracking struct {
	OrderID         uuid.UUID      `json:"orderId"`
	OrderNumber     string         `json:"orderNumber"`
	Status          OrderStatus    `json:"status"`
	Driver          *Driver        `json:"driver"`
	Vehicle         *Vehicle       `json:"vehicle"`
	CurrentPosition *TrackingPoint `json:"currentPosition"`
	Pickup          *Location      `json:"pickup"`
	Delivery        *Location      `json:"delivery"`
}

package models

import "github.com/google/uuid"

// DriverStatus is the availability of a driver.
type DriverStatus string

const (
	DriverAvailable DriverStatus = "available"
	DriverOnTrip    DriverStatus = "on_trip"
	DriverOffline   DriverStatus = "offline"
	DriverBusy      DriverStatus = "busy"
)

// Valid reports whether s is a known driver status.
func (s DriverStatus) Valid() bool {
	switch s {
	case DriverAvailable, DriverOnTrip, DriverOffline, DriverBusy:
		return true
	}
	return false
}

// Driver is a field principal signing in from the mobile app by phone.
type Driver struct {
	TenantModel
	SoftDelete

	Name         string       `json:"name" db:"name"`
	Phone        string       `json:"phone" db:"phone"`
	Email        string       `json:"email,omitempty" db:"email"`
	PasswordHash string       `json:"-" db:"password_hash"`
	Status       DriverStatus `json:"status" db:"status"`

	Vehicle *Vehicle `json:"vehicle,omitempty" db:"-"`
}

// DriverPatch lists the driver fields an update may change. Nil means
// unchanged.
type DriverPatch struct {
	Name     *string
	Phone    *string
	Email    *string
	Password *string
	Status   *DriverStatus
}

// Vehicle belongs to one tenant and is driven by at most one driver.
type Vehicle struct {
	TenantModel
	SoftDelete

	PlateNumber string     `json:"plateNumber" db:"plate_number"`
	Make        string     `json:"make,omitempty" db:"make"`
	Model       string     `json:"model,omitempty" db:"model"`
	Year        *int       `json:"year,omitempty" db:"year"`
	DriverID    *uuid.UUID `json:"driverId,omitempty" db:"driver_id"`
}

// VehiclePatch lists the vehicle fields an update may change. ClearDriver
// detaches the current driver and takes precedence over DriverID.
type VehiclePatch struct {
	PlateNumber *string
	Make        *string
	Model       *string
	Year        *int
	DriverID    *uuid.UUID
	ClearDriver bool
}

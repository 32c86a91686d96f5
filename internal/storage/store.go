package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
	ErrConflict     = errors.New("concurrent modification")
)

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// DriverFilter narrows ListDrivers.
type DriverFilter struct {
	Statuses []models.DriverStatus
}

// LocationFilter narrows ListLocations.
type LocationFilter struct {
	Type *models.LocationType
}

// OrderFilter narrows ListOrders.
type OrderFilter struct {
	Statuses []models.OrderStatus
	DriverID *uuid.UUID
}

// Store defines the storage interface. Every method touching tenant-owned
// data takes the tenant id as a mandatory argument and applies it to the
// query predicate; reads skip soft-deleted rows unless the method name says
// otherwise.
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	Ping(ctx context.Context) error
	Close() error

	// Tenant methods
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetTenantBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
	UpdateTenantStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error)
	// FindUserByEmail resolves a sign-in identity before any tenant is known.
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	TouchUserLogin(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error

	// Driver methods
	CreateDriver(ctx context.Context, driver *models.Driver) error
	GetDriver(ctx context.Context, tenantID, id uuid.UUID) (*models.Driver, error)
	// FindDriversByPhone resolves sign-in candidates before any tenant is known.
	FindDriversByPhone(ctx context.Context, phone string) ([]*models.Driver, error)
	UpdateDriver(ctx context.Context, driver *models.Driver) error
	SetDriverStatus(ctx context.Context, tenantID, id uuid.UUID, status models.DriverStatus) error
	DeleteDriver(ctx context.Context, tenantID, id uuid.UUID) error
	ListDrivers(ctx context.Context, tenantID uuid.UUID, filter DriverFilter, page Page) ([]*models.Driver, int64, error)

	// Vehicle methods
	CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	GetVehicle(ctx context.Context, tenantID, id uuid.UUID) (*models.Vehicle, error)
	GetVehicleByDriver(ctx context.Context, tenantID, driverID uuid.UUID) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	// ReleaseDriverVehicles detaches driverID from every vehicle of the tenant
	// except keep, returning the ids of the vehicles changed.
	ReleaseDriverVehicles(ctx context.Context, tenantID, driverID uuid.UUID, keep *uuid.UUID) ([]uuid.UUID, error)
	DeleteVehicle(ctx context.Context, tenantID, id uuid.UUID) error
	ListVehicles(ctx context.Context, tenantID uuid.UUID, page Page) ([]*models.Vehicle, int64, error)

	// Location methods
	CreateLocation(ctx context.Context, location *models.Location) error
	GetLocation(ctx context.Context, tenantID, id uuid.UUID) (*models.Location, error)
	UpdateLocation(ctx context.Context, location *models.Location) error
	DeleteLocation(ctx context.Context, tenantID, id uuid.UUID) error
	ListLocations(ctx context.Context, tenantID uuid.UUID, filter LocationFilter, page Page) ([]*models.Location, int64, error)

	// Order methods
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, tenantID, id uuid.UUID) (*models.Order, error)
	// GetOrderForAudit returns the order even when it is soft-deleted.
	GetOrderForAudit(ctx context.Context, tenantID, id uuid.UUID) (*models.Order, error)
	// UpdateOrder writes order only if its stored status still equals
	// expected, returning ErrConflict otherwise.
	UpdateOrder(ctx context.Context, order *models.Order, expected models.OrderStatus) error
	DeleteOrder(ctx context.Context, tenantID, id uuid.UUID) error
	ListOrders(ctx context.Context, tenantID uuid.UUID, filter OrderFilter, page Page) ([]*models.Order, int64, error)

	// Counter methods
	NextCounter(ctx context.Context, tenantID uuid.UUID, name string) (int64, error)

	// Tracking methods
	CreateTrackingPoint(ctx context.Context, point *models.TrackingPoint) error
	ListTrackingPoints(ctx context.Context, tenantID, driverID uuid.UUID, since time.Time) ([]*models.TrackingPoint, error)
	LatestTrackingPoints(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]*models.TrackingPoint, error)

	// Proof of delivery methods
	SaveProofOfDelivery(ctx context.Context, pod *models.ProofOfDelivery) error
	GetProofOfDelivery(ctx context.Context, tenantID, orderID uuid.UUID) (*models.ProofOfDelivery, error)

	// Message methods
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, tenantID, orderID uuid.UUID) ([]*models.Message, error)
	MarkMessageRead(ctx context.Context, tenantID, id uuid.UUID, at time.Time) (*models.Message, error)
}

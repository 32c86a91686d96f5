// Package storetest provides a migrated SQLite store and record fixtures for
// tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
	"github.com/fleetdispatch/fleet-dispatch-server/pkg/crypto"
)

// Password is the plaintext password of every fixture principal.
const Password = "password123"

// NewStore opens a fresh, fully migrated SQLite database in a temporary
// directory. It is closed when the test ends.
func NewStore(t testing.TB) *storage.SQLStore {
	t.Helper()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "fleet.db")
	store, err := storage.Open(ctx, storage.DriverSQLite, dsn, storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(ctx))
	return store
}

func passwordHash(t testing.TB) string {
	t.Helper()
	hash, err := crypto.HashPasswordWithCost(Password, crypto.MinCost)
	require.NoError(t, err)
	return hash
}

// Tenant creates an active tenant.
func Tenant(t testing.TB, store storage.Store, subdomain string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: subdomain, Subdomain: subdomain}
	require.NoError(t, store.CreateTenant(context.Background(), tenant))
	return tenant
}

// User creates an active admin of tenantID signing in with Password.
func User(t testing.TB, store storage.Store, tenantID uuid.UUID, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		Name:         "Admin",
		PasswordHash: passwordHash(t),
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	user.TenantID = tenantID
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

// Driver creates an available driver of tenantID signing in with Password.
func Driver(t testing.TB, store storage.Store, tenantID uuid.UUID, name, phone string) *models.Driver {
	t.Helper()
	driver := &models.Driver{
		Name:         name,
		Phone:        phone,
		PasswordHash: passwordHash(t),
		Status:       models.DriverAvailable,
	}
	driver.TenantID = tenantID
	require.NoError(t, store.CreateDriver(context.Background(), driver))
	return driver
}

// Vehicle creates a vehicle of tenantID with no driver.
func Vehicle(t testing.TB, store storage.Store, tenantID uuid.UUID, plate string) *models.Vehicle {
	t.Helper()
	vehicle := &models.Vehicle{PlateNumber: plate, Make: "Volvo", Model: "FH16"}
	vehicle.TenantID = tenantID
	require.NoError(t, store.CreateVehicle(context.Background(), vehicle))
	return vehicle
}

// Location creates a warehouse location of tenantID.
func Location(t testing.TB, store storage.Store, tenantID uuid.UUID, name string) *models.Location {
	t.Helper()
	location := &models.Location{Name: name, Type: models.LocationWarehouse}
	location.TenantID = tenantID
	require.NoError(t, store.CreateLocation(context.Background(), location))
	return location
}

package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage/storetest"
)

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()

	store := storetest.NewStore(t)
	require.NoError(t, store.Migrate(context.Background()))
}

func TestNextCounterPerTenant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.NewStore(t)
	t1 := storetest.Tenant(t, store, "t1")
	t2 := storetest.Tenant(t, store, "t2")

	for want := int64(1); want <= 3; want++ {
		got, err := store.NextCounter(ctx, t1.ID, "order_number")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := store.NextCounter(ctx, t2.ID, "order_number")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestTenantScopedReads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.NewStore(t)
	t1 := storetest.Tenant(t, store, "t1")
	t2 := storetest.Tenant(t, store, "t2")
	d := storetest.Driver(t, store, t1.ID, "D", "+212600000001")

	_, err := store.GetDriver(ctx, t2.ID, d.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = store.DeleteDriver(ctx, t2.ID, d.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	got, err := store.GetDriver(ctx, t1.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "D", got.Name)
	assert.NotEmpty(t, got.PasswordHash)
}

func TestDuplicateKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.NewStore(t)
	t1 := storetest.Tenant(t, store, "t1")
	t2 := storetest.Tenant(t, store, "t2")
	storetest.Driver(t, store, t1.ID, "A", "+212600000001")

	dup := &models.Driver{Name: "B", Phone: "+212600000001", Status: models.DriverOffline}
	dup.TenantID = t1.ID
	err := store.CreateDriver(ctx, dup)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))

	// Phones are unique per tenant only.
	other := &models.Driver{Name: "C", Phone: "+212600000001", Status: models.DriverOffline}
	other.TenantID = t2.ID
	require.NoError(t, store.CreateDriver(ctx, other))

	candidates, err := store.FindDriversByPhone(ctx, "+212600000001")
	require.NoError(t, err)
	assert.Len(t, candidates, 2)

	err = store.CreateTenant(ctx, &models.Tenant{Name: "again", Subdomain: "t1"})
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
}

func TestSoftDeletedOrderAudit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.NewStore(t)
	tenant := storetest.Tenant(t, store, "acme")

	order := &models.Order{OrderNumber: "ORD-2026-0001"}
	order.TenantID = tenant.ID
	require.NoError(t, store.CreateOrder(ctx, order))
	require.NoError(t, store.DeleteOrder(ctx, tenant.ID, order.ID))

	_, err := store.GetOrder(ctx, tenant.ID, order.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	orders, total, err := store.ListOrders(ctx, tenant.ID, storage.OrderFilter{}, storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Zero(t, total)

	audit, err := store.GetOrderForAudit(ctx, tenant.ID, order.ID)
	require.NoError(t, err)
	assert.True(t, audit.IsDeleted())

	_, err = store.GetOrderForAudit(ctx, uuid.New(), order.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestUpdateOrderDetectsStatusRace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.NewStore(t)
	tenant := storetest.Tenant(t, store, "acme")

	order := &models.Order{OrderNumber: "ORD-2026-0001"}
	order.TenantID = tenant.ID
	require.NoError(t, store.CreateOrder(ctx, order))

	order.Status = models.OrderCancelled
	require.NoError(t, store.UpdateOrder(ctx, order, models.OrderNew))

	order.Status = models.OrderAssigned
	err := store.UpdateOrder(ctx, order, models.OrderNew)
	assert.True(t, errors.Is(err, storage.ErrConflict))
}

func TestReleaseDriverVehicles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.NewStore(t)
	tenant := storetest.Tenant(t, store, "acme")
	d := storetest.Driver(t, store, tenant.ID, "D", "+212600000001")
	v1 := storetest.Vehicle(t, store, tenant.ID, "11111-A-1")
	v2 := storetest.Vehicle(t, store, tenant.ID, "22222-B-2")

	v1.DriverID = &d.ID
	require.NoError(t, store.UpdateVehicle(ctx, v1))

	released, err := store.ReleaseDriverVehicles(ctx, tenant.ID, d.ID, &v2.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{v1.ID}, released)

	_, err = store.GetVehicleByDriver(ctx, tenant.ID, d.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestTransactionRollback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.NewStore(t)
	tenant := storetest.Tenant(t, store, "acme")

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	loc := &models.Location{Name: "Depot"}
	loc.TenantID = tenant.ID
	require.NoError(t, tx.CreateLocation(ctx, loc))
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())

	_, err = store.GetLocation(ctx, tenant.ID, loc.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestLatestTrackingPoints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storetest.NewStore(t)
	tenant := storetest.Tenant(t, store, "acme")
	d := storetest.Driver(t, store, tenant.ID, "D", "+212600000001")

	base := models.Now().Add(-10 * time.Minute)
	for i, lat := range []float64{33.57, 33.58, 33.59} {
		p := &models.TrackingPoint{
			TenantID:   tenant.ID,
			DriverID:   d.ID,
			Latitude:   lat,
			Longitude:  -7.59,
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateTrackingPoint(ctx, p))
	}

	latest, err := store.LatestTrackingPoints(ctx, tenant.ID)
	require.NoError(t, err)
	require.Contains(t, latest, d.ID)
	assert.InDelta(t, 33.59, latest[d.ID].Latitude, 1e-9)

	points, err := store.ListTrackingPoints(ctx, tenant.ID, d.ID, base)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.InDelta(t, 33.57, points[0].Latitude, 1e-9)
}

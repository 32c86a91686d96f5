package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage/storetest"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := storetest.NewStore(t)
	svc := dispatch.NewService(store, nil, dispatch.Options{}, nil)

	res, err := Run(ctx, store, svc)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Len(t, res.Orders, 2)

	assert.Equal(t, models.OrderAssigned, res.Orders[0].Status)
	assert.Equal(t, models.OrderNew, res.Orders[1].Status)

	driver, err := svc.GetDriver(ctx, res.Tenant.ID, res.Driver.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DriverOnTrip, driver.Status)
	require.NotNil(t, driver.Vehicle)
	assert.Equal(t, "A-12345", driver.Vehicle.PlateNumber)

	_, total, err := svc.ListLocations(ctx, res.Tenant.ID, storage.LocationFilter{}, storage.Page{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, len(sites), total)

	positions, err := svc.VehiclePositions(ctx, res.Tenant.ID)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	// the demo credentials sign in
	jwtCfg := config.Default().JWT
	jwtCfg.Secret = "test-secret"
	authSvc, err := auth.NewService(store, auth.NewJWTManager(&jwtCfg))
	require.NoError(t, err)
	_, err = authSvc.Authenticate(ctx, auth.Credentials{Email: AdminEmail, Password: DemoPassword})
	assert.NoError(t, err)
	_, err = authSvc.Authenticate(ctx, auth.Credentials{Phone: DriverPhone, Password: DemoPassword})
	assert.NoError(t, err)
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storetest.NewStore(t)
	svc := dispatch.NewService(store, nil, dispatch.Options{}, nil)

	first, err := Run(ctx, store, svc)
	require.NoError(t, err)

	second, err := Run(ctx, store, svc)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Tenant.ID, second.Tenant.ID)

	_, total, err := svc.ListOrders(ctx, auth.Principal{
		SubjectID: first.Admin.ID,
		TenantID:  first.Tenant.ID,
		Type:      auth.SubjectUser,
		Role:      models.RoleAdmin,
	}, storage.OrderFilter{}, storage.Page{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
}

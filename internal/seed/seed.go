// Package seed provisions the demo tenant used in development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/auth"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/dispatch"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
	"github.com/fleetdispatch/fleet-dispatch-server/pkg/crypto"
)

// Demo tenant credentials.
const (
	Subdomain     = "marinemaroc"
	AdminEmail    = "admin@marinemaroc.com"
	DriverPhone   = "+212600000001"
	DemoPassword  = "password123"
	demoOrderNote = "Heavy equipment, 15 tons"
)

// Result lists what Run created. Created is false when the tenant already
// existed and nothing was touched.
type Result struct {
	Created bool
	Tenant  *models.Tenant
	Admin   *models.User
	Driver  *models.Driver
	Orders  []*models.Order
}

type site struct {
	name, address string
	lat, lng      float64
	kind          models.LocationType
}

var sites = []site{
	{"Casablanca Warehouse", "Zone Industrielle, Casablanca", 33.5731, -7.5898, models.LocationWarehouse},
	{"Tangier Port", "Port de Tanger Med, Tangier", 35.7595, -5.8340, models.LocationPort},
	{"Marrakech Distribution Center", "Route de Safi, Marrakech", 31.6295, -7.9811, models.LocationDistributionCenter},
}

// route is a sample drive north from Casablanca, minutes relative to now.
var route = []struct {
	lat, lng float64
	ago      time.Duration
}{
	{33.5731, -7.5898, 120 * time.Minute},
	{33.8869, -6.9030, 90 * time.Minute},
	{34.2611, -6.5802, 60 * time.Minute},
	{35.1739, -6.1463, 30 * time.Minute},
	{35.5889, -5.8037, 15 * time.Minute},
}

// Run creates the demo tenant with an admin, locations, a driver with a
// vehicle, two orders and a short GPS track. It is a no-op when the tenant
// exists.
func Run(ctx context.Context, store storage.Store, svc *dispatch.Service) (*Result, error) {
	existing, err := store.GetTenantBySubdomain(ctx, Subdomain)
	switch {
	case err == nil:
		log.Info().Str("subdomain", Subdomain).Msg("Demo tenant already exists, skipping seed")
		return &Result{Tenant: existing}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("look up tenant: %w", err)
	}

	hash, err := crypto.HashPassword(DemoPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	res := &Result{Created: true}
	res.Tenant = &models.Tenant{
		Name:      "Marine Maroc",
		Subdomain: Subdomain,
		Settings: models.Variables{
			"localization": map[string]interface{}{
				"defaultLanguage":    "ar",
				"supportedLanguages": []string{"ar", "fr"},
			},
		},
	}
	if err := store.CreateTenant(ctx, res.Tenant); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	tenantID := res.Tenant.ID

	res.Admin = &models.User{
		Email:        AdminEmail,
		Name:         "Admin Marine Maroc",
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	res.Admin.TenantID = tenantID
	if err := store.CreateUser(ctx, res.Admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	admin := auth.Principal{
		SubjectID: res.Admin.ID,
		TenantID:  tenantID,
		Type:      auth.SubjectUser,
		Role:      models.RoleAdmin,
	}

	locations := make([]*models.Location, 0, len(sites))
	for _, st := range sites {
		lat, lng := st.lat, st.lng
		loc, err := svc.CreateLocation(ctx, tenantID, dispatch.LocationInput{
			Name:      st.name,
			Address:   st.address,
			Latitude:  &lat,
			Longitude: &lng,
			Type:      st.kind,
		})
		if err != nil {
			return nil, fmt.Errorf("create location %q: %w", st.name, err)
		}
		locations = append(locations, loc)
	}

	res.Driver, err = svc.CreateDriver(ctx, tenantID, dispatch.DriverInput{
		Name:     "Mohamed Ahmed",
		Phone:    DriverPhone,
		Email:    "mohamed@marinemaroc.com",
		Password: DemoPassword,
		Status:   models.DriverAvailable,
	})
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}

	year := 2020
	vehicle, err := svc.CreateVehicle(ctx, tenantID, dispatch.VehicleInput{
		PlateNumber: "A-12345",
		Make:        "Mercedes",
		Model:       "Actros",
		Year:        &year,
		DriverID:    &res.Driver.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("create vehicle: %w", err)
	}

	tomorrow := time.Now().Add(24 * time.Hour)
	inputs := []dispatch.OrderInput{
		{
			PickupLocationID:   locations[0].ID,
			DeliveryLocationID: locations[1].ID,
			Notes:              demoOrderNote,
			CustomerName:       "ABC Construction",
			Metadata:           models.Variables{"cargo": "Heavy Equipment", "weight": "15 tons"},
		},
		{
			PickupLocationID:   locations[0].ID,
			DeliveryLocationID: locations[2].ID,
			ScheduledAt:        &tomorrow,
			Metadata:           models.Variables{"cargo": "Construction Materials", "weight": "10 tons"},
		},
	}
	for _, in := range inputs {
		order, err := svc.CreateOrder(ctx, admin, in)
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		res.Orders = append(res.Orders, order)
	}

	assigned, err := svc.AssignOrder(ctx, admin, res.Orders[0].ID, res.Driver.ID, &vehicle.ID)
	if err != nil {
		return nil, fmt.Errorf("assign order: %w", err)
	}
	res.Orders[0] = assigned

	driver := auth.Principal{SubjectID: res.Driver.ID, TenantID: tenantID, Type: auth.SubjectDriver}
	now := time.Now()
	for _, pt := range route {
		at := now.Add(-pt.ago)
		if _, err := svc.RecordTrackingPoint(ctx, driver, dispatch.TrackingInput{
			Latitude:   pt.lat,
			Longitude:  pt.lng,
			RecordedAt: &at,
		}); err != nil {
			return nil, fmt.Errorf("record tracking point: %w", err)
		}
	}

	log.Info().
		Str("subdomain", Subdomain).
		Str("admin", AdminEmail).
		Str("driver_phone", DriverPhone).
		Int("orders", len(res.Orders)).
		Msg("Demo tenant seeded")

	return res, nil
}

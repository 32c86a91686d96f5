package storage

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

var locationColumns = []string{
	"id", "tenant_id", "created_at", "updated_at", "deleted_at",
	"name", "address", "latitude", "longitude", "type",
}

// CreateLocation creates a new location
func (s *SQLStore) CreateLocation(ctx context.Context, location *models.Location) error {
	if location.ID == uuid.Nil {
		location.ID = uuid.New()
	}
	now := models.Now()
	location.CreatedAt = now
	location.UpdatedAt = now

	_, err := s.exec(ctx, s.sb.Insert("locations").
		Columns(locationColumns...).
		Values(location.ID, location.TenantID, location.CreatedAt, location.UpdatedAt, nil,
			location.Name, location.Address, location.Latitude, location.Longitude, location.Type))
	return err
}

// GetLocation gets a location of the tenant by ID
func (s *SQLStore) GetLocation(ctx context.Context, tenantID, id uuid.UUID) (*models.Location, error) {
	location := &models.Location{}
	err := s.get(ctx, location, s.sb.Select(locationColumns...).From("locations").
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
	if err != nil {
		return nil, err
	}
	return location, nil
}

// UpdateLocation updates a location
func (s *SQLStore) UpdateLocation(ctx context.Context, location *models.Location) error {
	location.UpdatedAt = models.Now()
	return s.execOne(ctx, s.sb.Update("locations").
		Set("updated_at", location.UpdatedAt).
		Set("name", location.Name).
		Set("address", location.Address).
		Set("latitude", location.Latitude).
		Set("longitude", location.Longitude).
		Set("type", location.Type).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", location.TenantID, location.ID))
}

// DeleteLocation soft-deletes a location
func (s *SQLStore) DeleteLocation(ctx context.Context, tenantID, id uuid.UUID) error {
	now := models.Now()
	return s.execOne(ctx, s.sb.Update("locations").
		Set("deleted_at", now).
		Set("updated_at", now).
		Where("tenant_id = ? AND id = ? AND deleted_at IS NULL", tenantID, id))
}

// ListLocations lists the tenant's locations
func (s *SQLStore) ListLocations(ctx context.Context, tenantID uuid.UUID, filter LocationFilter, page Page) ([]*models.Location, int64, error) {
	where := sq.And{sq.Expr("tenant_id = ? AND deleted_at IS NULL", tenantID)}
	if filter.Type != nil {
		where = append(where, sq.Eq{"type": string(*filter.Type)})
	}

	total, err := s.count(ctx, s.sb.Select("COUNT(*)").From("locations").Where(where))
	if err != nil {
		return nil, 0, err
	}

	locations := []*models.Location{}
	err = s.selectRows(ctx, &locations, paginate(s.sb.Select(locationColumns...).From("locations").
		Where(where).OrderBy("name"), page))
	if err != nil {
		return nil, 0, err
	}
	return locations, total, nil
}

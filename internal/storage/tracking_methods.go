package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

var trackingColumns = []string{
	"id", "tenant_id", "driver_id", "created_at", "latitude", "longitude",
	"accuracy", "speed", "heading", "recorded_at",
}

// CreateTrackingPoint appends a GPS fix
func (s *SQLStore) CreateTrackingPoint(ctx context.Context, point *models.TrackingPoint) error {
	if point.ID == uuid.Nil {
		point.ID = uuid.New()
	}
	point.CreatedAt = models.Now()
	if point.RecordedAt.IsZero() {
		point.RecordedAt = point.CreatedAt
	}

	_, err := s.exec(ctx, s.sb.Insert("tracking_points").
		Columns(trackingColumns...).
		Values(point.ID, point.TenantID, point.DriverID, point.CreatedAt, point.Latitude,
			point.Longitude, point.Accuracy, point.Speed, point.Heading, point.RecordedAt))
	return err
}

// ListTrackingPoints lists a driver's fixes recorded at or after since, oldest first
func (s *SQLStore) ListTrackingPoints(ctx context.Context, tenantID, driverID uuid.UUID, since time.Time) ([]*models.TrackingPoint, error) {
	points := []*models.TrackingPoint{}
	err := s.selectRows(ctx, &points, s.sb.Select(trackingColumns...).From("tracking_points").
		Where("tenant_id = ? AND driver_id = ? AND recorded_at >= ?", tenantID, driverID, since.UTC()).
		OrderBy("recorded_at"))
	return points, err
}

// LatestTrackingPoints returns the most recent fix of every driver of the
// tenant that has reported one, keyed by driver id.
func (s *SQLStore) LatestTrackingPoints(ctx context.Context, tenantID uuid.UUID) (map[uuid.UUID]*models.TrackingPoint, error) {
	cols := make([]string, len(trackingColumns))
	for i, c := range trackingColumns {
		cols[i] = "tp." + c
	}

	latest := s.sb.Select("driver_id", "MAX(recorded_at) AS recorded_at").
		From("tracking_points").
		Where("tenant_id = ?", tenantID).
		GroupBy("driver_id")

	var points []*models.TrackingPoint
	err := s.selectRows(ctx, &points, s.sb.Select(cols...).
		From("tracking_points tp").
		JoinClause(latest.Prefix("JOIN (").Suffix(") l ON l.driver_id = tp.driver_id AND l.recorded_at = tp.recorded_at")).
		Where("tp.tenant_id = ?", tenantID))
	if err != nil {
		return nil, err
	}

	byDriver := make(map[uuid.UUID]*models.TrackingPoint, len(points))
	for _, p := range points {
		byDriver[p.DriverID] = p
	}
	return byDriver, nil
}

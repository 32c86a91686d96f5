package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// NextCounter atomically increments and returns the tenant's named counter,
// creating it at zero first if needed. Concurrent callers never observe the
// same value.
func (s *SQLStore) NextCounter(ctx context.Context, tenantID uuid.UUID, name string) (int64, error) {
	db := s.getDB()

	_, err := db.ExecContext(ctx, s.rebind(
		`INSERT INTO tenant_counters (tenant_id, name, value) VALUES (?, ?, 0)
		 ON CONFLICT (tenant_id, name) DO NOTHING`), tenantID, name)
	if err != nil {
		return 0, fmt.Errorf("init counter %s: %w", name, translateError(err))
	}

	var value int64
	err = db.QueryRowxContext(ctx, s.rebind(
		`UPDATE tenant_counters SET value = value + 1
		 WHERE tenant_id = ? AND name = ?
		 RETURNING value`), tenantID, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, translateError(err))
	}
	return value, nil
}

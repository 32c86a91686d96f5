package storage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
)

var userColumns = []string{
	"id", "tenant_id", "created_at", "updated_at", "email", "name",
	"password_hash", "role", "is_active", "last_login_at",
}

// CreateUser creates a new user. PasswordHash must already be set.
func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := models.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleDispatcher
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	_, err := s.exec(ctx, s.sb.Insert("users").
		Columns(userColumns...).
		Values(user.ID, user.TenantID, user.CreatedAt, user.UpdatedAt, user.Email,
			user.Name, user.PasswordHash, user.Role, user.IsActive, user.LastLoginAt))
	return err
}

// GetUser gets a user of the tenant by ID
func (s *SQLStore) GetUser(ctx context.Context, tenantID, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.get(ctx, user, s.sb.Select(userColumns...).From("users").
		Where("tenant_id = ? AND id = ?", tenantID, id))
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindUserByEmail gets a user by email across tenants
func (s *SQLStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.get(ctx, user, s.sb.Select(userColumns...).From("users").Where("email = ?", email))
	if err != nil {
		return nil, err
	}
	return user, nil
}

// TouchUserLogin records a successful sign-in
func (s *SQLStore) TouchUserLogin(ctx context.Context, tenantID, id uuid.UUID, at time.Time) error {
	return s.execOne(ctx, s.sb.Update("users").
		Set("last_login_at", at).
		Where("tenant_id = ? AND id = ?", tenantID, id))
}

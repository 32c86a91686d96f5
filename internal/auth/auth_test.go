package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage/storetest"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:    "test-secret",
		Issuer:    "fleet-dispatch",
		UserTTL:   7 * 24 * time.Hour,
		DriverTTL: 30 * 24 * time.Hour,
	}
}

func TestIssueAndValidateToken(t *testing.T) {
	t.Parallel()

	m := NewJWTManager(testJWTConfig())
	p := Principal{SubjectID: uuid.New(), TenantID: uuid.New(), Type: SubjectDriver}

	token, err := m.IssueToken(p)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, p.SubjectID, claims.SubjectID)
	assert.Equal(t, p.TenantID, claims.TenantID)
	assert.Equal(t, SubjectDriver, claims.SubjectType)

	lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	assert.Equal(t, 30*24*time.Hour, lifetime)
}

func TestValidateTokenErrors(t *testing.T) {
	t.Parallel()

	m := NewJWTManager(testJWTConfig())
	p := Principal{SubjectID: uuid.New(), TenantID: uuid.New(), Type: SubjectUser}

	expiredManager := NewJWTManager(testJWTConfig())
	expiredManager.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	expired, err := expiredManager.IssueToken(p)
	require.NoError(t, err)

	otherCfg := testJWTConfig()
	otherCfg.Secret = "another-secret"
	forged, err := NewJWTManager(otherCfg).IssueToken(p)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		SubjectID: p.SubjectID, TenantID: p.TenantID, SubjectType: SubjectUser,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, ErrTokenExpired},
		{"wrong signature", forged, ErrTokenInvalid},
		{"malformed", "not.a.token", ErrTokenInvalid},
		{"unsigned", none, ErrTokenInvalid},
		{"empty", "", ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateToken(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIssueTokenRejectsUnknownSubject(t *testing.T) {
	t.Parallel()

	_, err := NewJWTManager(testJWTConfig()).IssueToken(Principal{SubjectID: uuid.New(), TenantID: uuid.New()})
	require.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	p := Principal{SubjectID: uuid.New(), TenantID: uuid.New(), Type: SubjectUser, Role: models.RoleManager}
	got, ok := FromContext(WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Equal(t, p, got)
	assert.True(t, got.HasRole(models.RoleAdmin, models.RoleManager))
	assert.False(t, got.HasRole(models.RoleDispatcher))
	assert.False(t, Principal{Type: SubjectDriver}.HasRole(models.RoleAdmin))
}

func newTestService(t *testing.T) (*Service, *fixtures) {
	t.Helper()

	store := storetest.NewStore(t)
	svc, err := NewService(store, NewJWTManager(testJWTConfig()))
	require.NoError(t, err)

	env := &fixtures{}
	env.tenant = storetest.Tenant(t, store, "marinemaroc")
	env.user = storetest.User(t, store, env.tenant.ID, "admin@marinemaroc.com")
	env.driver = storetest.Driver(t, store, env.tenant.ID, "Youssef", "+212600000001")
	return svc, env
}

type fixtures struct {
	tenant *models.Tenant
	user   *models.User
	driver *models.Driver
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	svc, env := newTestService(t)
	ctx := context.Background()

	t.Run("user by email", func(t *testing.T) {
		session, err := svc.Authenticate(ctx, Credentials{Email: "Admin@MarineMaroc.com", Password: storetest.Password})
		require.NoError(t, err)
		require.NotNil(t, session.User)
		assert.Nil(t, session.Driver)
		assert.Equal(t, env.user.ID, session.User.ID)
		assert.NotNil(t, session.User.LastLoginAt)

		claims, err := svc.Tokens().ValidateToken(session.Token)
		require.NoError(t, err)
		assert.Equal(t, SubjectUser, claims.SubjectType)
		assert.Equal(t, env.tenant.ID, claims.TenantID)
	})

	t.Run("driver by phone", func(t *testing.T) {
		session, err := svc.Authenticate(ctx, Credentials{Phone: env.driver.Phone, Password: storetest.Password})
		require.NoError(t, err)
		require.NotNil(t, session.Driver)
		assert.Equal(t, env.driver.ID, session.Principal.SubjectID)
		assert.Equal(t, SubjectDriver, session.Principal.Type)
	})

	failures := []struct {
		name  string
		creds Credentials
	}{
		{"wrong password", Credentials{Email: "admin@marinemaroc.com", Password: "nope"}},
		{"unknown email", Credentials{Email: "ghost@marinemaroc.com", Password: storetest.Password}},
		{"unknown phone", Credentials{Phone: "+212699999999", Password: storetest.Password}},
		{"wrong subdomain", Credentials{Phone: env.driver.Phone, Password: storetest.Password, Subdomain: "other"}},
		{"no identifier", Credentials{Password: storetest.Password}},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(ctx, tt.creds)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestAuthenticateSuspendedTenant(t *testing.T) {
	t.Parallel()

	svc, env := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.store.UpdateTenantStatus(ctx, env.tenant.ID, models.TenantSuspended))

	_, err := svc.Authenticate(ctx, Credentials{Email: env.user.Email, Password: storetest.Password})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	svc, env := newTestService(t)
	ctx := context.Background()

	p, err := svc.Resolve(ctx, &Claims{SubjectID: env.user.ID, TenantID: env.tenant.ID, SubjectType: SubjectUser})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role)

	// A token naming another tenant does not resolve the subject.
	_, err = svc.Resolve(ctx, &Claims{SubjectID: env.user.ID, TenantID: uuid.New(), SubjectType: SubjectUser})
	assert.ErrorIs(t, err, ErrTokenInvalid)

	require.NoError(t, svc.store.DeleteDriver(ctx, env.tenant.ID, env.driver.ID))
	_, err = svc.Resolve(ctx, &Claims{SubjectID: env.driver.ID, TenantID: env.tenant.ID, SubjectType: SubjectDriver})
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

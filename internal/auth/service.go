package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/models"
	"github.com/fleetdispatch/fleet-dispatch-server/internal/storage"
	"github.com/fleetdispatch/fleet-dispatch-server/pkg/crypto"
)

// ErrInvalidCredentials is returned for every failed sign-in, whatever the
// cause.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Credentials identify a staff user by Email or a driver by Phone.
// Subdomain optionally narrows a phone lookup to one tenant.
type Credentials struct {
	Email     string
	Phone     string
	Password  string
	Subdomain string
}

// Session is the outcome of a successful sign-in. Exactly one of User and
// Driver is set.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
	User      *models.User
	Driver    *models.Driver
}

// Service verifies credentials and resolves token claims to principals.
type Service struct {
	store     storage.Store
	tokens    *JWTManager
	dummyHash string
}

// NewService creates an auth service
func NewService(store storage.Store, tokens *JWTManager) (*Service, error) {
	secret, err := crypto.GenerateRandomString(32)
	if err != nil {
		return nil, err
	}
	dummy, err := crypto.HashPassword(secret)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	return &Service{store: store, tokens: tokens, dummyHash: dummy}, nil
}

// Tokens returns the token manager
func (s *Service) Tokens() *JWTManager {
	return s.tokens
}

// Authenticate signs in a staff user by email or a driver by phone.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	switch {
	case creds.Email != "":
		return s.authenticateUser(ctx, strings.ToLower(strings.TrimSpace(creds.Email)), creds.Password)
	case creds.Phone != "":
		return s.authenticateDriver(ctx, strings.TrimSpace(creds.Phone), creds.Subdomain, creds.Password)
	}
	return nil, ErrInvalidCredentials
}

func (s *Service) authenticateUser(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		crypto.VerifyPassword(password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(password, user.PasswordHash) || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if ok, err := s.tenantActive(ctx, user.TenantID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrInvalidCredentials
	}

	now := models.Now()
	if err := s.store.TouchUserLogin(ctx, user.TenantID, user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to record last login")
	} else {
		user.LastLoginAt = &now
	}

	p := Principal{SubjectID: user.ID, TenantID: user.TenantID, Type: SubjectUser, Role: user.Role}
	session, err := s.issue(p)
	if err != nil {
		return nil, err
	}
	session.User = user
	return session, nil
}

func (s *Service) authenticateDriver(ctx context.Context, phone, subdomain, password string) (*Session, error) {
	candidates, err := s.store.FindDriversByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	// Phones are unique per tenant only, so the password decides which
	// driver is signing in.
	var match *models.Driver
	compared := false
	for _, d := range candidates {
		if subdomain != "" {
			tenant, err := s.store.GetTenant(ctx, d.TenantID)
			if err != nil {
				return nil, err
			}
			if tenant.Subdomain != subdomain {
				continue
			}
		}
		if d.PasswordHash == "" {
			continue
		}
		compared = true
		if crypto.VerifyPassword(password, d.PasswordHash) {
			match = d
			break
		}
	}
	if match == nil {
		if !compared {
			crypto.VerifyPassword(password, s.dummyHash)
		}
		return nil, ErrInvalidCredentials
	}

	if ok, err := s.tenantActive(ctx, match.TenantID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrInvalidCredentials
	}

	session, err := s.issue(Principal{SubjectID: match.ID, TenantID: match.TenantID, Type: SubjectDriver})
	if err != nil {
		return nil, err
	}
	session.Driver = match
	return session, nil
}

func (s *Service) issue(p Principal) (*Session, error) {
	token, err := s.tokens.IssueToken(p)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresAt: s.tokens.now().Add(s.tokens.TTL(p.Type)),
		Principal: p,
	}, nil
}

func (s *Service) tenantActive(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tenant.IsActive(), nil
}

// Resolve turns verified claims into the request principal. The subject must
// still exist, be enabled, and belong to an active tenant; otherwise the
// token is treated as invalid.
func (s *Service) Resolve(ctx context.Context, claims *Claims) (Principal, error) {
	p := Principal{SubjectID: claims.SubjectID, TenantID: claims.TenantID, Type: claims.SubjectType}

	switch claims.SubjectType {
	case SubjectUser:
		user, err := s.store.GetUser(ctx, claims.TenantID, claims.SubjectID)
		if errors.Is(err, storage.ErrNotFound) {
			return Principal{}, ErrTokenInvalid
		}
		if err != nil {
			return Principal{}, err
		}
		if !user.IsActive {
			return Principal{}, ErrTokenInvalid
		}
		p.Role = user.Role
	case SubjectDriver:
		if _, err := s.store.GetDriver(ctx, claims.TenantID, claims.SubjectID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Principal{}, ErrTokenInvalid
			}
			return Principal{}, err
		}
	default:
		return Principal{}, ErrTokenInvalid
	}

	ok, err := s.tenantActive(ctx, claims.TenantID)
	if err != nil {
		return Principal{}, err
	}
	if !ok {
		return Principal{}, ErrTokenInvalid
	}
	return p, nil
}

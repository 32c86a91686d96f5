package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fleetdispatch/fleet-dispatch-server/internal/config"
)

// Token verification errors. Callers tell an expired session from a forged
// or mangled one with errors.Is.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	SubjectID   uuid.UUID   `json:"subjectId"`
	TenantID    uuid.UUID   `json:"tenantId"`
	SubjectType SubjectType `json:"subjectType"`
}

// JWTManager manages JWT tokens
type JWTManager struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.JWTConfig) *JWTManager {
	return &JWTManager{
		config: cfg,
		now:    time.Now,
	}
}

// TTL returns the token lifetime for a subject type
func (m *JWTManager) TTL(t SubjectType) time.Duration {
	if t == SubjectDriver {
		return m.config.DriverTTL
	}
	return m.config.UserTTL
}

// IssueToken signs a token for the principal
func (m *JWTManager) IssueToken(p Principal) (string, error) {
	if !p.Type.Valid() {
		return "", fmt.Errorf("issue token: unknown subject type %q", p.Type)
	}

	now := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.SubjectID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL(p.Type))),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
		SubjectID:   p.SubjectID,
		TenantID:    p.TenantID,
		SubjectType: p.Type,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a token and returns its claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.SubjectID == uuid.Nil || claims.TenantID == uuid.Nil || !claims.SubjectType.Valid() {
		return nil, fmt.Errorf("%w: incomplete claims", ErrTokenInvalid)
	}

	return claims, nil
}

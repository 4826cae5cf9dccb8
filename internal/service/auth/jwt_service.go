// Package auth verifies bearer tokens issued by the external identity
// service. The rental core never authenticates users itself.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Namalekanayaka/evcharging-rental/internal/domain"
	"github.com/Namalekanayaka/evcharging-rental/internal/ports"
	"github.com/Namalekanayaka/evcharging-rental/pkg/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevokedToken = errors.New("token revoked")
)

// Claims represents the custom JWT claims used by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
	Type string `json:"type"` // "access" or "refresh"
}

// UserRole returns the role claim, defaulting to a plain user
func (c *Claims) UserRole() domain.UserRole {
	if c.Role == "" {
		return domain.UserRoleUser
	}
	return domain.UserRole(c.Role)
}

// JWTService validates access tokens and checks the shared revocation list.
type JWTService struct {
	secret   []byte
	issuer   string
	audience string
	cache    ports.Cache
	log      *zap.Logger
}

// NewJWTService creates a new JWTService. cache may be nil, in which case
// revocation is not checked.
func NewJWTService(cfg config.JWTConfig, cache ports.Cache, log *zap.Logger) *JWTService {
	return &JWTService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		cache:    cache,
		log:      log,
	}
}

// IssueAccessToken signs an access token. Production tokens come from the
// identity service; this is used by the simulator and tests.
func (s *JWTService) IssueAccessToken(userID string, role domain.UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		Role: string(role),
		Type: "access",
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses an access token and rejects revoked ones.
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		s.log.Debug("token validation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	if claims.Type != "access" {
		return nil, fmt.Errorf("%w: %s token used for access", ErrInvalidToken, claims.Type)
	}
	if s.IsTokenRevoked(ctx, claims.ID) {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// IsTokenRevoked looks the token id up in the revocation list the identity
// service maintains in the shared cache.
func (s *JWTService) IsTokenRevoked(ctx context.Context, tokenID string) bool {
	if s.cache == nil || tokenID == "" {
		return false
	}
	val, err := s.cache.Get(ctx, "revoked_token:"+tokenID)
	if err != nil {
		if !errors.Is(err, ports.ErrCacheMiss) {
			s.log.Warn("Revocation lookup failed", zap.String("jti", tokenID), zap.Error(err))
		}
		return false
	}
	return val == "revoked"
}

package authz

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rindwa/dispatch/db"
	"github.com/rindwa/dispatch/internal/apperr"
	"github.com/rindwa/dispatch/internal/config"
)

// JWTService issues and validates the bearer token that carries the
// validated principal {userId, role, organisationId?, stationId?} the core
// consumes.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewJWTService builds a JWTService. An empty secret falls back to
// config.App.JWTSecret.
func NewJWTService(secret string) *JWTService {
	if secret == "" {
		secret = config.App.JWTSecret
	}
	issuer := config.App.JWTIssuer
	if issuer == "" {
		issuer = "dispatch"
	}
	ttl := time.Duration(config.App.JWTTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &JWTService{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

type principalClaims struct {
	Role           db.Role `json:"role"`
	OrganisationID string  `json:"organisationId,omitempty"`
	StationID      string  `json:"stationId,omitempty"`
	jwt.RegisteredClaims
}

// Issue mints a signed token for the given principal.
func (s *JWTService) Issue(p db.Principal) (string, error) {
	now := time.Now()
	claims := principalClaims{
		Role:           p.Role,
		OrganisationID: p.OrganisationID,
		StationID:      p.StationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a bearer token, reconstructing the same
// principal fields Issue encoded (the round-trip law in spec §8).
func (s *JWTService) Validate(tokenString string) (db.Principal, error) {
	var claims principalClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return db.Principal{}, apperr.NewUnauthenticated("invalid or expired token")
	}
	return db.Principal{
		UserID:         claims.Subject,
		Role:           claims.Role,
		OrganisationID: claims.OrganisationID,
		StationID:      claims.StationID,
	}, nil
}

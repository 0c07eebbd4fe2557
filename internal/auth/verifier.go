// Package auth verifies identity tokens issued by the external identity
// provider and keeps the signed-in identity of a client session.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"huddle-chat/internal/domain"
	huddle_errors "huddle-chat/pkg/errors"
)

// Identity is who a verified token says the caller is.
type Identity struct {
	UserID      string          `json:"userId"`
	DisplayName string          `json:"displayName"`
	Email       string          `json:"email,omitempty"`
	AvatarURL   string          `json:"avatarUrl,omitempty"`
	Role        domain.UserRole `json:"role,omitempty"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

type Claims struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewVerifier(secret, issuer string, leeway time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: leeway}
}

// Verify checks an HS256 token and returns its identity. Any failure is
// reported as ErrNotAuthenticated.
func (v *Verifier) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, huddle_errors.ErrNotAuthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, huddle_errors.ErrNotAuthenticated
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired: %w", huddle_errors.ErrNotAuthenticated)
		}
		return nil, fmt.Errorf("invalid token: %w", huddle_errors.ErrNotAuthenticated)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, huddle_errors.ErrNotAuthenticated
	}

	id := &Identity{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AvatarURL:   claims.Picture,
		Role:        domain.UserRoleMember,
	}
	if claims.Role == string(domain.UserRoleGuest) {
		id.Role = domain.UserRoleGuest
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Sign mints a token for id that Verify accepts. The identity provider does
// this in production; the server only uses it for development seeding and
// tests.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:    id.DisplayName,
		Email:   id.Email,
		Picture: id.AvatarURL,
		Role:    string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

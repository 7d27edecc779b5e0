// Package auth signs and verifies the HS256 access tokens handed to shoppers
// and admins. The token id doubles as the server-side session id.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Claims is the payload of an access token.
type Claims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// SessionID is the jti, the key of the refresh session behind the token.
func (c *Claims) SessionID() string { return c.ID }

type Signer struct {
	key     []byte
	issuer  string
	ttl     time.Duration
	strict  *jwt.Parser
	lenient *jwt.Parser
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.AccessTokenTTL() <= 0:
		return nil, errors.New("jwt expiration minutes must be positive")
	}
	methods := jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})
	return &Signer{
		key:     []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		ttl:     cfg.AccessTokenTTL(),
		strict:  jwt.NewParser(methods, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired()),
		lenient: jwt.NewParser(methods, jwt.WithoutClaimsValidation()),
	}, nil
}

// TTL is how long a freshly signed token stays valid.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Sign issues a token for the user valid from now. An empty sessionID gets a
// fresh random one.
func (s *Signer) Sign(now time.Time, userID uuid.UUID, role enums.UserRole, sessionID string) (string, error) {
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	if !role.IsValid() {
		return "", fmt.Errorf("invalid user role %q", role)
	}
	if sessionID = strings.TrimSpace(sessionID); sessionID == "" {
		sessionID = uuid.NewString()
	}
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        sessionID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry.
func (s *Signer) Verify(token string) (*Claims, error) {
	return s.parse(s.strict, token)
}

// Inspect checks the signature and issuer but accepts an expired token, so a
// refresh or logout can still name the session it belongs to.
func (s *Signer) Inspect(token string) (*Claims, error) {
	claims, err := s.parse(s.lenient, token)
	if err != nil {
		return nil, err
	}
	if claims.Issuer != s.issuer {
		return nil, jwt.ErrTokenInvalidIssuer
	}
	return claims, nil
}

func (s *Signer) parse(p *jwt.Parser, token string) (*Claims, error) {
	claims := &Claims{}
	if _, err := p.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return s.key, nil }); err != nil {
		return nil, err
	}
	if claims.SessionID() == "" {
		return nil, errors.New("token carries no session id")
	}
	return claims, nil
}

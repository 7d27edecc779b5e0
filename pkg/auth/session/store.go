// Package session keeps refresh sessions in Redis. Each session is keyed by
// the access token's jti and records the owner plus the current refresh token.
package session

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const refreshTokenBytes = 32

var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// Session is what a client holds after login or refresh.
type Session struct {
	ID           string
	RefreshToken string
}

// Checker is what request authentication needs: is the session still open.
type Checker interface {
	Active(ctx context.Context, sessionID string) (bool, error)
}

type backend interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	AccessSessionKey(accessID string) string
}

type Store struct {
	redis backend
	ttl   time.Duration
}

// NewStore requires the refresh lifetime to outlast the access token, or a
// client would be locked out before it could refresh.
func NewStore(client backend, cfg config.JWTConfig) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	if ttl <= cfg.AccessTokenTTL() {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, cfg.AccessTokenTTL())
	}
	return &Store{redis: client, ttl: ttl}, nil
}

// Open starts a session for userID.
func (s *Store) Open(ctx context.Context, userID uuid.UUID) (Session, error) {
	if userID == uuid.Nil {
		return Session{}, errors.New("user id is required")
	}
	sess, err := newSession()
	if err != nil {
		return Session{}, err
	}
	if err := s.redis.Set(ctx, s.redis.AccessSessionKey(sess.ID), record(userID, sess.RefreshToken), s.ttl); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Rotate consumes the session if refreshToken matches and opens a new one.
// The old record is removed with a compare-and-delete, so two racing refreshes
// with the same token cannot both succeed.
func (s *Store) Rotate(ctx context.Context, sessionID string, userID uuid.UUID, refreshToken string) (Session, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(refreshToken) == "" {
		return Session{}, ErrInvalidRefreshToken
	}
	key := s.redis.AccessSessionKey(sessionID)
	stored, err := s.redis.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return Session{}, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(record(userID, refreshToken))) != 1 {
		return Session{}, ErrInvalidRefreshToken
	}
	consumed, err := s.redis.CompareAndDelete(ctx, key, stored)
	if err != nil {
		return Session{}, err
	}
	if !consumed {
		return Session{}, ErrInvalidRefreshToken
	}
	return s.Open(ctx, userID)
}

func (s *Store) Revoke(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is required")
	}
	return s.redis.Del(ctx, s.redis.AccessSessionKey(sessionID))
}

func (s *Store) Active(ctx context.Context, sessionID string) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, nil
	}
	_, err := s.redis.Get(ctx, s.redis.AccessSessionKey(sessionID))
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

func newSession() (Session, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return Session{}, fmt.Errorf("generating refresh token: %w", err)
	}
	return Session{ID: uuid.NewString(), RefreshToken: base64.RawURLEncoding.EncodeToString(buf)}, nil
}

func record(userID uuid.UUID, refreshToken string) string {
	return userID.String() + ":" + refreshToken
}

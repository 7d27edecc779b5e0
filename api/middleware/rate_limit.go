package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// maxEmailProbeBytes caps how much of a body is buffered to find the email.
const maxEmailProbeBytes = 64 << 10

// WindowCounter is the fixed-window store behind RateLimit. *redis.Client
// satisfies it.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	RateLimitKey(parts ...string) string
}

// RateLimitPolicy caps requests per window along up to three scopes. A zero
// limit disables that scope.
type RateLimitPolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerEmail int
	PerUser  int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0 || p.PerUser > 0)
}

type rateScope struct {
	name  string
	value string
	limit int
}

// RateLimit rejects requests over any of the policy's limits with 429 and a
// Retry-After header. Email is read from a JSON body and hashed before it is
// used in a key. The user scope needs Auth to have run first.
func RateLimit(policy RateLimitPolicy, counter WindowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			scopes, err := policy.scopes(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}

			for _, s := range scopes {
				key := counter.RateLimitKey(policy.Name, s.name, s.value)
				count, remaining, err := counter.Hit(ctx, key, policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count <= int64(s.limit) {
					continue
				}

				logg.Warn(logg.WithFields(ctx, map[string]any{
					"policy":   policy.Name,
					"scope":    s.name,
					"attempts": count,
					"limit":    s.limit,
				}), "rate limit exceeded")
				w.Header().Set("Retry-After", retryAfter(remaining))
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// scopes lists the keys this request counts against. The body is restored
// for the next handler when it had to be read.
func (p RateLimitPolicy) scopes(r *http.Request) ([]rateScope, error) {
	var out []rateScope
	if p.PerIP > 0 {
		if ip := clientIP(r); ip != "" {
			out = append(out, rateScope{name: "ip", value: ip, limit: p.PerIP})
		}
	}
	if p.PerUser > 0 {
		if id := callerID(r.Context()); id != "" {
			out = append(out, rateScope{name: "user", value: id, limit: p.PerUser})
		}
	}
	if p.PerEmail > 0 && r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxEmailProbeBytes+1))
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
		if email := emailFromJSON(body); email != "" {
			out = append(out, rateScope{name: "email", value: sha256Hex(email), limit: p.PerEmail})
		}
	}
	return out, nil
}

func retryAfter(remaining time.Duration) string {
	secs := int(math.Ceil(remaining.Seconds()))
	return strconv.Itoa(max(secs, 1))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func emailFromJSON(body []byte) string {
	var payload struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(payload.Email))
}

func sha256Hex(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

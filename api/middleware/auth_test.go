package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type stubSessions struct {
	open bool
	err  error
}

func (s stubSessions) Active(context.Context, string) (bool, error) { return s.open, s.err }

func testSigner(t *testing.T) *auth.Signer {
	t.Helper()
	signer, err := auth.NewSigner(config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60})
	require.NoError(t, err)
	return signer
}

func callAuth(t *testing.T, sessions stubSessions, authorization string, next http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	if next == nil {
		next = func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp := httptest.NewRecorder()
	Auth(testSigner(t), sessions, nil)(next).ServeHTTP(resp, req)
	return resp
}

func signed(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := testSigner(t).Sign(time.Now(), userID, role, "")
	require.NoError(t, err)
	return token
}

func TestAuthRejects(t *testing.T) {
	live := signed(t, uuid.New(), enums.UserRoleUser)
	cases := []struct {
		name          string
		authorization string
		sessions      stubSessions
		status        int
	}{
		{name: "missing token", sessions: stubSessions{open: true}, status: http.StatusUnauthorized},
		{name: "garbage token", authorization: "Bearer invalid", sessions: stubSessions{open: true}, status: http.StatusUnauthorized},
		{name: "revoked session", authorization: "Bearer " + live, sessions: stubSessions{}, status: http.StatusUnauthorized},
		{name: "session store down", authorization: live, sessions: stubSessions{err: errors.New("redis down")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := callAuth(t, tc.sessions, tc.authorization, func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler must not run")
			})
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestAuthSeedsPrincipal(t *testing.T) {
	userID := uuid.New()
	var gotID uuid.UUID
	var gotRole enums.UserRole
	resp := callAuth(t, stubSessions{open: true}, "bearer "+signed(t, userID, enums.UserRoleAdmin), func(w http.ResponseWriter, r *http.Request) {
		var err error
		gotID, gotRole, err = Principal(r.Context())
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	})

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, enums.UserRoleAdmin, gotRole)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(enums.UserRoleAdmin, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	serve := func(ctx context.Context) int {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		return resp.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(context.Background()))
	assert.Equal(t, http.StatusForbidden, serve(WithPrincipal(context.Background(), uuid.New(), enums.UserRoleUser)))
	assert.Equal(t, http.StatusOK, serve(WithPrincipal(context.Background(), uuid.New(), enums.UserRoleAdmin)))
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"":              "",
		"Bearer abc":    "abc",
		"BEARER  abc ":  "abc",
		"abc":           "abc",
		"Basic dXNlcjo": "Basic dXNlcjo",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		assert.Equal(t, want, BearerToken(req), header)
	}
}

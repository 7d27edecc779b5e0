package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/users"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubAuthService struct {
	register func(ctx context.Context, req auth.RegisterRequest) (*auth.LoginResponse, error)
	login    func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error)
	refresh  func(ctx context.Context, req auth.RefreshRequest) (*auth.TokenPair, error)
	logout   func(ctx context.Context, accessToken string) error
	change   func(ctx context.Context, req auth.ChangePasswordRequest) (*auth.TokenPair, error)
}

func (s stubAuthService) Register(ctx context.Context, req auth.RegisterRequest) (*auth.LoginResponse, error) {
	return s.register(ctx, req)
}

func (s stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return s.login(ctx, req)
}

func (s stubAuthService) Refresh(ctx context.Context, req auth.RefreshRequest) (*auth.TokenPair, error) {
	return s.refresh(ctx, req)
}

func (s stubAuthService) Logout(ctx context.Context, accessToken string) error {
	return s.logout(ctx, accessToken)
}

func (s stubAuthService) ChangePassword(ctx context.Context, req auth.ChangePasswordRequest) (*auth.TokenPair, error) {
	return s.change(ctx, req)
}

func TestAuthLoginSetsTokenHeader(t *testing.T) {
	svc := stubAuthService{login: func(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
		if req.Email != "lan@example.com" {
			t.Fatalf("unexpected email %s", req.Email)
		}
		return &auth.LoginResponse{
			TokenPair: auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
			User:      &users.UserDTO{ID: uuid.New(), Email: req.Email},
		}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"lan@example.com","password":"secret-pass"}`))
	resp := httptest.NewRecorder()
	AuthLogin(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get(TokenHeader) != "access" {
		t.Fatalf("missing token header")
	}
	var envelope struct {
		Data auth.LoginResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.RefreshToken != "refresh" {
		t.Fatalf("unexpected refresh token %q", envelope.Data.RefreshToken)
	}
}

func TestAuthLoginRejectsBadEmail(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"nope","password":"x"}`))
	resp := httptest.NewRecorder()
	AuthLogin(stubAuthService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAuthRegisterEmailTaken(t *testing.T) {
	svc := stubAuthService{register: func(ctx context.Context, req auth.RegisterRequest) (*auth.LoginResponse, error) {
		return nil, pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonEmailTaken, "email already registered")
	}}

	body := `{"full_name":"Lan","email":"lan@example.com","password":"long-enough"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	resp := httptest.NewRecorder()
	AuthRegister(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestAuthRefreshReadsBearerToken(t *testing.T) {
	var got auth.RefreshRequest
	svc := stubAuthService{refresh: func(ctx context.Context, req auth.RefreshRequest) (*auth.TokenPair, error) {
		got = req
		return &auth.TokenPair{AccessToken: "next", RefreshToken: "rotated"}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refresh_token":"old"}`))
	req.Header.Set("Authorization", "Bearer expired-access")
	resp := httptest.NewRecorder()
	AuthRefresh(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.AccessToken != "expired-access" || got.RefreshToken != "old" {
		t.Fatalf("unexpected request %+v", got)
	}
	if resp.Header().Get(TokenHeader) != "next" {
		t.Fatalf("missing rotated token header")
	}
}

func TestAuthLogoutNoContent(t *testing.T) {
	var revoked string
	svc := stubAuthService{logout: func(ctx context.Context, accessToken string) error {
		revoked = accessToken
		return nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer live-token")
	resp := httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.Code)
	}
	if revoked != "live-token" {
		t.Fatalf("unexpected token %q", revoked)
	}
}

func TestAuthChangePasswordIssuesNewPair(t *testing.T) {
	var got auth.ChangePasswordRequest
	svc := stubAuthService{change: func(ctx context.Context, req auth.ChangePasswordRequest) (*auth.TokenPair, error) {
		got = req
		return &auth.TokenPair{AccessToken: "fresh", RefreshToken: "fresh-refresh"}, nil
	}}

	body := `{"current_password":"old-secret","new_password":"new-secret-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/password", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer current-access")
	resp := httptest.NewRecorder()
	AuthChangePassword(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.AccessToken != "current-access" || got.CurrentPassword != "old-secret" || got.NewPassword != "new-secret-1" {
		t.Fatalf("unexpected request %+v", got)
	}
	if resp.Header().Get(TokenHeader) != "fresh" {
		t.Fatalf("missing token header")
	}
}

func TestAuthChangePasswordRejectsShortPassword(t *testing.T) {
	body := `{"current_password":"old-secret","new_password":"short"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/password", strings.NewReader(body))
	resp := httptest.NewRecorder()
	AuthChangePassword(stubAuthService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

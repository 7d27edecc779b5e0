package auth

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// TokenHeader mirrors the access token for clients that read headers.
const TokenHeader = "X-Storefront-Token"

var errUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")

// issuing decodes a Req body, calls the service and answers with the issued
// tokens, echoing the access token in TokenHeader.
func issuing[Req any, Res any](
	svc auth.Service,
	logg *logger.Logger,
	status int,
	call func(r *http.Request, body Req) (Res, error),
	access func(Res) string,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errUnavailable)
			return
		}
		var body Req
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out, err := call(r, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set(TokenHeader, access(out))
		responses.WriteSuccessStatus(w, status, out)
	}
}

func loginAccess(res *auth.LoginResponse) string { return res.AccessToken }

func AuthLogin(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return issuing(svc, logg, http.StatusOK, func(r *http.Request, body auth.LoginRequest) (*auth.LoginResponse, error) {
		return svc.Login(r.Context(), body)
	}, loginAccess)
}

// AuthRegister opens a shopper account and signs it in.
func AuthRegister(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return issuing(svc, logg, http.StatusCreated, func(r *http.Request, body auth.RegisterRequest) (*auth.LoginResponse, error) {
		return svc.Register(r.Context(), body)
	}, loginAccess)
}

// AuthRefresh rotates the refresh token. The bearer access token may be
// expired but its signature must still verify.
func AuthRefresh(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return issuing(svc, logg, http.StatusOK, func(r *http.Request, body auth.RefreshRequest) (*auth.TokenPair, error) {
		body.AccessToken = middleware.BearerToken(r)
		return svc.Refresh(r.Context(), body)
	}, func(pair *auth.TokenPair) string { return pair.AccessToken })
}

func AuthLogout(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errUnavailable)
			return
		}
		if err := svc.Logout(r.Context(), middleware.BearerToken(r)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// AuthChangePassword swaps the caller's password and answers with the tokens
// of the replacement session.
func AuthChangePassword(svc auth.Service, logg *logger.Logger) http.HandlerFunc {
	return issuing(svc, logg, http.StatusOK, func(r *http.Request, body auth.ChangePasswordRequest) (*auth.TokenPair, error) {
		body.AccessToken = middleware.BearerToken(r)
		return svc.ChangePassword(r.Context(), body)
	}, func(pair *auth.TokenPair) string { return pair.AccessToken })
}

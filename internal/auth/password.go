package auth

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// ChangePassword replaces the caller's password after checking the current
// one. The session behind the presented token is closed and a fresh pair is
// issued, so a leaked refresh token stops working.
func (s *service) ChangePassword(ctx context.Context, req ChangePasswordRequest) (*TokenPair, error) {
	claims, err := s.sessionClaims(req.AccessToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && user.Lifecycle != enums.LifecycleActive) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account unavailable")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	valid, err := s.passwords.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.NewReason(pkgerrors.CodeUnauthorized, pkgerrors.ReasonInvalidPassword, "current password is incorrect")
	}
	if req.CurrentPassword == req.NewPassword {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonSamePassword, "new password must differ from the current one")
	}
	if err := users.CheckPassword(req.NewPassword); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(req.NewPassword)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store password")
	}
	if err := s.sessions.Revoke(ctx, claims.SessionID()); err != nil {
		s.logg.Warn(s.logg.WithActor(ctx, user.ID.String(), string(user.Role)), "old session not revoked: "+err.Error())
	}
	s.logg.Info(s.logg.WithActor(ctx, user.ID.String(), string(user.Role)), "user.password_changed")
	return s.issue(ctx, s.now(), user)
}

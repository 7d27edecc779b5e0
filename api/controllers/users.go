package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/users"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type updateProfilePayload struct {
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// The service checks the address so a rejection carries its reason.
type addressPayload struct {
	types.ShippingAddress `validate:"-"`

	Label     *string `json:"label,omitempty" validate:"omitempty,max=40"`
	IsDefault bool    `json:"is_default"`
}

type updateAddressPayload struct {
	Label     *string `json:"label,omitempty" validate:"omitempty,max=40"`
	FullName  *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Phone     *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Province  *string `json:"province,omitempty" validate:"omitempty,max=120"`
	District  *string `json:"district,omitempty" validate:"omitempty,max=120"`
	Ward      *string `json:"ward,omitempty" validate:"omitempty,max=120"`
	Street    *string `json:"street,omitempty" validate:"omitempty,max=255"`
	IsDefault *bool   `json:"is_default,omitempty"`
}

type createUserPayload struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=128"`
	FullName string  `json:"full_name" validate:"required,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Role     string  `json:"role,omitempty"`
}

type updateUserPayload struct {
	FullName *string `json:"full_name,omitempty" validate:"omitempty,max=120"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Role     *string `json:"role,omitempty"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8,max=128"`
	Deleted  *bool   `json:"deleted,omitempty"`
}

// accountHandler resolves the caller and writes what fn returns with status.
// A nil result answers 204.
func accountHandler(svc users.Service, logg *logger.Logger, status int, fn func(r *http.Request, userID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users service unavailable"))
			return
		}
		userID, _, err := middleware.Principal(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out, err := fn(r, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if out == nil {
			responses.WriteNoContent(w)
			return
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}

func GetProfile(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusOK, func(r *http.Request, userID uuid.UUID) (any, error) {
		return svc.Profile(r.Context(), userID)
	})
}

// UpdateProfile edits the caller's name and phone. Email and role are not editable here.
func UpdateProfile(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusOK, func(r *http.Request, userID uuid.UUID) (any, error) {
		var payload updateProfilePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateProfile(r.Context(), userID, users.ProfileUpdate{FullName: payload.FullName, Phone: payload.Phone})
	})
}

func ListAddresses(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusOK, func(r *http.Request, userID uuid.UUID) (any, error) {
		return svc.Addresses(r.Context(), userID)
	})
}

func AddAddress(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusCreated, func(r *http.Request, userID uuid.UUID) (any, error) {
		var payload addressPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.AddAddress(r.Context(), userID, users.AddressInput{
			Label:    payload.Label,
			Shipping: payload.ShippingAddress,
			Default:  payload.IsDefault,
		})
	})
}

func UpdateAddress(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusOK, func(r *http.Request, userID uuid.UUID) (any, error) {
		addressID, err := validators.PathUUID(r, "addressId", "address")
		if err != nil {
			return nil, err
		}
		var payload updateAddressPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateAddress(r.Context(), userID, addressID, users.AddressPatch{
			Label:    payload.Label,
			FullName: payload.FullName,
			Phone:    payload.Phone,
			Province: payload.Province,
			District: payload.District,
			Ward:     payload.Ward,
			Street:   payload.Street,
			Default:  payload.IsDefault,
		})
	})
}

func DeleteAddress(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusNoContent, func(r *http.Request, userID uuid.UUID) (any, error) {
		addressID, err := validators.PathUUID(r, "addressId", "address")
		if err != nil {
			return nil, err
		}
		return nil, svc.DeleteAddress(r.Context(), userID, addressID)
	})
}

func parseRole(raw string) (enums.UserRole, error) {
	role, err := enums.ParseUserRole(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "role must be user or admin")
	}
	return role, nil
}

// parseUserFilter reads search, role and status. Status is active (default),
// deleted or all.
func parseUserFilter(r *http.Request) (users.ListFilter, error) {
	q := r.URL.Query()
	filter := users.ListFilter{Search: validators.SanitizeString(q.Get("search"), 64)}
	if raw := q.Get("role"); raw != "" {
		role, err := parseRole(raw)
		if err != nil {
			return filter, err
		}
		filter.Role = &role
	}
	switch status := strings.ToLower(strings.TrimSpace(q.Get("status"))); status {
	case "", "active":
		active := enums.LifecycleActive
		filter.Lifecycle = &active
	case "deleted":
		deleted := enums.LifecycleDeleted
		filter.Lifecycle = &deleted
	case "all":
	default:
		return filter, pkgerrors.New(pkgerrors.CodeValidation, "status must be active, deleted or all")
	}
	return filter, nil
}

func AdminListUsers(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusOK, func(r *http.Request, _ uuid.UUID) (any, error) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			return nil, err
		}
		filter, err := parseUserFilter(r)
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), filter, params)
	})
}

func AdminGetUser(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusOK, func(r *http.Request, _ uuid.UUID) (any, error) {
		id, err := validators.PathUUID(r, "userId", "user")
		if err != nil {
			return nil, err
		}
		return svc.Get(r.Context(), id)
	})
}

func AdminCreateUser(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusCreated, func(r *http.Request, _ uuid.UUID) (any, error) {
		var payload createUserPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		in := users.CreateInput{
			Email:    payload.Email,
			Password: payload.Password,
			FullName: payload.FullName,
			Phone:    payload.Phone,
		}
		if payload.Role != "" {
			role, err := parseRole(payload.Role)
			if err != nil {
				return nil, err
			}
			in.Role = role
		}
		return svc.Create(r.Context(), in)
	})
}

// AdminUpdateUser edits another account. deleted=false restores a soft-deleted one.
func AdminUpdateUser(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusOK, func(r *http.Request, actorID uuid.UUID) (any, error) {
		id, err := validators.PathUUID(r, "userId", "user")
		if err != nil {
			return nil, err
		}
		var payload updateUserPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		in := users.AdminUpdate{FullName: payload.FullName, Phone: payload.Phone, Password: payload.Password}
		if payload.Role != nil {
			role, err := parseRole(*payload.Role)
			if err != nil {
				return nil, err
			}
			in.Role = &role
		}
		if payload.Deleted != nil {
			lifecycle := enums.LifecycleActive
			if *payload.Deleted {
				lifecycle = enums.LifecycleDeleted
			}
			in.Lifecycle = &lifecycle
		}
		return svc.Update(r.Context(), actorID, id, in)
	})
}

// AdminDeleteUser soft deletes the account.
func AdminDeleteUser(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return accountHandler(svc, logg, http.StatusNoContent, func(r *http.Request, actorID uuid.UUID) (any, error) {
		id, err := validators.PathUUID(r, "userId", "user")
		if err != nil {
			return nil, err
		}
		return nil, svc.Delete(r.Context(), actorID, id)
	})
}

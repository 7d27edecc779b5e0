package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/wishlist"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// wishlistHandler resolves the caller before fn runs; fn reports failures
// through its return value.
func wishlistHandler(svc wishlist.Service, logg *logger.Logger, fn func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var err error = pkgerrors.New(pkgerrors.CodeInternal, "wishlist service unavailable")
		if svc != nil {
			var userID uuid.UUID
			if userID, _, err = middleware.Principal(ctx); err == nil {
				err = fn(w, r, userID)
			}
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
		}
	}
}

// WishlistList returns the caller's liked products, newest first.
func WishlistList(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return wishlistHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		params, err := validators.ParsePagination(r)
		if err != nil {
			return err
		}
		page, err := svc.GetWishlist(r.Context(), userID, params)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, page)
		return nil
	})
}

func WishlistAddItem(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return wishlistHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		productID, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			return err
		}
		if err := svc.AddItem(r.Context(), userID, productID); err != nil {
			return err
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"product_id": productID.String()})
		return nil
	})
}

// WishlistRemoveItem answers 204 even when the product was never liked.
func WishlistRemoveItem(svc wishlist.Service, logg *logger.Logger) http.HandlerFunc {
	return wishlistHandler(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		productID, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			return err
		}
		if err := svc.RemoveItem(r.Context(), userID, productID); err != nil {
			return err
		}
		responses.WriteNoContent(w)
		return nil
	})
}

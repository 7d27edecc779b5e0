package wishlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	products "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Entry is one liked product.
type Entry struct {
	Product products.ProductSummary `json:"product"`
	AddedAt time.Time              `json:"added_at"`
}

type Page struct {
	Items      []Entry `json:"items"`
	Count      int     `json:"count"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

type Service interface {
	GetWishlist(ctx context.Context, userID uuid.UUID, params pagination.Params) (Page, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID) error
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) error
}

type store interface {
	Add(ctx context.Context, userID, productID uuid.UUID) error
	Remove(ctx context.Context, userID, productID uuid.UUID) error
	Page(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WishlistItem, string, error)
}

type catalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type ServiceParams struct {
	WishlistRepo store
	ProductRepo  catalog
}

type service struct {
	items    store
	products catalog
}

func NewService(params ServiceParams) (Service, error) {
	if params.WishlistRepo == nil || params.ProductRepo == nil {
		return nil, errors.New("wishlist service needs the wishlist and product repositories")
	}
	return &service{items: params.WishlistRepo, products: params.ProductRepo}, nil
}

func (s *service) GetWishlist(ctx context.Context, userID uuid.UUID, params pagination.Params) (Page, error) {
	if userID == uuid.Nil {
		return Page{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := params.Validate(); err != nil {
		return Page{}, err
	}
	rows, next, err := s.items.Page(ctx, userID, params)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist")
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ProductID
	}
	live, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wishlist products")
	}

	page := Page{Items: make([]Entry, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		// a product deleted between the two reads drops out of the page
		if p, ok := live[row.ProductID]; ok {
			page.Items = append(page.Items, Entry{Product: products.NewProductSummary(p), AddedAt: row.CreatedAt})
		}
	}
	page.Count = len(page.Items)
	return page, nil
}

func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if productID == uuid.Nil {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonMissingProductID, "product id is required")
	}
	if _, err := s.products.FindByID(ctx, productID); errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonProductNotFound, "product not found")
	} else if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	err := s.items.Add(ctx, userID, productID)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, uniqueConstraint), db.IsUniqueViolation(err, "wishlist_items.user_id"):
		return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonAlreadyInWishlist, "product is already in the wishlist")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add wishlist item")
	}
}

// RemoveItem succeeds whether or not the product was liked.
func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := s.items.Remove(ctx, userID, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove wishlist item")
	}
	return nil
}

package product

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

var slugInvalidRe = regexp.MustCompile(`[^a-z0-9]+`)

// Service exposes catalog reads and admin product management.
type Service interface {
	ListProducts(ctx context.Context, q ListQuery, params pagination.Params) (*ProductPageDTO, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

// service implements the product service.
type service struct {
	repo *Repository
}

// NewService constructs a product service instance.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListProducts(ctx context.Context, q ListQuery, params pagination.Params) (*ProductPageDTO, error) {
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_price cannot exceed max_price")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rows, next, err := s.repo.List(ctx, q, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	page := &ProductPageDTO{Items: make([]ProductDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Items = append(page.Items, NewProductDTO(row))
	}
	return page, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := NewProductDTO(*product)
	return &dto, nil
}

// CreateProduct validates and inserts a catalog entry. The slug defaults to one
// derived from the name.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	product := models.Product{
		SKU:         strings.TrimSpace(input.SKU),
		Name:        strings.TrimSpace(input.Name),
		Slug:        Slugify(input.Slug),
		Description: strings.TrimSpace(input.Description),
		Price:       input.Price,
		SalePrice:   input.SalePrice,
		Stock:       input.Stock,
		Images:      input.Images,
	}
	if product.Slug == "" {
		product.Slug = Slugify(product.Name)
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, product, nil); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	dto := NewProductDTO(product)
	return &dto, nil
}

func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	product, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	applyUpdateToProduct(product, input)
	if err := validateProduct(*product); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, *product, &product.ID); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	dto := NewProductDTO(*product)
	return &dto, nil
}

// DeleteProduct soft deletes the product. Existing orders keep their frozen lines.
func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonMissingProductID, "product id is required")
	}
	affected, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	if affected == 0 {
		return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonProductNotFound, "product not found")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonMissingProductID, "product id is required")
	}
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonProductNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) ensureUnique(ctx context.Context, p models.Product, exclude *uuid.UUID) error {
	for column, value := range map[string]string{"sku": p.SKU, "slug": p.Slug} {
		exists, err := s.repo.Exists(ctx, column, value, exclude)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product uniqueness")
		}
		if exists {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "product %s already exists", column)
		}
	}
	return nil
}

func validateProduct(p models.Product) error {
	switch {
	case p.SKU == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	case p.Name == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case p.Slug == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	case p.Price < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	case p.SalePrice != nil && *p.SalePrice < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "sale_price must be non-negative")
	case p.SalePrice != nil && *p.SalePrice > p.Price:
		return pkgerrors.New(pkgerrors.CodeValidation, "sale_price cannot exceed price")
	case p.Stock < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "stock must be non-negative")
	}
	return nil
}

func applyUpdateToProduct(product *models.Product, input UpdateProductInput) {
	if input.SKU != nil {
		product.SKU = strings.TrimSpace(*input.SKU)
	}
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Slug != nil {
		product.Slug = Slugify(*input.Slug)
	}
	if input.Description != nil {
		product.Description = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.ClearSale {
		product.SalePrice = nil
	} else if input.SalePrice != nil {
		product.SalePrice = input.SalePrice
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.Images != nil {
		product.Images = append([]string(nil), (*input.Images)...)
	}
}

// Slugify lowercases value and collapses every non alphanumeric run into a dash.
func Slugify(value string) string {
	slug := slugInvalidRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	return strings.Trim(slug, "-")
}

package promotions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

var hundred = decimal.NewFromInt(100)

// Service exposes promotion previews and admin management.
type Service interface {
	Preview(ctx context.Context, code string, orderAmount int64) (*PreviewDTO, error)
	ListActive(ctx context.Context) ([]PromotionDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*PromotionDTO, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) (*PromotionPageDTO, error)
	Create(ctx context.Context, input CreateInput) (*PromotionDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*PromotionDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo      *Repository
	validator *Validator
	now       func() time.Time
}

// NewService builds the promotions service.
func NewService(repo *Repository, validator *Validator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promotions repository required")
	}
	if validator == nil {
		return nil, fmt.Errorf("promotion validator required")
	}
	return &service{repo: repo, validator: validator, now: time.Now}, nil
}

func (s *service) Preview(ctx context.Context, code string, orderAmount int64) (*PreviewDTO, error) {
	if orderAmount < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order amount must be non-negative")
	}
	res, err := s.validator.Validate(ctx, code, orderAmount, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return &PreviewDTO{
		Code:           res.Promotion.Code,
		DiscountType:   res.Promotion.DiscountType,
		DiscountValue:  res.Promotion.DiscountValue,
		DiscountAmount: res.Amount,
		FinalAmount:    pricing.CartTotal(orderAmount, res.Amount),
		Description:    res.Promotion.Description,
	}, nil
}

func (s *service) ListActive(ctx context.Context) ([]PromotionDTO, error) {
	rows, err := s.repo.ListRedeemable(ctx, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active promotions")
	}
	out := make([]PromotionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDTO(row))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PromotionDTO, error) {
	promo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(*promo)
	return &dto, nil
}

func (s *service) List(ctx context.Context, filter ListFilter, params pagination.Params) (*PromotionPageDTO, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	rows, next, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promotions")
	}
	page := &PromotionPageDTO{Items: make([]PromotionDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Items = append(page.Items, ToDTO(row))
	}
	return page, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*PromotionDTO, error) {
	promo := models.Promotion{
		Code:          NormalizeCode(input.Code),
		Description:   input.Description,
		DiscountType:  input.DiscountType,
		DiscountValue: input.DiscountValue,
		StartDate:     input.StartDate.UTC(),
		EndDate:       input.EndDate.UTC(),
		MinSpend:      input.MinSpend,
		IsActive:      true,
	}
	if input.IsActive != nil {
		promo.IsActive = *input.IsActive
	}
	if err := validatePromotion(promo); err != nil {
		return nil, err
	}
	if err := s.ensureCodeFree(ctx, promo.Code, nil); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create promotion")
	}
	dto := ToDTO(promo)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*PromotionDTO, error) {
	promo, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Code != nil {
		promo.Code = NormalizeCode(*input.Code)
		if err := s.ensureCodeFree(ctx, promo.Code, &promo.ID); err != nil {
			return nil, err
		}
	}
	if input.Description != nil {
		promo.Description = input.Description
	}
	if input.DiscountType != nil {
		promo.DiscountType = *input.DiscountType
	}
	if input.DiscountValue != nil {
		promo.DiscountValue = *input.DiscountValue
	}
	if input.StartDate != nil {
		promo.StartDate = input.StartDate.UTC()
	}
	if input.EndDate != nil {
		promo.EndDate = input.EndDate.UTC()
	}
	if input.MinSpend != nil {
		promo.MinSpend = *input.MinSpend
	}
	if input.IsActive != nil {
		promo.IsActive = *input.IsActive
	}
	if err := validatePromotion(*promo); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update promotion")
	}
	dto := ToDTO(*promo)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	affected, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete promotion")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Promotion, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promotion id is required")
	}
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promotion not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}
	return promo, nil
}

func (s *service) ensureCodeFree(ctx context.Context, code string, exclude *uuid.UUID) error {
	exists, err := s.repo.CodeExists(ctx, code, exclude)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check promotion code")
	}
	if exists {
		return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonCodeExists, "promotion code already exists")
	}
	return nil
}

func validatePromotion(p models.Promotion) error {
	if p.Code == "" {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidCode, "code is required")
	}
	if !p.DiscountType.IsValid() {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidDiscountValue, "discount type must be percentage or fixed")
	}
	if p.DiscountValue.IsNegative() {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidDiscountValue, "discount value must be non-negative")
	}
	if p.DiscountType == enums.DiscountTypePercentage && p.DiscountValue.GreaterThan(hundred) {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidDiscountValue, "percentage discount must be between 0 and 100")
	}
	if p.MinSpend < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "min spend must be non-negative")
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() || !p.StartDate.Before(p.EndDate) {
		return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidDateRange, "start date must be before end date")
	}
	return nil
}

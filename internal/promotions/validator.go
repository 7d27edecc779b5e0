package promotions

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Result is a promotion that validated against a subtotal together with the
// discount it yields.
type Result struct {
	Promotion models.Promotion
	Amount    int64
}

// Validator checks a code against its date window and minimum spend.
type Validator struct {
	repo *Repository
}

// NewValidator builds a validator over the promotions repository.
func NewValidator(repo *Repository) *Validator {
	return &Validator{repo: repo}
}

// WithTx returns a validator that reads through the caller's transaction.
func (v *Validator) WithTx(tx *gorm.DB) *Validator {
	return &Validator{repo: v.repo.WithTx(tx)}
}

// NormalizeCode canonicalizes a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate resolves code and computes its discount for subtotal at now. The
// start and end dates are inclusive.
func (v *Validator) Validate(ctx context.Context, code string, subtotal int64, now time.Time) (Result, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Result{}, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidCode, "discount code is required")
	}

	promo, err := v.repo.FindActiveByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonInvalidCode, "discount code is invalid")
		}
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promotion")
	}

	if now.Before(promo.StartDate) {
		return Result{}, pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonCodeNotStarted, "discount code is not active yet")
	}
	if now.After(promo.EndDate) {
		return Result{}, pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonCodeExpired, "discount code has expired")
	}
	if promo.MinSpend > 0 && subtotal < promo.MinSpend {
		return Result{}, pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonMinSpendNotMet, "order does not meet the minimum spend").
			WithDetails(map[string]any{"min_spend": promo.MinSpend})
	}

	amount := pricing.DiscountAmount(subtotal, DiscountOf(*promo))
	return Result{Promotion: *promo, Amount: amount}, nil
}

// DiscountOf converts a stored promotion into the pricing rule it describes.
func DiscountOf(promo models.Promotion) pricing.Discount {
	return pricing.Discount{Type: promo.DiscountType, Value: promo.DiscountValue}
}

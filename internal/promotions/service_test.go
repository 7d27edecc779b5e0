package promotions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func newTestService(t *testing.T) (*service, *Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t).DB())
	svc, err := NewService(repo, NewValidator(repo))
	require.NoError(t, err)
	impl := svc.(*service)
	impl.now = func() time.Time { return refNow }
	return impl, repo
}

func validCreate() CreateInput {
	return CreateInput{
		Code:          "spring20",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(20),
		StartDate:     refNow.Add(-time.Hour),
		EndDate:       refNow.Add(72 * time.Hour),
	}
}

func TestCreateNormalizesCodeAndRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dto, err := svc.Create(ctx, validCreate())
	require.NoError(t, err)
	require.Equal(t, "SPRING20", dto.Code)
	require.True(t, dto.IsActive)

	_, err = svc.Create(ctx, validCreate())
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonCodeExists))
}

func TestCreateValidatesRanges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	in := validCreate()
	in.DiscountValue = decimal.NewFromInt(101)
	_, err := svc.Create(ctx, in)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidDiscountValue))

	in = validCreate()
	in.EndDate = in.StartDate
	_, err = svc.Create(ctx, in)
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonInvalidDateRange))

	in = validCreate()
	in.DiscountType = "bogus"
	_, err = svc.Create(ctx, in)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validCreate())
	require.NoError(t, err)
	other := validCreate()
	other.Code = "OTHER"
	_, err = svc.Create(ctx, other)
	require.NoError(t, err)

	minSpend := int64(100000)
	updated, err := svc.Update(ctx, created.ID, UpdateInput{MinSpend: &minSpend})
	require.NoError(t, err)
	require.Equal(t, minSpend, updated.MinSpend)

	clash := "other"
	_, err = svc.Update(ctx, created.ID, UpdateInput{Code: &clash})
	require.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonCodeExists))

	require.NoError(t, svc.Delete(ctx, created.ID))
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(svc.Delete(ctx, created.ID)))
	_, err = svc.Get(ctx, uuid.New())
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestPreviewAndListActive(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	seedPromotion(t, repo, nil)
	seedPromotion(t, repo, func(p *models.Promotion) {
		p.Code = "LATER"
		p.StartDate = refNow.Add(time.Hour)
		p.EndDate = refNow.Add(2 * time.Hour)
	})

	preview, err := svc.Preview(ctx, "save10", 200000)
	require.NoError(t, err)
	require.Equal(t, int64(20000), preview.DiscountAmount)
	require.Equal(t, int64(180000), preview.FinalAmount)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "SAVE10", active[0].Code)

	page, err := svc.List(ctx, ListFilter{Search: "lat"}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "LATER", page.Items[0].Code)
}

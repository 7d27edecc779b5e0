package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

type stubCheckout struct {
	place func(ctx context.Context, input checkout.PlaceOrderInput) (*models.Order, error)
}

func (s stubCheckout) PlaceOrder(ctx context.Context, input checkout.PlaceOrderInput) (*models.Order, error) {
	return s.place(ctx, input)
}

type stubOrdersService struct {
	internalorders.Service

	get      func(ctx context.Context, actor internalorders.Actor, id uuid.UUID) (*internalorders.OrderDTO, error)
	track    func(ctx context.Context, code string) (*internalorders.TrackingDTO, error)
	listMine func(ctx context.Context, actor internalorders.Actor, status *enums.OrderStatus, params pagination.Params) (*internalorders.OrderPageDTO, error)
	cancel   func(ctx context.Context, actor internalorders.Actor, id uuid.UUID, reason string) (*internalorders.OrderDTO, error)
}

func (s stubOrdersService) Get(ctx context.Context, actor internalorders.Actor, id uuid.UUID) (*internalorders.OrderDTO, error) {
	return s.get(ctx, actor, id)
}

func (s stubOrdersService) Track(ctx context.Context, code string) (*internalorders.TrackingDTO, error) {
	return s.track(ctx, code)
}

func (s stubOrdersService) ListMine(ctx context.Context, actor internalorders.Actor, status *enums.OrderStatus, params pagination.Params) (*internalorders.OrderPageDTO, error) {
	return s.listMine(ctx, actor, status, params)
}

func (s stubOrdersService) Cancel(ctx context.Context, actor internalorders.Actor, id uuid.UUID, reason string) (*internalorders.OrderDTO, error) {
	return s.cancel(ctx, actor, id, reason)
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), userID, enums.UserRoleUser))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestPlaceReturnsCreatedOrder(t *testing.T) {
	userID := uuid.New()
	var captured checkout.PlaceOrderInput
	svc := stubCheckout{place: func(ctx context.Context, input checkout.PlaceOrderInput) (*models.Order, error) {
		captured = input
		return &models.Order{
			ID:            uuid.New(),
			Code:          "ORD-20261016-ABC123",
			UserID:        input.UserID,
			PaymentMethod: enums.PaymentMethodCOD,
			PaymentStatus: enums.PaymentStatusPending,
			Status:        enums.OrderStatusPending,
			TotalAmount:   53000,
			CreatedAt:     time.Now(),
		}, nil
	}}

	body := `{
		"shipping_address": {"full_name":"Lan","phone":"0901234567","province":"HCM","district":"1","ward":"Ben Nghe","street":"1 Le Loi"},
		"payment_method": "cod",
		"discount_code": "SALE10"
	}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), userID)
	resp := httptest.NewRecorder()
	Place(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.UserID != userID || captured.Role != enums.UserRoleUser {
		t.Fatalf("unexpected principal: %+v", captured)
	}
	if captured.DiscountCode == nil || *captured.DiscountCode != "SALE10" {
		t.Fatalf("discount code not forwarded")
	}
	if captured.ShippingAddress.Ward != "Ben Nghe" {
		t.Fatalf("address not forwarded: %+v", captured.ShippingAddress)
	}

	var envelope struct {
		Data internalorders.OrderDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Code != "ORD-20261016-ABC123" || envelope.Data.TotalAmount != 53000 {
		t.Fatalf("unexpected order: %+v", envelope.Data)
	}
}

func TestPlaceLeavesAddressChecksToService(t *testing.T) {
	svc := stubCheckout{place: func(ctx context.Context, input checkout.PlaceOrderInput) (*models.Order, error) {
		return nil, pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidAddress, "shipping address is incomplete")
	}}

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"shipping_address":{},"payment_method":"cod"}`)), uuid.New())
	resp := httptest.NewRecorder()
	Place(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	var envelope responses.Failure
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Reason != string(pkgerrors.ReasonInvalidAddress) {
		t.Fatalf("unexpected reason %q", envelope.Error.Reason)
	}
}

func TestPlaceForwardsSavedAddress(t *testing.T) {
	addressID := uuid.New()
	var captured checkout.PlaceOrderInput
	svc := stubCheckout{place: func(ctx context.Context, input checkout.PlaceOrderInput) (*models.Order, error) {
		captured = input
		return &models.Order{ID: uuid.New(), UserID: input.UserID}, nil
	}}

	body := `{"address_id":"` + addressID.String() + `","payment_method":"cod"}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	Place(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.AddressID == nil || *captured.AddressID != addressID {
		t.Fatalf("address id not forwarded: %+v", captured.AddressID)
	}
}

func TestListParsesStatusAndCursor(t *testing.T) {
	var gotStatus *enums.OrderStatus
	var gotParams pagination.Params
	svc := stubOrdersService{listMine: func(ctx context.Context, actor internalorders.Actor, status *enums.OrderStatus, params pagination.Params) (*internalorders.OrderPageDTO, error) {
		gotStatus, gotParams = status, params
		return &internalorders.OrderPageDTO{Orders: []internalorders.OrderDTO{}}, nil
	}}

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=shipped&limit=10&cursor=abc", nil), uuid.New())
	resp := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotStatus == nil || *gotStatus != enums.OrderStatusShipped {
		t.Fatalf("unexpected status filter %v", gotStatus)
	}
	if gotParams.Limit != 10 || gotParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", gotParams)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/orders?status=lost", nil), uuid.New())
	resp := httptest.NewRecorder()
	List(stubOrdersService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestDetailRefusesForeignOrders(t *testing.T) {
	svc := stubOrdersService{get: func(ctx context.Context, actor internalorders.Actor, id uuid.UUID) (*internalorders.OrderDTO, error) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}}

	orderID := uuid.New()
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil), uuid.New())
	req = withURLParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	Detail(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestCancelAcceptsEmptyBody(t *testing.T) {
	var gotReason = "unset"
	svc := stubOrdersService{cancel: func(ctx context.Context, actor internalorders.Actor, id uuid.UUID, reason string) (*internalorders.OrderDTO, error) {
		gotReason = reason
		return &internalorders.OrderDTO{ID: id, Status: enums.OrderStatusCancelled}, nil
	}}

	orderID := uuid.New()
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", nil), uuid.New())
	req = withURLParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotReason != "" {
		t.Fatalf("expected empty reason got %q", gotReason)
	}
}

func TestCancelForwardsReason(t *testing.T) {
	var gotReason string
	svc := stubOrdersService{cancel: func(ctx context.Context, actor internalorders.Actor, id uuid.UUID, reason string) (*internalorders.OrderDTO, error) {
		gotReason = reason
		return &internalorders.OrderDTO{ID: id}, nil
	}}

	orderID := uuid.New()
	req := authed(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"  changed my mind "}`)), uuid.New())
	req = withURLParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	Cancel(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotReason != "changed my mind" {
		t.Fatalf("unexpected reason %q", gotReason)
	}
}

func TestTrackIsPublic(t *testing.T) {
	svc := stubOrdersService{track: func(ctx context.Context, code string) (*internalorders.TrackingDTO, error) {
		return &internalorders.TrackingDTO{Code: code, Phone: "090****567"}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/track/ORD-1", nil)
	req = withURLParam(req, "code", "ORD-1")
	resp := httptest.NewRecorder()
	Track(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data internalorders.TrackingDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Code != "ORD-1" {
		t.Fatalf("unexpected code %q", envelope.Data.Code)
	}
}

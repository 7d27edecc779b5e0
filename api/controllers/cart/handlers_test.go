package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type stubCartService struct {
	view *cartsvc.CartView
	err  error

	userID    uuid.UUID
	productID uuid.UUID
	quantity  int
	code      string
}

func (s *stubCartService) GetCart(ctx context.Context, userID uuid.UUID) (*cartsvc.CartView, error) {
	s.userID = userID
	return s.view, s.err
}

func (s *stubCartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*cartsvc.CartView, error) {
	s.userID, s.productID, s.quantity = userID, productID, quantity
	return s.view, s.err
}

func (s *stubCartService) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*cartsvc.CartView, error) {
	s.userID, s.productID, s.quantity = userID, productID, quantity
	return s.view, s.err
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*cartsvc.CartView, error) {
	s.userID, s.productID = userID, productID
	return s.view, s.err
}

func (s *stubCartService) Clear(ctx context.Context, userID uuid.UUID) (*cartsvc.CartView, error) {
	s.userID = userID
	return s.view, s.err
}

func (s *stubCartService) ApplyDiscount(ctx context.Context, userID uuid.UUID, code string) (*cartsvc.CartView, error) {
	s.userID, s.code = userID, code
	return s.view, s.err
}

func (s *stubCartService) RemoveDiscount(ctx context.Context, userID uuid.UUID) (*cartsvc.CartView, error) {
	s.userID = userID
	return s.view, s.err
}

func authed(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithPrincipal(req.Context(), userID, enums.UserRoleUser))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCartFetchReturnsView(t *testing.T) {
	userID := uuid.New()
	svc := &stubCartService{view: &cartsvc.CartView{ID: uuid.New(), Subtotal: 1500, Total: 1500}}

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil), userID)
	resp := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data cartsvc.CartView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != svc.view.ID || envelope.Data.Total != 1500 {
		t.Fatalf("unexpected cart: %+v", envelope.Data)
	}
	if svc.userID != userID {
		t.Fatalf("expected service to receive caller id")
	}
}

func TestCartFetchRequiresAuthentication(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	resp := httptest.NewRecorder()
	CartFetch(&stubCartService{}, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddItemPassesPayload(t *testing.T) {
	productID := uuid.New()
	svc := &stubCartService{view: &cartsvc.CartView{}}
	body := `{"product_id":"` + productID.String() + `","quantity":3}`

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.productID != productID || svc.quantity != 3 {
		t.Fatalf("unexpected service input: %s x%d", svc.productID, svc.quantity)
	}
}

func TestCartAddItemSurfacesStockReason(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonInsufficientStock, "only 2 left in stock")}
	body := `{"product_id":"` + uuid.NewString() + `","quantity":5}`

	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), uuid.New())
	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var envelope responses.Failure
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Reason != string(pkgerrors.ReasonInsufficientStock) {
		t.Fatalf("unexpected reason %q", envelope.Error.Reason)
	}
}

func TestCartUpdateItemRejectsBadProductID(t *testing.T) {
	svc := &stubCartService{}
	req := authed(httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/nope", strings.NewReader(`{"quantity":1}`)), uuid.New())
	req = withURLParam(req, "productId", "nope")
	resp := httptest.NewRecorder()
	CartUpdateItem(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartApplyDiscountRequiresCode(t *testing.T) {
	svc := &stubCartService{}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/cart/discount", strings.NewReader(`{}`)), uuid.New())
	resp := httptest.NewRecorder()
	CartApplyDiscount(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.code != "" {
		t.Fatalf("service should not be called")
	}
}

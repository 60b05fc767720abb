package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/DRSN-tech/storefront/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderUC struct {
	create func(ctx context.Context, req *usecase.CreateOrderReq) (*domain.Order, error)
	get    func(ctx context.Context, id int64) (*domain.Order, error)
	list   func(ctx context.Context) ([]domain.Order, error)
	status func(ctx context.Context, req *usecase.UpdateOrderStatusReq) (*domain.Order, error)
	del    func(ctx context.Context, id int64) error
}

func (f *fakeOrderUC) CreateOrder(ctx context.Context, req *usecase.CreateOrderReq) (*domain.Order, error) {
	return f.create(ctx, req)
}

func (f *fakeOrderUC) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return f.get(ctx, id)
}

func (f *fakeOrderUC) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return f.list(ctx)
}

func (f *fakeOrderUC) UpdateOrderStatus(ctx context.Context, req *usecase.UpdateOrderStatusReq) (*domain.Order, error) {
	return f.status(ctx, req)
}

func (f *fakeOrderUC) DeleteOrder(ctx context.Context, id int64) error {
	return f.del(ctx, id)
}

type fakeProductUC struct {
	create func(ctx context.Context, req *usecase.CreateProductReq) (*domain.Product, error)
	get    func(ctx context.Context, id int64) (*domain.Product, error)
	list   func(ctx context.Context) ([]domain.Product, error)
	update func(ctx context.Context, req *usecase.UpdateProductReq) (*domain.Product, error)
	del    func(ctx context.Context, id int64) error
}

func (f *fakeProductUC) CreateProduct(ctx context.Context, req *usecase.CreateProductReq) (*domain.Product, error) {
	return f.create(ctx, req)
}

func (f *fakeProductUC) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return f.get(ctx, id)
}

func (f *fakeProductUC) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return f.list(ctx)
}

func (f *fakeProductUC) UpdateProduct(ctx context.Context, req *usecase.UpdateProductReq) (*domain.Product, error) {
	return f.update(ctx, req)
}

func (f *fakeProductUC) DeleteProduct(ctx context.Context, id int64) error {
	return f.del(ctx, id)
}

func newTestRouter(t *testing.T, orders *fakeOrderUC, products *fakeProductUC, ordersCfg *cfg.OrdersCfg) http.Handler {
	t.Helper()

	if ordersCfg == nil {
		ordersCfg = &cfg.OrdersCfg{RequestTimeout: time.Second}
	}

	mux := chi.NewRouter()
	log := logger.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewServerMetrics(prometheus.NewRegistry(), "test")
	NewRouter(mux, log, m, ordersCfg).Init(products, orders)

	return mux
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func placedOrder() *domain.Order {
	name := "Kettle"
	return &domain.Order{
		ID:         1,
		CustomerID: 7,
		Status:     domain.OrderStatusPending,
		Total:      decimal.RequireFromString("39.99"),
		Items: []domain.OrderItem{
			{ID: 1, OrderID: 1, ProductID: 1, ProductName: &name, UnitPrice: decimal.RequireFromString("10.00"),
				Quantity: 3, LineTotal: decimal.RequireFromString("30.00")},
			{ID: 2, OrderID: 1, ProductID: 2, UnitPrice: decimal.RequireFromString("4.995"),
				Quantity: 2, LineTotal: decimal.RequireFromString("9.99")},
		},
	}
}

func TestCreateOrderReturnsCreatedOrder(t *testing.T) {
	var got *usecase.CreateOrderReq
	orders := &fakeOrderUC{create: func(ctx context.Context, req *usecase.CreateOrderReq) (*domain.Order, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		got = req
		return placedOrder(), nil
	}}
	h := newTestRouter(t, orders, &fakeProductUC{}, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/orders",
		`{"customer_id":7,"items":[{"product_id":2,"quantity":2},{"product_id":1,"quantity":3}]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.CustomerID)
	assert.Equal(t, []usecase.OrderLineReq{
		usecase.NewOrderLineReq(2, 2),
		usecase.NewOrderLineReq(1, 3),
	}, got.Items)

	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "39.99", resp.Total)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "10", resp.Items[0].UnitPrice)
	assert.Equal(t, "30.00", resp.Items[0].LineTotal)
	assert.Equal(t, "4.995", resp.Items[1].UnitPrice)
	assert.Nil(t, resp.Items[1].ProductName)
}

func TestCreateOrderErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantCode   int
		wantKind   string
		wantMsg    string
		retryAfter bool
	}{
		{
			name:     "malformed body",
			body:     `{"customer_id":`,
			wantCode: http.StatusBadRequest,
			wantKind: KindInvalidRequest,
			wantMsg:  e.ErrMalformedRequestBody.Error(),
		},
		{
			name:     "validation",
			body:     `{"customer_id":7,"items":[]}`,
			err:      e.Wrap("OrderUseCase.CreateOrder", e.Invalid(e.ErrItemsRequired)),
			wantCode: http.StatusBadRequest,
			wantKind: KindInvalidRequest,
			wantMsg:  "items are required",
		},
		{
			name:     "insufficient stock",
			body:     `{"customer_id":7,"items":[{"product_id":3,"quantity":9}]}`,
			err:      e.Wrap("OrderUseCase.CreateOrder", e.NewProductError(e.ErrInsufficientStock, 3)),
			wantCode: http.StatusBadRequest,
			wantKind: KindInsufficientStock,
			wantMsg:  "insufficient stock for product 3",
		},
		{
			name:     "unknown product",
			body:     `{"customer_id":7,"items":[{"product_id":99,"quantity":1}]}`,
			err:      e.Wrap("OrderUseCase.CreateOrder", e.NewProductError(e.ErrProductNotFound, 99)),
			wantCode: http.StatusBadRequest,
			wantKind: KindProductNotFound,
			wantMsg:  "product 99 not found",
		},
		{
			name:       "deadlock",
			body:       `{"customer_id":7,"items":[{"product_id":1,"quantity":1}]}`,
			err:        e.Storage(e.Wrap("GetForUpdate", e.ErrTransientConflict)),
			wantCode:   http.StatusInternalServerError,
			wantKind:   KindStorageFailure,
			wantMsg:    e.ErrStorageFailure.Error(),
			retryAfter: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &fakeOrderUC{create: func(context.Context, *usecase.CreateOrderReq) (*domain.Order, error) {
				return nil, tt.err
			}}
			h := newTestRouter(t, orders, &fakeProductUC{}, nil)

			rec := do(t, h, http.MethodPost, "/api/v1/orders", tt.body)

			require.Equal(t, tt.wantCode, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.wantKind, resp.Kind)
			assert.Equal(t, tt.wantMsg, resp.Message)
			if tt.retryAfter {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestCreateOrderRateLimited(t *testing.T) {
	orders := &fakeOrderUC{create: func(context.Context, *usecase.CreateOrderReq) (*domain.Order, error) {
		return placedOrder(), nil
	}}
	h := newTestRouter(t, orders, &fakeProductUC{}, &cfg.OrdersCfg{RateLimit: 0.001, RateBurst: 1})

	body := `{"customer_id":7,"items":[{"product_id":1,"quantity":1}]}`
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/api/v1/orders", body).Code)

	rec := do(t, h, http.MethodPost, "/api/v1/orders", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, KindRateLimited, decodeError(t, rec).Kind)

	// Лимит касается только оформления
	orders.list = func(context.Context) ([]domain.Order, error) { return nil, nil }
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/orders", "").Code)
}

func TestGetOrder(t *testing.T) {
	orders := &fakeOrderUC{get: func(_ context.Context, id int64) (*domain.Order, error) {
		if id == 1 {
			return placedOrder(), nil
		}
		return nil, e.Wrap("OrderUseCase.GetOrder", e.ErrOrderNotFound)
	}}
	h := newTestRouter(t, orders, &fakeProductUC{}, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/orders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Kettle", *resp.Items[0].ProductName)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/2", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, KindNotFound, decodeError(t, rec).Kind)

	rec = do(t, h, http.MethodGet, "/api/v1/orders/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid id", decodeError(t, rec).Message)
}

func TestListOrdersOmitsItems(t *testing.T) {
	orders := &fakeOrderUC{list: func(context.Context) ([]domain.Order, error) {
		return []domain.Order{{ID: 1, CustomerID: 7, Status: "pending", Total: decimal.RequireFromString("5")}}, nil
	}}
	h := newTestRouter(t, orders, &fakeProductUC{}, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":"5.00"`)
	assert.NotContains(t, rec.Body.String(), `"items"`)
}

func TestUpdateOrderStatus(t *testing.T) {
	orders := &fakeOrderUC{status: func(_ context.Context, req *usecase.UpdateOrderStatusReq) (*domain.Order, error) {
		if req.Status == "" {
			return nil, e.Wrap("OrderUseCase.UpdateOrderStatus", e.Invalid(e.ErrStatusRequired))
		}
		order := placedOrder()
		order.ID = req.ID
		order.Status = req.Status
		return order, nil
	}}
	h := newTestRouter(t, orders, &fakeProductUC{}, nil)

	rec := do(t, h, http.MethodPut, "/api/v1/orders/4", `{"status":"shipped"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(4), resp.ID)
	assert.Equal(t, "shipped", resp.Status)

	rec = do(t, h, http.MethodPut, "/api/v1/orders/4", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status required", decodeError(t, rec).Message)
}

func TestDeleteOrder(t *testing.T) {
	orders := &fakeOrderUC{del: func(_ context.Context, id int64) error {
		if id == 1 {
			return nil
		}
		return e.ErrOrderNotFound
	}}
	h := newTestRouter(t, orders, &fakeProductUC{}, nil)

	rec := do(t, h, http.MethodDelete, "/api/v1/orders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "order deleted")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/v1/orders/2", "").Code)
}

func TestCreateProduct(t *testing.T) {
	products := &fakeProductUC{create: func(_ context.Context, req *usecase.CreateProductReq) (*domain.Product, error) {
		if req.SKU == "DUP" {
			return nil, e.Wrap("ProductRepo.Create", e.ErrSKUConflict)
		}
		return &domain.Product{ID: 1, Name: req.Name, SKU: req.SKU, Price: req.Price, Quantity: req.Quantity}, nil
	}}
	h := newTestRouter(t, &fakeOrderUC{}, products, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/products", `{"name":"Kettle","sku":"KT-1","price":"19.9900","quantity":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "19.99", resp.Price)
	assert.Equal(t, int64(5), resp.Quantity)

	rec = do(t, h, http.MethodPost, "/api/v1/products", `{"name":"Kettle","sku":"DUP","price":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, KindConflict, decodeError(t, rec).Kind)
}

func TestUpdateProductPassesOnlyProvidedFields(t *testing.T) {
	var got *usecase.UpdateProductReq
	products := &fakeProductUC{update: func(_ context.Context, req *usecase.UpdateProductReq) (*domain.Product, error) {
		got = req
		return &domain.Product{ID: req.ID, Name: *req.Patch.Name}, nil
	}}
	h := newTestRouter(t, &fakeOrderUC{}, products, nil)

	rec := do(t, h, http.MethodPut, "/api/v1/products/3", `{"name":"Cup"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.ID)
	assert.Equal(t, "Cup", *got.Patch.Name)
	assert.Nil(t, got.Patch.SKU)
	assert.Nil(t, got.Patch.Price)
	assert.Nil(t, got.Patch.Quantity)
}

func TestGetProductNotFound(t *testing.T) {
	products := &fakeProductUC{get: func(context.Context, int64) (*domain.Product, error) {
		return nil, e.Wrap("ProductRepo.GetByID", e.ErrProductNotFound)
	}}
	h := newTestRouter(t, &fakeOrderUC{}, products, nil)

	rec := do(t, h, http.MethodGet, "/api/v1/products/9", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, KindNotFound, decodeError(t, rec).Kind)
}

func TestDeleteProduct(t *testing.T) {
	products := &fakeProductUC{del: func(context.Context, int64) error { return nil }}
	h := newTestRouter(t, &fakeOrderUC{}, products, nil)

	rec := do(t, h, http.MethodDelete, "/api/v1/products/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "product deleted")
}

func TestMetricsEndpointCountsOrders(t *testing.T) {
	orders := &fakeOrderUC{create: func(context.Context, *usecase.CreateOrderReq) (*domain.Order, error) {
		return placedOrder(), nil
	}}
	h := newTestRouter(t, orders, &fakeProductUC{}, nil)

	do(t, h, http.MethodPost, "/api/v1/orders", `{"customer_id":7,"items":[{"product_id":1,"quantity":1}]}`)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_test_orders_total{outcome="created"} 1`)
	assert.Contains(t, rec.Body.String(), `handler="POST /api/v1/orders`)
}

func TestReadyzReportsFailedDependencies(t *testing.T) {
	mux := chi.NewRouter()
	log := logger.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewServerMetrics(prometheus.NewRegistry(), "test")

	redisDown := false
	NewRouter(mux, log, m, &cfg.OrdersCfg{RequestTimeout: time.Second}).
		WithReadinessCheck("postgres", func(context.Context) error { return nil }).
		WithReadinessCheck("redis", func(context.Context) error {
			if redisDown {
				return errors.New("connection refused")
			}
			return nil
		}).
		Init(&fakeProductUC{}, &fakeOrderUC{})

	rec := do(t, mux, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	redisDown = true
	rec = do(t, mux, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var failed map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	assert.Equal(t, map[string]string{"redis": "connection refused"}, failed)
}

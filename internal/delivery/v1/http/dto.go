package http

import (
	"time"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/shopspring/decimal"
)

// REQUESTS

type CreateOrderRequest struct {
	CustomerID int64              `json:"customer_id" example:"1"`
	Items      []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ProductID int64 `json:"product_id" example:"3"`
	Quantity  int64 `json:"quantity" example:"2"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" example:"shipped"`
}

// CreateProductRequest: price принимается и строкой, и числом.
type CreateProductRequest struct {
	Name        string          `json:"name" example:"Kettle"`
	SKU         string          `json:"sku" example:"KT-1"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" swaggertype:"string" example:"19.99"`
	Quantity    int64           `json:"quantity" example:"10"`
}

// UpdateProductRequest — частичное обновление, отсутствующие поля не меняются.
type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	SKU         *string          `json:"sku"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price" swaggertype:"string"`
	Quantity    *int64           `json:"quantity"`
}

// RESPONSES

type OrderResponse struct {
	ID         int64               `json:"id"`
	CustomerID int64               `json:"customer_id"`
	Status     string              `json:"status"`
	Total      string              `json:"total" example:"39.99"`
	CreatedAt  time.Time           `json:"created_at"`
	Items      []OrderItemResponse `json:"items,omitempty"`
}

type OrderItemResponse struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"product_id"`
	ProductName *string `json:"product_name"`
	UnitPrice   string  `json:"unit_price" example:"4.995"`
	Quantity    int64   `json:"quantity"`
	LineTotal   string  `json:"line_total" example:"9.99"`
}

type ProductResponse struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	SKU         string     `json:"sku"`
	Description string     `json:"description"`
	Price       string     `json:"price" example:"19.99"`
	Quantity    int64      `json:"quantity"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// MAPPERS

func (r *CreateOrderRequest) toUsecase() *usecase.CreateOrderReq {
	lines := make([]usecase.OrderLineReq, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, usecase.NewOrderLineReq(item.ProductID, item.Quantity))
	}

	return usecase.NewCreateOrderReq(r.CustomerID, lines)
}

func (r *CreateProductRequest) toUsecase() *usecase.CreateProductReq {
	return usecase.NewCreateProductReq(r.Name, r.SKU, r.Description, r.Price, r.Quantity)
}

func (r *UpdateProductRequest) toUsecase(id int64) *usecase.UpdateProductReq {
	return usecase.NewUpdateProductReq(id, domain.ProductPatch{
		Name:        r.Name,
		SKU:         r.SKU,
		Description: r.Description,
		Price:       r.Price,
		Quantity:    r.Quantity,
	})
}

func toOrderResponse(order *domain.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice.String(),
			Quantity:    item.Quantity,
			LineTotal:   domain.FormatMoney(item.LineTotal),
		})
	}

	return &OrderResponse{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		Total:      domain.FormatMoney(order.Total),
		CreatedAt:  order.CreatedAt,
		Items:      items,
	}
}

func toArrOrderResponse(orders []domain.Order) []OrderResponse {
	res := make([]OrderResponse, len(orders))
	for i := range orders {
		res[i] = *toOrderResponse(&orders[i])
	}

	return res
}

func toProductResponse(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		SKU:         p.SKU,
		Description: p.Description,
		Price:       p.Price.String(),
		Quantity:    p.Quantity,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toArrProductResponse(products []domain.Product) []ProductResponse {
	res := make([]ProductResponse, len(products))
	for i := range products {
		res[i] = *toProductResponse(&products[i])
	}

	return res
}

package usecase

import (
	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// ORDER USECASE

// CreateOrderReq — запрос на оформление заказа.
type CreateOrderReq struct {
	CustomerID int64
	Items      []OrderLineReq
}

// OrderLineReq — запрошенная позиция: товар и количество.
type OrderLineReq struct {
	ProductID int64
	Quantity  int64
}

type UpdateOrderStatusReq struct {
	ID     int64
	Status string
}

// PRODUCT USECASE

type CreateProductReq struct {
	Name        string
	SKU         string
	Description string
	Price       decimal.Decimal
	Quantity    int64
}

type UpdateProductReq struct {
	ID    int64
	Patch domain.ProductPatch
}

// INFRASTUCTURE

// WriteRawMessageReq — готовое к отправке событие из outbox.
type WriteRawMessageReq struct {
	Key       string
	EventType OutboxEventType
	Payload   []byte
}

// MAPPERS

func NewCreateOrderReq(customerID int64, items []OrderLineReq) *CreateOrderReq {
	return &CreateOrderReq{
		CustomerID: customerID,
		Items:      items,
	}
}

func NewOrderLineReq(productID, quantity int64) OrderLineReq {
	return OrderLineReq{
		ProductID: productID,
		Quantity:  quantity,
	}
}

func NewUpdateOrderStatusReq(id int64, status string) *UpdateOrderStatusReq {
	return &UpdateOrderStatusReq{ID: id, Status: status}
}

func NewCreateProductReq(name, sku, description string, price decimal.Decimal, quantity int64) *CreateProductReq {
	return &CreateProductReq{
		Name:        name,
		SKU:         sku,
		Description: description,
		Price:       price,
		Quantity:    quantity,
	}
}

func NewUpdateProductReq(id int64, patch domain.ProductPatch) *UpdateProductReq {
	return &UpdateProductReq{ID: id, Patch: patch}
}

func NewWriteRawMessageReq(key string, eventType OutboxEventType, payload []byte) *WriteRawMessageReq {
	return &WriteRawMessageReq{
		Key:       key,
		EventType: eventType,
		Payload:   payload,
	}
}

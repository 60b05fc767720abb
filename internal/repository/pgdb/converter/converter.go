package converter

import (
	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/internal/usecase"
)

// ProductConverter преобразует сущности Product между domain и моделью PostgreSQL.
type ProductConverter interface {
	ToModel(entity *domain.Product) *ProductModel
	ToEntity(model *ProductModel) *domain.Product
	ToArrEntity(models []ProductModel) []domain.Product
}

// OrderConverter преобразует заказ и его позиции.
type OrderConverter interface {
	ToModel(entity *domain.Order) *OrderModel
	ToEntity(model *OrderModel, items []OrderItemModel) *domain.Order
	ToArrEntity(models []OrderModel) []domain.Order
	ItemToModel(entity *domain.OrderItem) *OrderItemModel
	ItemToEntity(model *OrderItemModel) *domain.OrderItem
}

// OutboxEventConverter преобразует сущности OutboxEvent между usecase и моделью PostgreSQL.
type OutboxEventConverter interface {
	ToModel(entity *usecase.OutboxEvent) *OutboxEventModel
	ToEntity(model *OutboxEventModel) *usecase.OutboxEvent
	ToArrEntity(models []*OutboxEventModel) []*usecase.OutboxEvent
}

type ProductConverterImpl struct{}

func NewProductConverterImpl() *ProductConverterImpl {
	return &ProductConverterImpl{}
}

func (c *ProductConverterImpl) ToModel(entity *domain.Product) *ProductModel {
	if entity == nil {
		return nil
	}

	return &ProductModel{
		ID:          entity.ID,
		Name:        entity.Name,
		SKU:         entity.SKU,
		Description: entity.Description,
		Price:       entity.Price,
		Quantity:    entity.Quantity,
		CreatedAt:   entity.CreatedAt,
		UpdatedAt:   entity.UpdatedAt,
	}
}

func (c *ProductConverterImpl) ToEntity(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}

	return &domain.Product{
		ID:          model.ID,
		Name:        model.Name,
		SKU:         model.SKU,
		Description: model.Description,
		Price:       model.Price,
		Quantity:    model.Quantity,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func (c *ProductConverterImpl) ToArrEntity(models []ProductModel) []domain.Product {
	entities := make([]domain.Product, 0, len(models))
	for i := range models {
		entities = append(entities, *c.ToEntity(&models[i]))
	}

	return entities
}

type OrderConverterImpl struct{}

func NewOrderConverterImpl() *OrderConverterImpl {
	return &OrderConverterImpl{}
}

func (c *OrderConverterImpl) ToModel(entity *domain.Order) *OrderModel {
	if entity == nil {
		return nil
	}

	return &OrderModel{
		ID:         entity.ID,
		CustomerID: entity.CustomerID,
		Status:     entity.Status,
		Total:      entity.Total,
		CreatedAt:  entity.CreatedAt,
	}
}

func (c *OrderConverterImpl) ToEntity(model *OrderModel, items []OrderItemModel) *domain.Order {
	if model == nil {
		return nil
	}

	order := &domain.Order{
		ID:         model.ID,
		CustomerID: model.CustomerID,
		Status:     model.Status,
		Total:      model.Total,
		CreatedAt:  model.CreatedAt,
		Items:      make([]domain.OrderItem, 0, len(items)),
	}
	for i := range items {
		order.Items = append(order.Items, *c.ItemToEntity(&items[i]))
	}

	return order
}

func (c *OrderConverterImpl) ToArrEntity(models []OrderModel) []domain.Order {
	entities := make([]domain.Order, 0, len(models))
	for i := range models {
		entities = append(entities, *c.ToEntity(&models[i], nil))
	}

	return entities
}

func (c *OrderConverterImpl) ItemToModel(entity *domain.OrderItem) *OrderItemModel {
	if entity == nil {
		return nil
	}

	return &OrderItemModel{
		ID:          entity.ID,
		OrderID:     entity.OrderID,
		ProductID:   entity.ProductID,
		ProductName: entity.ProductName,
		UnitPrice:   entity.UnitPrice,
		Quantity:    entity.Quantity,
		LineTotal:   entity.LineTotal,
	}
}

func (c *OrderConverterImpl) ItemToEntity(model *OrderItemModel) *domain.OrderItem {
	if model == nil {
		return nil
	}

	return &domain.OrderItem{
		ID:          model.ID,
		OrderID:     model.OrderID,
		ProductID:   model.ProductID,
		ProductName: model.ProductName,
		UnitPrice:   model.UnitPrice,
		Quantity:    model.Quantity,
		LineTotal:   model.LineTotal,
	}
}

type OutboxEventConverterImpl struct{}

func NewOutboxEventConverterImpl() *OutboxEventConverterImpl {
	return &OutboxEventConverterImpl{}
}

func (c *OutboxEventConverterImpl) ToModel(entity *usecase.OutboxEvent) *OutboxEventModel {
	if entity == nil {
		return nil
	}

	return &OutboxEventModel{
		ID:          entity.ID,
		EventID:     entity.EventID,
		EventType:   string(entity.EventType),
		AggregateID: entity.AggregateID,
		Payload:     entity.Payload,
		Status:      string(entity.Status),
		CreatedAt:   entity.CreatedAt,
		ProcessedAt: entity.ProcessedAt,
	}
}

func (c *OutboxEventConverterImpl) ToEntity(model *OutboxEventModel) *usecase.OutboxEvent {
	if model == nil {
		return nil
	}

	return &usecase.OutboxEvent{
		ID:          model.ID,
		EventID:     model.EventID,
		EventType:   usecase.OutboxEventType(model.EventType),
		AggregateID: model.AggregateID,
		Payload:     model.Payload,
		Status:      usecase.OutboxStatus(model.Status),
		CreatedAt:   model.CreatedAt,
		ProcessedAt: model.ProcessedAt,
	}
}

func (c *OutboxEventConverterImpl) ToArrEntity(models []*OutboxEventModel) []*usecase.OutboxEvent {
	entities := make([]*usecase.OutboxEvent, 0, len(models))
	for _, model := range models {
		entities = append(entities, c.ToEntity(model))
	}

	return entities
}

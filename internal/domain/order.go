package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatusPending — статус нового заказа.
const OrderStatusPending = "pending"

// Order описывает заголовок заказа вместе с позициями.
// Total записывается один раз при создании и равен сумме LineTotal позиций.
type Order struct {
	ID         int64
	CustomerID int64
	Status     string
	Total      decimal.Decimal
	CreatedAt  time.Time
	Items      []OrderItem
}

// NewOrder создаёт предварительный заголовок заказа с нулевой суммой.
func NewOrder(customerID int64) *Order {
	return &Order{
		CustomerID: customerID,
		Status:     OrderStatusPending,
		Total:      decimal.Zero,
	}
}

// OrderItem — позиция заказа. UnitPrice — снимок цены товара на момент оформления,
// ProductID — слабая ссылка: товар может быть изменён или удалён позже.
type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName *string // Текущее название товара, если он ещё существует
	UnitPrice   decimal.Decimal
	Quantity    int64
	LineTotal   decimal.Decimal
}

// NewOrderItem фиксирует цену и считает сумму позиции.
func NewOrderItem(orderID, productID int64, unitPrice decimal.Decimal, quantity int64) *OrderItem {
	return &OrderItem{
		OrderID:   orderID,
		ProductID: productID,
		UnitPrice: unitPrice,
		Quantity:  quantity,
		LineTotal: LineTotal(unitPrice, quantity),
	}
}

// ItemsTotal суммирует уже округлённые суммы позиций.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal)
	}

	return RoundMoney(total)
}

// ProductIDs возвращает идентификаторы товаров заказа без повторов.
func (o *Order) ProductIDs() []int64 {
	seen := make(map[int64]struct{}, len(o.Items))
	ids := make([]int64, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}

	return ids
}

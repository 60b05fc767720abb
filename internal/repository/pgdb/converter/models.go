package converter

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductModel представляет запись таблицы products в PostgreSQL.
type ProductModel struct {
	ID          int64           `db:"product_id"`
	Name        string          `db:"name"`
	SKU         string          `db:"sku"`
	Description string          `db:"description"`
	Price       decimal.Decimal `db:"price"`
	Quantity    int64           `db:"quantity"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   *time.Time      `db:"updated_at"`
}

// OrderModel представляет запись таблицы orders.
type OrderModel struct {
	ID         int64           `db:"order_id"`
	CustomerID int64           `db:"customer_id"`
	Status     string          `db:"status"`
	Total      decimal.Decimal `db:"total"`
	CreatedAt  time.Time       `db:"created_at"`
}

// OrderItemModel представляет запись таблицы order_items с текущим названием товара (LEFT JOIN).
type OrderItemModel struct {
	ID          int64           `db:"order_item_id"`
	OrderID     int64           `db:"order_id"`
	ProductID   int64           `db:"product_id"`
	ProductName *string         `db:"name"`
	UnitPrice   decimal.Decimal `db:"unit_price"`
	Quantity    int64           `db:"quantity"`
	LineTotal   decimal.Decimal `db:"line_total"`
}

type OutboxEventModel struct {
	ID          int64      `db:"id"`
	EventID     string     `db:"event_id"`
	EventType   string     `db:"event_type"`
	AggregateID int64      `db:"aggregate_id"`
	Payload     []byte     `db:"payload"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}

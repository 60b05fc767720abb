package converter

import "time"

// ProductRedisModel — товар в кэше. Цена хранится строкой, чтобы не терять точность.
type ProductRedisModel struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	SKU         string     `json:"sku"`
	Description string     `json:"description"`
	Price       string     `json:"price"`
	Quantity    int64      `json:"quantity"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

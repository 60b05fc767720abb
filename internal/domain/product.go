package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает товар каталога
type Product struct {
	ID          int64
	Name        string
	SKU         string
	Description string
	Price       decimal.Decimal // Цена за единицу, до 4 знаков после запятой
	Quantity    int64           // Доступный остаток, никогда не отрицательный
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

func NewProduct(name, sku, description string, price decimal.Decimal, quantity int64) *Product {
	return &Product{
		Name:        name,
		SKU:         sku,
		Description: description,
		Price:       price,
		Quantity:    quantity,
	}
}

// ProductPatch — частичное обновление товара: nil-поля не меняются.
type ProductPatch struct {
	Name        *string
	SKU         *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int64
}

// HasStock сообщает, хватает ли остатка на запрошенное количество.
func (p *Product) HasStock(quantity int64) bool {
	return p.Quantity >= quantity
}

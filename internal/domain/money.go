package domain

import "github.com/shopspring/decimal"

const (
	// CurrencyPrecision — точность денежных сумм (копейки/центы).
	CurrencyPrecision = 2
	// PricePrecision — максимальная точность цены за единицу.
	PricePrecision = 4
)

// RoundMoney округляет сумму до копеек, половина — от нуля.
func RoundMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(CurrencyPrecision)
}

// LineTotal = цена x количество, округлённое один раз (а не поштучно).
func LineTotal(unitPrice decimal.Decimal, quantity int64) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(quantity)))
}

// FormatMoney возвращает сумму ровно с двумя знаками после запятой.
func FormatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(CurrencyPrecision)
}

package domain

import "fmt"

// Receipt — архивная копия созданного заказа в объектном хранилище.
type Receipt struct {
	OrderID     int64
	Bucket      string
	ObjectKey   string
	Body        []byte
	ContentType string
}

// ReceiptKeyPrefix — общий префикс объектов с чеками, на него вешается правило хранения.
const ReceiptKeyPrefix = "receipts/"

// ReceiptKey — ключ объекта чека. Один заказ — один объект.
func ReceiptKey(orderID int64) string {
	return fmt.Sprintf("%s%d.json", ReceiptKeyPrefix, orderID)
}

func NewReceipt(orderID int64, bucket string, body []byte) *Receipt {
	return &Receipt{
		OrderID:     orderID,
		Bucket:      bucket,
		ObjectKey:   ReceiptKey(orderID),
		Body:        body,
		ContentType: "application/json",
	}
}

package usecase

import (
	"context"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/pkg/tr"
)

// Transactor открывает транзакцию; репозитории находят её в возвращённом контексте.
type Transactor interface {
	Begin(ctx context.Context) (context.Context, tr.Tx, error)
}

type MessageProducer interface {
	WriteRawMessage(ctx context.Context, req *WriteRawMessageReq) error
}

// ReceiptsInfra архивирует чеки заказов в фоне. Ошибки не влияют на результат заказа.
type ReceiptsInfra interface {
	ArchiveReceipt(order *domain.Order)
	RemoveReceipt(orderID int64)
}

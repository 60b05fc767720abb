package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// ProductRepository — каталог товаров. Методы *ForUpdate/DecrementStock
// работают только внутри транзакции из контекста.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	Update(ctx context.Context, id int64, patch *domain.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id int64) error

	GetForUpdate(ctx context.Context, id int64) (*domain.Product, error)
	DecrementStock(ctx context.Context, id int64, quantity int64) error
}

// OrderRepository — журнал заказов и их позиций.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) (*domain.Order, error)
	AddItem(ctx context.Context, item *domain.OrderItem) (*domain.OrderItem, error)
	UpdateTotal(ctx context.Context, orderID int64, total decimal.Decimal) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, status string) (*domain.Order, error)
	Delete(ctx context.Context, id int64) error
}

type OutboxRepository interface {
	Create(ctx context.Context, event *OutboxEvent) (*OutboxEvent, error)
	GetAndMarkAsProcessing(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkAsProcessed(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CacheGenerations — поколения записей кэша по ID товара. DeleteProducts увеличивает поколение,
// SetProducts пишет товар, только если поколение не изменилось с момента GetProducts.
// Так заполнение кэша, начатое до коммита заказа, не вернёт в кэш старый остаток.
type CacheGenerations map[int64]int64

type CacheRepository interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, CacheGenerations, error)
	SetProducts(ctx context.Context, products []domain.Product, gens CacheGenerations) error
	DeleteProducts(ctx context.Context, ids []int64) error
}

type ReceiptRepository interface {
	Upload(ctx context.Context, receipt *domain.Receipt) (string, error)
	Delete(ctx context.Context, bucket, key string) error
}

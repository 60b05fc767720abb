package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/DRSN-tech/storefront/pkg/tr"
	"github.com/shopspring/decimal"
)

// OrderUseCase реализует оформление заказов и операции с журналом заказов.
type OrderUseCase struct {
	orderRepo       OrderRepository
	productRepo     ProductRepository
	outboxRepo      OutboxRepository
	transactor      Transactor
	cacheRepo       CacheRepository
	receipts        ReceiptsInfra
	logger          logger.Logger
	rollbackTimeout time.Duration
}

func NewOrderUC(
	orderRepo OrderRepository,
	productRepo ProductRepository,
	outboxRepo OutboxRepository,
	transactor Transactor,
	cacheRepo CacheRepository,
	receipts ReceiptsInfra,
	logger logger.Logger,
	rollbackTimeout time.Duration,
) *OrderUseCase {
	return &OrderUseCase{
		orderRepo:       orderRepo,
		productRepo:     productRepo,
		outboxRepo:      outboxRepo,
		transactor:      transactor,
		cacheRepo:       cacheRepo,
		receipts:        receipts,
		logger:          logger,
		rollbackTimeout: rollbackTimeout,
	}
}

// CreateOrder атомарно оформляет заказ: блокирует товары, проверяет остатки, фиксирует цены,
// записывает заказ с позициями и списывает остатки. При любой ошибке транзакция откатывается
// целиком: не остаётся ни заголовка, ни позиций, ни списаний.
func (o *OrderUseCase) CreateOrder(ctx context.Context, req *CreateOrderReq) (*domain.Order, error) {
	const op = "OrderUseCase.CreateOrder"

	// Валидация до открытия транзакции
	if err := validateCreateOrder(req); err != nil {
		return nil, e.Wrap(op, err)
	}

	var order *domain.Order
	err := o.withinTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = o.placeOrder(txCtx, req.CustomerID, lockOrder(req.Items))
		return err
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Остатки изменились — старые данные товаров в кэше больше не верны
	if err := o.cacheRepo.DeleteProducts(ctx, order.ProductIDs()); err != nil {
		o.logger.Warnf("Failed to invalidate products cache: %v", e.Wrap(op, err))
	}
	o.receipts.ArchiveReceipt(order)

	return order, nil
}

// placeOrder выполняет шаги оформления внутри уже открытой транзакции.
func (o *OrderUseCase) placeOrder(ctx context.Context, customerID int64, lines []OrderLineReq) (*domain.Order, error) {
	// Предварительный заголовок резервирует id заказа для позиций
	order, err := o.orderRepo.Create(ctx, domain.NewOrder(customerID))
	if err != nil {
		return nil, e.Storage(err)
	}

	total := decimal.Zero
	for _, line := range lines {
		item, err := o.reserveLine(ctx, order.ID, line)
		if err != nil {
			return nil, err
		}
		total = total.Add(item.LineTotal)
	}

	if err := o.orderRepo.UpdateTotal(ctx, order.ID, domain.RoundMoney(total)); err != nil {
		return nil, e.Storage(err)
	}

	// Перечитываем внутри транзакции: ответ совпадает с тем, что будет закоммичено
	created, err := o.orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		return nil, e.Storage(err)
	}
	if !created.Total.Equal(created.ItemsTotal()) {
		return nil, e.Storage(fmt.Errorf("order %d total %s does not match items total %s",
			created.ID, created.Total, created.ItemsTotal()))
	}

	if err := o.publish(ctx, OrderCreated, created); err != nil {
		return nil, err
	}

	return created, nil
}

// reserveLine блокирует товар до конца транзакции, проверяет остаток под блокировкой,
// записывает позицию со снимком цены и списывает остаток.
func (o *OrderUseCase) reserveLine(ctx context.Context, orderID int64, line OrderLineReq) (*domain.OrderItem, error) {
	product, err := o.productRepo.GetForUpdate(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, e.ErrProductNotFound) {
			return nil, e.NewProductError(e.ErrProductNotFound, line.ProductID)
		}
		return nil, e.Storage(err)
	}

	if !product.HasStock(line.Quantity) {
		return nil, e.NewProductError(e.ErrInsufficientStock, line.ProductID)
	}

	item, err := o.orderRepo.AddItem(ctx, domain.NewOrderItem(orderID, product.ID, product.Price, line.Quantity))
	if err != nil {
		return nil, e.Storage(err)
	}

	if err := o.productRepo.DecrementStock(ctx, product.ID, line.Quantity); err != nil {
		if errors.Is(err, e.ErrInsufficientStock) {
			return nil, e.NewProductError(e.ErrInsufficientStock, line.ProductID)
		}
		return nil, e.Storage(err)
	}

	return item, nil
}

// GetOrder возвращает заказ с позициями.
func (o *OrderUseCase) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	const op = "OrderUseCase.GetOrder"

	if id <= 0 {
		return nil, e.Wrap(op, e.Invalid(e.ErrInvalidID))
	}

	order, err := o.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return order, nil
}

// ListOrders возвращает заголовки всех заказов.
func (o *OrderUseCase) ListOrders(ctx context.Context) ([]domain.Order, error) {
	const op = "OrderUseCase.ListOrders"

	orders, err := o.orderRepo.List(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return orders, nil
}

// UpdateOrderStatus меняет статус заказа. Сумма и позиции не меняются.
func (o *OrderUseCase) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusReq) (*domain.Order, error) {
	const op = "OrderUseCase.UpdateOrderStatus"

	status := strings.TrimSpace(req.Status)
	if status == "" {
		return nil, e.Wrap(op, e.Invalid(e.ErrStatusRequired))
	}
	if req.ID <= 0 {
		return nil, e.Wrap(op, e.Invalid(e.ErrInvalidID))
	}

	var order *domain.Order
	err := o.withinTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = o.orderRepo.UpdateStatus(txCtx, req.ID, status)
		if err != nil {
			return err
		}

		return o.publish(txCtx, OrderStatusChanged, order)
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return order, nil
}

// DeleteOrder удаляет заказ вместе с позициями. Остатки товаров не возвращаются.
func (o *OrderUseCase) DeleteOrder(ctx context.Context, id int64) error {
	const op = "OrderUseCase.DeleteOrder"

	if id <= 0 {
		return e.Wrap(op, e.Invalid(e.ErrInvalidID))
	}

	err := o.withinTx(ctx, func(txCtx context.Context) error {
		if err := o.orderRepo.Delete(txCtx, id); err != nil {
			return err
		}

		return o.publish(txCtx, OrderDeleted, &domain.Order{ID: id})
	})
	if err != nil {
		return e.Wrap(op, err)
	}

	o.receipts.RemoveReceipt(id)
	return nil
}

// withinTx выполняет fn в транзакции. Если fn или Commit вернули ошибку, транзакция откатывается
// до возврата ошибки.
func (o *OrderUseCase) withinTx(ctx context.Context, fn func(txCtx context.Context) error) (err error) {
	txCtx, tx, err := o.transactor.Begin(ctx)
	if err != nil {
		return e.Storage(err)
	}
	defer func() {
		if err != nil {
			o.rollback(txCtx, tx)
		}
	}()

	if err = fn(txCtx); err != nil {
		return err
	}

	if err = tx.Commit(txCtx); err != nil {
		return e.Storage(err)
	}

	return nil
}

// rollback откатывает транзакцию даже если контекст запроса уже отменён.
// Ошибка отката только логируется и не подменяет исходную ошибку.
func (o *OrderUseCase) rollback(ctx context.Context, tx tr.Tx) {
	if !tx.IsActive() {
		return
	}

	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.rollbackTimeout)
	defer cancel()

	if err := tx.Rollback(rbCtx); err != nil {
		o.logger.Errorf(err, "OrderUseCase: transaction rollback failed")
	}
}

// publish записывает событие в outbox в текущей транзакции.
func (o *OrderUseCase) publish(ctx context.Context, eventType OutboxEventType, order *domain.Order) error {
	event, err := NewOrderEvent(eventType, order)
	if err != nil {
		return e.Storage(err)
	}

	if _, err := o.outboxRepo.Create(ctx, event); err != nil {
		return e.Storage(err)
	}

	return nil
}

// validateCreateOrder проверяет запрос до обращения к БД.
func validateCreateOrder(req *CreateOrderReq) error {
	if req == nil || req.CustomerID <= 0 {
		return e.Invalid(e.ErrCustomerIDRequired)
	}

	if len(req.Items) == 0 {
		return e.Invalid(e.ErrItemsRequired)
	}

	for i, item := range req.Items {
		if item.ProductID <= 0 {
			return e.Invalid(e.Wrap(fmt.Sprintf("items[%d]", i), e.ErrInvalidProductID))
		}
		if item.Quantity <= 0 {
			return e.Invalid(e.Wrap(fmt.Sprintf("items[%d]", i), e.ErrQuantityNotPositive))
		}
	}

	return nil
}

// lockOrder упорядочивает позиции по id товара. Все транзакции берут блокировки
// в одном порядке, поэтому пересекающиеся заказы не могут взаимно заблокироваться.
func lockOrder(items []OrderLineReq) []OrderLineReq {
	lines := slices.Clone(items)
	slices.SortStableFunc(lines, func(a, b OrderLineReq) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})

	return lines
}

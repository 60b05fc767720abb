package minio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/internal/domain"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/jitter"
	"github.com/DRSN-tech/storefront/pkg/logger"
)

const (
	maxAttempts    = 3
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ReceiptsInfrastructure архивирует чеки созданных заказов в MinIO в фоне.
// Сбой архивации не влияет на уже закоммиченный заказ.
type ReceiptsInfrastructure struct {
	repo        usecase.ReceiptRepository
	cfg         *cfg.MinIOCfg
	logger      logger.Logger
	shutdownCtx context.Context
	wg          sync.WaitGroup
	backoff     time.Duration
}

func NewReceiptsInfrastructure(repo usecase.ReceiptRepository, cfg *cfg.MinIOCfg, logger logger.Logger, shutdownCtx context.Context) *ReceiptsInfrastructure {
	return &ReceiptsInfrastructure{
		repo:        repo,
		cfg:         cfg,
		logger:      logger,
		shutdownCtx: shutdownCtx,
		backoff:     defaultBackoff,
	}
}

type receiptLine struct {
	ProductID   int64   `json:"product_id"`
	ProductName *string `json:"product_name,omitempty"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   string  `json:"unit_price"`
	LineTotal   string  `json:"line_total"`
}

type receiptDocument struct {
	OrderID    int64         `json:"order_id"`
	CustomerID int64         `json:"customer_id"`
	Status     string        `json:"status"`
	Total      string        `json:"total"`
	CreatedAt  time.Time     `json:"created_at"`
	Items      []receiptLine `json:"items"`
}

// ArchiveReceipt ставит загрузку чека в фон.
func (r *ReceiptsInfrastructure) ArchiveReceipt(order *domain.Order) {
	const op = "ReceiptsInfrastructure.ArchiveReceipt"

	body, err := marshalReceipt(order)
	if err != nil {
		r.logger.Errorf(err, "%s: failed to marshal receipt for order %d", op, order.ID)
		return
	}

	receipt := domain.NewReceipt(order.ID, r.cfg.BucketName, body)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		err := r.retry(op, receipt.ObjectKey, func(ctx context.Context) error {
			_, err := r.repo.Upload(ctx, receipt)
			return err
		})
		if err != nil {
			r.logger.Warnf("%s: receipt for order %d was not archived: %v", op, order.ID, err)
		}
	}()
}

// RemoveReceipt удаляет чек удалённого заказа в фоне.
func (r *ReceiptsInfrastructure) RemoveReceipt(orderID int64) {
	const op = "ReceiptsInfrastructure.RemoveReceipt"

	key := domain.ReceiptKey(orderID)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		err := r.retry(op, key, func(ctx context.Context) error {
			return r.repo.Delete(ctx, r.cfg.BucketName, key)
		})
		if err != nil {
			r.logger.Warnf("%s: receipt %s was not removed: %v", op, key, err)
		}
	}()
}

// retry выполняет fn до maxAttempts раз с экспоненциальной задержкой и jitter.
// Прерывается при остановке приложения.
func (r *ReceiptsInfrastructure) retry(op, key string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(r.shutdownCtx, r.cfg.UploadTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt == maxAttempts-1 {
			break
		}

		select {
		case <-time.After(jitter.ExponentialBackoff(r.backoff, maxBackoff, attempt, jitter.DefaultJitter)):
		case <-ctx.Done():
			r.logger.Warnf("%s: interrupted by shutdown, key=%s", op, key)
			return ctx.Err()
		}
	}

	return err
}

// WaitForUploads ожидает завершения фоновых загрузок с учётом таймаута остановки приложения.
func (r *ReceiptsInfrastructure) WaitForUploads(shutdownTimeoutCtx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownTimeoutCtx.Done():
		return fmt.Errorf("receipt uploads timeout during shutdown: %w", shutdownTimeoutCtx.Err())
	}
}

func marshalReceipt(order *domain.Order) ([]byte, error) {
	doc := receiptDocument{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		Total:      domain.FormatMoney(order.Total),
		CreatedAt:  order.CreatedAt,
		Items:      make([]receiptLine, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, receiptLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.String(),
			LineTotal:   domain.FormatMoney(item.LineTotal),
		})
	}

	return json.Marshal(doc)
}

package kafka

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/internal/usecase"
	"github.com/DRSN-tech/storefront/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// OutboxWorker переносит события заказов из outbox в Kafka.
// Просыпается по NOTIFY и по таймеру, на случай потерянного уведомления.
type OutboxWorker struct {
	repo         usecase.OutboxRepository
	logger       logger.Logger
	producer     usecase.MessageProducer
	notify       <-chan struct{}
	batchSize    int
	pollInterval time.Duration
	staleAfter   time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

func NewOutboxWorker(
	repo usecase.OutboxRepository,
	logger logger.Logger,
	producer usecase.MessageProducer,
	notify <-chan struct{},
	cfg *cfg.OutboxCfg,
) *OutboxWorker {
	return &OutboxWorker{
		repo:         repo,
		logger:       logger,
		producer:     producer,
		notify:       notify,
		batchSize:    cfg.BatchSize,
		pollInterval: cfg.PollInterval,
		staleAfter:   cfg.StaleAfter,
		stop:         make(chan struct{}),
	}
}

func (w *OutboxWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop останавливает воркер и ждёт завершения текущей пачки.
func (w *OutboxWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *OutboxWorker) run(ctx context.Context) {
	// Обрабатываем "остатки" при старте
	w.logger.Infof("Draining pending outbox events on startup...")
	w.requeueStale(ctx)
	w.drain(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Infof("Outbox worker stopped by context cancellation")
			return
		case <-w.stop:
			w.logger.Infof("Outbox worker stopped")
			return
		case <-w.notify:
			w.logger.Debugf("Received outbox notification, draining outbox events")
			w.drain(ctx)
		case <-ticker.C:
			w.requeueStale(ctx)
			w.drain(ctx)
		}
	}
}

// requeueStale возвращает в очередь события, захваченные упавшим воркером. 0 отключает проверку.
func (w *OutboxWorker) requeueStale(ctx context.Context) {
	if w.staleAfter <= 0 {
		return
	}

	n, err := w.repo.RequeueStale(ctx, w.staleAfter)
	if err != nil {
		w.logger.Warnf("requeue stale outbox events: %v", err)
		return
	}
	if n > 0 {
		w.logger.Infof("Requeued %d outbox events stuck in processing", n)
	}
}

func (w *OutboxWorker) drain(ctx context.Context) {
	for {
		hasMore, err := w.processBatch(ctx)
		if err != nil {
			w.logger.Warnf("Batch processing failed: %v", err)
			return
		}
		if !hasMore {
			return
		}
	}
}

// processBatch отправляет одну пачку. Продолжать имеет смысл, только если пачка
// была полной и все события ушли: иначе неудачные события будут выбраны снова сразу же.
// После сбоя события заказа его следующие события в пачке не отправляются, чтобы
// потребители по ключу заказа не увидели их раньше неудачного.
func (w *OutboxWorker) processBatch(ctx context.Context) (bool, error) {
	events, err := w.repo.GetAndMarkAsProcessing(ctx, w.batchSize)
	if err != nil {
		return false, err
	}

	failed := 0
	blocked := make(map[int64]struct{})
	for _, event := range events {
		if _, ok := blocked[event.AggregateID]; ok {
			failed++
			w.logger.Debugf("Outbox event %s held back: earlier event of order %d not sent", event.EventID, event.AggregateID)
			w.markFailed(ctx, event)
			continue
		}

		if err := w.processEvent(ctx, event); err != nil {
			failed++
			blocked[event.AggregateID] = struct{}{}
			w.logger.Warnf("Outbox event %s (%s) not sent: %v", event.EventID, event.EventType, err)
			w.markFailed(ctx, event)
			continue
		}

		if err := w.repo.MarkAsProcessed(ctx, event.ID); err != nil {
			w.logger.Warnf("mark processed failed: %v", err)
		}
	}

	return failed == 0 && len(events) == w.batchSize, nil
}

func (w *OutboxWorker) markFailed(ctx context.Context, event *usecase.OutboxEvent) {
	if err := w.repo.MarkAsFailed(ctx, event.ID); err != nil {
		w.logger.Warnf("mark failed failed: %v", err)
	}
}

func (w *OutboxWorker) processEvent(ctx context.Context, event *usecase.OutboxEvent) error {
	req := usecase.NewWriteRawMessageReq(event.Key(), event.EventType, event.Payload)
	if err := w.producer.WriteRawMessage(ctx, req); err != nil {
		if isRetryableError(err) {
			return errors.Join(errors.New("temporary Kafka failure, will retry"), err)
		}
		return errors.Join(errors.New("kafka failure"), err)
	}

	return nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Temporary()
	}

	errStr := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"i/o timeout",
		"network is unreachable",
		"broker not available",
		"connection reset",
		"broken pipe",
		"no such host",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(errStr, phrase) {
			return true
		}
	}

	return false
}
